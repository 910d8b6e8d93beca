package mcp

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/internal/apitest"
	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/mcp/tools"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/pkg/client"
)

func newTestSession(t *testing.T) (*sdkmcp.ClientSession, *app.App) {
	t.Helper()
	api := apitest.New()
	t.Cleanup(api.Close)
	api.Seed(
		client.Record{CustomsCode: "811010", Importer: "Acme", Date: client.NewDate(2024, 3, 1)},
		client.Record{CustomsCode: "260400", Importer: "Globex", Date: client.NewDate(2024, 3, 2)},
	)

	cfg := config.Defaults()
	cfg.APIBaseURL = api.URL
	a, err := app.New(context.Background(), cfg,
		app.WithTokenStore(&session.MemoryStore{}),
		app.WithSink(export.NewLocalDir(t.TempDir())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	s, err := NewServer(&tools.Deps{App: a, Config: cfg}, WithBuiltinTools(), WithBuiltinPrompts())
	require.NoError(t, err)

	ctx := context.Background()
	st, ct := sdkmcp.NewInMemoryTransports()
	ss, err := s.MCPServer().Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	c := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := c.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs, a
}

func readJSON(t *testing.T, cs *sdkmcp.ClientSession, uri string, v any) {
	t.Helper()
	res, err := cs.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: uri})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), v))
}

func TestNewServer_RequiresApp(t *testing.T) {
	_, err := NewServer(&tools.Deps{})
	assert.Error(t, err)
}

func TestResources_SessionAndPage(t *testing.T) {
	cs, a := newTestSession(t)
	ctx := context.Background()

	var sess map[string]any
	readJSON(t, cs, "customs://session", &sess)
	assert.Equal(t, false, sess["is_authenticated"])

	_, _, err := a.Login(ctx, apitest.AdminUser, apitest.AdminPassword)
	require.NoError(t, err)
	_, err = a.Router.Navigate(ctx, app.RouteDataQuery, nil)
	require.NoError(t, err)
	_, err = a.Data.Submit(ctx, dataquery.Criteria{})
	require.NoError(t, err)

	var page struct {
		Location struct {
			Path string `json:"path"`
		} `json:"location"`
		Page struct {
			Total int `json:"total"`
			Rows  []struct {
				Record map[string]any `json:"record"`
			} `json:"rows"`
		} `json:"page"`
	}
	readJSON(t, cs, "customs://page/current", &page)
	assert.Equal(t, "/data-query", page.Location.Path)
	assert.Equal(t, 2, page.Page.Total)
	assert.Len(t, page.Page.Rows, 2)
}

func TestResources_Record(t *testing.T) {
	cs, a := newTestSession(t)
	ctx := context.Background()
	_, _, err := a.Login(ctx, apitest.AdminUser, apitest.AdminPassword)
	require.NoError(t, err)
	snap, err := a.Data.Submit(ctx, dataquery.Criteria{CustomsCode: "811010"})
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	id := snap.Rows[0].Record.ID

	var rec map[string]any
	readJSON(t, cs, recordURIPrefix+id, &rec)
	assert.Equal(t, "811010", rec[client.FieldCustomsCode])

	_, err = cs.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: recordURIPrefix + "missing"})
	assert.Error(t, err)
}

func TestPrompts_TradeFlowArguments(t *testing.T) {
	cs, _ := newTestSession(t)
	res, err := cs.GetPrompt(context.Background(), &sdkmcp.GetPromptParams{
		Name:      "trade_flow_analysis",
		Arguments: map[string]string{"customs_code": "811010", "period": "2024-01-01..2024-03-31"},
	})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(*sdkmcp.TextContent).Text
	assert.Contains(t, text, `customs_code="811010"`)
	assert.Contains(t, text, `end_date="2024-03-31"`)
}
