package mcpsrv_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/internal/apitest"
	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/pkg/client"
	"github.com/usestring/customs-mcp/pkg/mcpsrv"
)

type countOutput struct {
	Total int `json:"total"`
}

func newServer(t *testing.T, opts ...mcpsrv.Option) *mcpsrv.Server {
	t.Helper()
	api := apitest.New()
	t.Cleanup(api.Close)
	api.Seed(client.Record{CustomsCode: "811010", Importer: "Acme", Date: client.NewDate(2024, 3, 1)})

	cfg := config.Defaults()
	cfg.APIBaseURL = api.URL
	cfg.LogLevel = "error"
	opts = append([]mcpsrv.Option{mcpsrv.WithAppOptions(
		app.WithTokenStore(&session.MemoryStore{}),
		app.WithSink(export.NewLocalDir(t.TempDir())),
	)}, opts...)

	s, err := mcpsrv.NewServer(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connect(t *testing.T, s *mcpsrv.Server) *sdkmcp.ClientSession {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	c := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := c.Connect(context.Background(), &sdkmcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestHandler_Health(t *testing.T) {
	s := newServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["authenticated"])
}

func TestHandler_StreamableHTTP(t *testing.T) {
	s := newServer(t)
	cs := connect(t, s)
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, &sdkmcp.ListToolsParams{})
	require.NoError(t, err)
	assert.Len(t, tools.Tools, 20)

	prompts, err := cs.ListPrompts(ctx, &sdkmcp.ListPromptsParams{})
	require.NoError(t, err)
	names := make([]string, 0, len(prompts.Prompts))
	for _, p := range prompts.Prompts {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"trade_flow_analysis", "usage_guide"}, names)

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "customs_login",
		Arguments: map[string]any{"username": apitest.AdminUser, "password": apitest.AdminPassword},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.True(t, s.Deps().App.Session.Snapshot().IsAuthenticated)
}

func TestNewServer_DepsToolAndNoBuiltins(t *testing.T) {
	s := newServer(t,
		mcpsrv.WithoutBuiltinTools(),
		mcpsrv.WithoutBuiltinPrompts(),
		mcpsrv.WithDepsTool(
			&sdkmcp.Tool{Name: "row_count", Description: "Rows matching the last search"},
			func(d *mcpsrv.Deps) func(context.Context, *sdkmcp.CallToolRequest, struct{}) (*sdkmcp.CallToolResult, countOutput, error) {
				return func(ctx context.Context, req *sdkmcp.CallToolRequest, in struct{}) (*sdkmcp.CallToolResult, countOutput, error) {
					return nil, countOutput{Total: d.App.Data.Snapshot().Total}, nil
				}
			},
		),
	)
	cs := connect(t, s)
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, &sdkmcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "row_count", tools.Tools[0].Name)

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: "row_count", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}
