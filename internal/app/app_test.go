package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/internal/aisearch"
	"github.com/usestring/customs-mcp/internal/apitest"
	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/query"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/pkg/client"
)

type harness struct {
	srv    *apitest.Server
	app    *app.App
	notes  *notify.Recorder
	tokens *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(client.User{Username: "viewer"}, "viewer-pw")
	srv.Seed(
		client.Record{CustomsCode: "811010", Importer: "Acme", ImportCountry: "China (CN)", ExportCountry: "Vietnam (VN)", Date: client.NewDate(2024, 3, 1)},
		client.Record{CustomsCode: "811010", Importer: "Acme", ImportCountry: "China (CN)", ExportCountry: "Laos (LA)", Date: client.NewDate(2024, 3, 2)},
		client.Record{CustomsCode: "260400", Importer: "Globex", ImportCountry: "Japan (JP)", ExportCountry: "Vietnam (VN)", Date: client.NewDate(2024, 3, 3)},
	)

	cfg := config.Defaults()
	cfg.APIBaseURL = srv.URL

	notes := &notify.Recorder{}
	tokens := &session.MemoryStore{}
	a, err := app.New(context.Background(), cfg,
		app.WithTokenStore(tokens),
		app.WithSink(export.NewLocalDir(t.TempDir())),
		app.WithNotifier(notes),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Start(context.Background()))
	return &harness{srv: srv, app: a, notes: notes, tokens: tokens}
}

func (h *harness) login(t *testing.T, user, pass string) app.Location {
	t.Helper()
	_, loc, err := h.app.Login(context.Background(), user, pass)
	require.NoError(t, err)
	return loc
}

func TestGuards_LoginRedirectRemembersTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	loc, err := h.app.Router.Navigate(ctx, app.RouteDataQuery, nil)
	assert.ErrorIs(t, err, app.ErrLoginRequired)
	assert.Equal(t, app.Location{Path: app.RouteLogin, From: app.RouteDataQuery}, loc)

	loc = h.login(t, apitest.AdminUser, apitest.AdminPassword)
	assert.Equal(t, app.RouteDataQuery, loc.Path)

	loc, err = h.app.Router.Navigate(ctx, app.RouteLogin, nil)
	require.NoError(t, err)
	assert.Equal(t, app.RouteHome, loc.Path)

	_, err = h.app.Router.Navigate(ctx, "/nowhere", nil)
	assert.ErrorIs(t, err, app.ErrUnknownRoute)
}

func TestGuards_AdminPagesRedirectNonAdmins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, "viewer", "viewer-pw")

	for _, r := range []app.Route{app.RouteUsers, app.RouteImport} {
		loc, err := h.app.Router.Navigate(ctx, r, nil)
		assert.ErrorIs(t, err, app.ErrAdminRequired)
		assert.ErrorIs(t, err, client.ErrForbidden)
		assert.Equal(t, app.RouteDataQuery, loc.Path)
	}
	last, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestUnauthorized_FromAnyPageRedirectsToLogin(t *testing.T) {
	for _, page := range []app.Route{app.RouteHome, app.RouteDataQuery, app.RouteUsers} {
		t.Run(string(page), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.login(t, apitest.AdminUser, apitest.AdminPassword)

			_, err := h.app.Data.Submit(ctx, dataquery.Criteria{})
			require.NoError(t, err)
			_, err = h.app.Router.Navigate(ctx, page, nil)
			require.NoError(t, err)

			h.srv.RevokeTokens()
			_, err = h.app.Data.Refresh(ctx)
			assert.ErrorIs(t, err, client.ErrUnauthorized)

			assert.Equal(t, app.Location{Path: app.RouteLogin, From: page}, h.app.Router.Current())
			assert.False(t, h.app.Session.Snapshot().IsAuthenticated)
			tok, _ := h.tokens.Load()
			assert.Empty(t, tok)

			snap := h.app.Data.Snapshot()
			assert.Empty(t, snap.Rows)
			assert.False(t, snap.Searched)
		})
	}
}

func TestUnauthorized_DuringUserManagement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)
	_, err := h.app.Router.Navigate(ctx, app.RouteUsers, nil)
	require.NoError(t, err)

	h.srv.RevokeTokens()
	_, err = h.app.Users.Refresh(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, app.RouteLogin, h.app.Router.Current().Path)
}

func TestLogout_AbandonsPageState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)

	_, err := h.app.QuickSearch(ctx, app.QuickCustomsCode, "811010")
	require.NoError(t, err)

	loc := h.app.Logout(ctx)
	assert.Equal(t, app.RouteLogin, loc.Path)
	assert.Empty(t, h.app.Data.Snapshot().Rows)
}

func TestLogin_FailedAccountSwitchAbandonsPageState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)

	_, err := h.app.Router.Navigate(ctx, app.RouteUsers, nil)
	require.NoError(t, err)
	_, err = h.app.Users.Refresh(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, h.app.Users.Users())

	_, err = h.app.Router.Navigate(ctx, app.RouteDataQuery, nil)
	require.NoError(t, err)
	_, err = h.app.Data.Submit(ctx, dataquery.Criteria{})
	require.NoError(t, err)
	require.Len(t, h.app.Data.Snapshot().Rows, 3)

	// the token exchange succeeds, the profile load does not
	h.srv.FailNext(http.MethodGet, "/auth/me", http.StatusInternalServerError, "boom")
	_, _, err = h.app.Login(ctx, "viewer", "viewer-pw")
	require.Error(t, err)

	assert.False(t, h.app.Session.Snapshot().IsAuthenticated)
	assert.Equal(t, app.RouteLogin, h.app.Router.Current().Path)
	assert.Empty(t, h.app.Data.Snapshot().Rows)
	assert.Empty(t, h.app.Users.Users())

	res, err := h.app.QueryRows(".importer", query.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Values)
}

func TestLogin_AccountSwitchClearsUserList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)
	_, err := h.app.Users.Refresh(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, h.app.Users.Users())

	h.login(t, "viewer", "viewer-pw")
	assert.Empty(t, h.app.Users.Users())
}

func TestQuickSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, "viewer", "viewer-pw")

	snap, err := h.app.QuickSearch(ctx, app.QuickExportCountry, "Vietnam (VN)")
	require.NoError(t, err)
	assert.Len(t, snap.Rows, 2)

	loc := h.app.Router.Current()
	assert.Equal(t, app.RouteDataQuery, loc.Path)
	require.NotNil(t, loc.Criteria)
	assert.Equal(t, "Vietnam (VN)", loc.Criteria.ExportCountry)

	calls := h.srv.Calls(http.MethodGet, "/data/search")
	q := calls[len(calls)-1].Query
	assert.Equal(t, "Vietnam (VN)", q.Get("export_country"))
	assert.Equal(t, "1", q.Get("page"))

	_, err = h.app.QuickSearch(ctx, "importer", "Acme")
	assert.Error(t, err)
}

func TestAISearch_OpensDataPageWithReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)
	h.srv.AIReply = `{"customs_code":"811010","import_country":"China (CN)"}`

	snap, err := h.app.AISearch(ctx, "中国进口的未锻造锑")
	require.NoError(t, err)
	assert.Len(t, snap.Rows, 2)
	assert.Equal(t, "811010", snap.Criteria.CustomsCode)

	var body client.AISearchRequest
	calls := h.srv.Calls(http.MethodPost, "/ai/search")
	require.Len(t, calls, 1)
	require.NoError(t, json.Unmarshal(calls[0].Body, &body))
	assert.Equal(t, []string{"China (CN)", "Japan (JP)"}, body.ImportCountries)
}

func TestAISearch_MalformedReplyChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)
	h.srv.AIReply = `{"customs_code": ["811010"]}`

	_, err := h.app.AISearch(ctx, "antimony")
	assert.ErrorIs(t, err, aisearch.ErrAIParse)
	assert.False(t, h.app.Data.Snapshot().Searched)
	assert.Empty(t, h.srv.Calls(http.MethodGet, "/data/search"))

	last, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, "AI搜索失败，请重试", last.Message)
}

func TestImport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)

	_, err := h.app.Import(ctx, "data.csv", strings.NewReader("a,b"))
	assert.ErrorIs(t, err, app.ErrUnsupportedFile)
	assert.Empty(t, h.srv.Calls(http.MethodPost, "/import/excel"))

	res, err := h.app.Import(ctx, "March.XLSX", strings.NewReader("PK"))
	require.NoError(t, err)
	assert.Equal(t, "March.XLSX", res.Filename)
	assert.Len(t, h.srv.Calls(http.MethodPost, "/import/excel"), 1)
}

func TestImport_NonAdminRefusedLocally(t *testing.T) {
	h := newHarness(t)
	h.login(t, "viewer", "viewer-pw")

	_, err := h.app.Import(context.Background(), "data.xlsx", strings.NewReader("PK"))
	assert.ErrorIs(t, err, client.ErrForbidden)
	assert.Empty(t, h.srv.Calls(http.MethodPost, "/import/excel"))
}

func TestFilterOptions(t *testing.T) {
	h := newHarness(t)
	h.login(t, apitest.AdminUser, apitest.AdminPassword)

	lists, err := h.app.FilterOptions(context.Background(), "viet")
	require.NoError(t, err)
	assert.Equal(t, []string{"Vietnam (VN)"}, lists.ExportCountries)
	assert.Empty(t, lists.ImportCountries)
	assert.Empty(t, lists.CustomsCodes)
}

func TestQueryRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t, apitest.AdminUser, apitest.AdminPassword)
	_, err := h.app.QuickSearch(ctx, app.QuickCustomsCode, "811010")
	require.NoError(t, err)

	res, err := h.app.QueryRows(".export_country", query.Options{Deduplicate: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"Vietnam (VN)", "Laos (LA)"}, res.Values)
}

func TestStart_RestoresPersistedSession(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	cfg := config.Defaults()
	cfg.APIBaseURL = srv.URL
	tokens := &session.MemoryStore{}
	require.NoError(t, tokens.Save(srv.IssueToken(apitest.AdminUser)))

	a, err := app.New(context.Background(), cfg, app.WithTokenStore(tokens), app.WithSink(export.NewLocalDir(t.TempDir())))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Session.IsAdmin())
	assert.Equal(t, app.RouteHome, a.Router.Current().Path)
}
