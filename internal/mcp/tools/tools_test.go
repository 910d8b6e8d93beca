package tools_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/internal/apitest"
	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/mcp/tools"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/pkg/client"
)

func newDeps(t *testing.T) (*tools.Deps, *apitest.Server) {
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
	a, err := app.New(context.Background(), cfg,
		app.WithTokenStore(&session.MemoryStore{}),
		app.WithSink(export.NewLocalDir(t.TempDir())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Start(context.Background()))
	return &tools.Deps{App: a, Config: cfg}, srv
}

func login(t *testing.T, d *tools.Deps, user, pass string) tools.SessionOutput {
	t.Helper()
	_, out, err := tools.ToolLogin(d)(context.Background(), nil, tools.LoginInput{Username: user, Password: pass})
	require.NoError(t, err)
	return out
}

func code(t *testing.T, err error) string {
	t.Helper()
	var coded *tools.CodedError
	require.True(t, errors.As(err, &coded), "expected CodedError, got %v", err)
	return coded.Code
}

func pageRows(t *testing.T, page any) []any {
	t.Helper()
	m, ok := page.(map[string]any)
	require.True(t, ok)
	rows, ok := m["rows"].([]any)
	require.True(t, ok)
	return rows
}

func TestRegister_AllToolsPrefixed(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	srv := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "test", Version: "0"}, nil)
	require.NotPanics(t, func() { tools.Register(srv, d) })

	st, ct := sdkmcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, st, nil)
	require.NoError(t, err)
	defer ss.Close()
	cs, err := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "client", Version: "0"}, nil).Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 20)
	for _, tool := range res.Tools {
		assert.True(t, strings.HasPrefix(tool.Name, tools.ToolPrefix), tool.Name)
	}
}

func TestLoginAndWhoami(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()

	_, out, err := tools.ToolWhoami(d)(ctx, nil, tools.EmptyInput{})
	require.NoError(t, err)
	assert.False(t, out.Authenticated)
	assert.Equal(t, string(app.RouteLogin), out.Route)

	out = login(t, d, "viewer", "viewer-pw")
	assert.True(t, out.Authenticated)
	assert.Equal(t, string(app.RouteHome), out.Route)
	require.NotEmpty(t, out.Notices)
	assert.Equal(t, notify.LevelSuccess, out.Notices[0].Level)

	user, ok := out.User.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "viewer", user["username"])
	assert.Equal(t, false, user["is_admin"])
}

func TestLogin_BadPasswordIsUnauthorized(t *testing.T) {
	d, _ := newDeps(t)
	_, _, err := tools.ToolLogin(d)(context.Background(), nil, tools.LoginInput{Username: "viewer", Password: "nope"})
	assert.Equal(t, tools.ErrCodeUnauthorized, code(t, err))

	_, _, err = tools.ToolLogin(d)(context.Background(), nil, tools.LoginInput{Username: "viewer"})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
}

func TestSearch_SignedOutIsUnauthorized(t *testing.T) {
	d, srv := newDeps(t)
	_, _, err := tools.ToolSearch(d)(context.Background(), nil, tools.SearchInput{CustomsCode: "811010"})
	assert.Equal(t, tools.ErrCodeUnauthorized, code(t, err))
	assert.Empty(t, srv.Calls(http.MethodGet, "/data/search"))
}

func TestRowsQueryAndExport_SignedOutAfterLogoutIsUnauthorized(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	login(t, d, "viewer", "viewer-pw")
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{})
	require.NoError(t, err)

	_, _, err = tools.ToolLogout(d)(ctx, nil, tools.EmptyInput{})
	require.NoError(t, err)

	_, _, err = tools.ToolRowsQuery(d)(ctx, nil, tools.RowsQueryInput{Expression: ".importer"})
	assert.Equal(t, tools.ErrCodeUnauthorized, code(t, err))
	_, _, err = tools.ToolExport(d)(ctx, nil, tools.EmptyInput{})
	assert.Equal(t, tools.ErrCodeUnauthorized, code(t, err))
}

func TestSearch_ReturnsPageAndSerializesDates(t *testing.T) {
	d, srv := newDeps(t)
	login(t, d, "viewer", "viewer-pw")

	_, out, err := tools.ToolSearch(d)(context.Background(), nil, tools.SearchInput{
		Importer:  "Acme",
		StartDate: "2024-03-01",
		EndDate:   "2024/03/31",
	})
	require.NoError(t, err)
	assert.Equal(t, string(app.RouteDataQuery), out.Route)
	assert.Len(t, pageRows(t, out.Page), 2)

	calls := srv.Calls(http.MethodGet, "/data/search")
	require.Len(t, calls, 1)
	q := calls[0].Query
	assert.Equal(t, "2024-03-01", q.Get("start_date"))
	assert.Equal(t, "2024-03-31", q.Get("end_date"))
	assert.Equal(t, "1", q.Get("page"))
}

func TestSearch_BadDateSendsNothing(t *testing.T) {
	d, srv := newDeps(t)
	login(t, d, "viewer", "viewer-pw")

	_, _, err := tools.ToolSearch(d)(context.Background(), nil, tools.SearchInput{StartDate: "March"})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
	assert.Empty(t, srv.Calls(http.MethodGet, "/data/search"))
}

func TestTableChange_NewPageSizeReturnsToFirstPage(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, "viewer", "viewer-pw")

	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{Page: 2, PageSize: 1})
	require.NoError(t, err)
	_, _, err = tools.ToolTableChange(d)(ctx, nil, tools.TableChangeInput{Page: 3, PageSize: 2, SortField: client.FieldImporter, SortOrder: "ascend"})
	require.NoError(t, err)

	calls := srv.Calls(http.MethodGet, "/data/search")
	q := calls[len(calls)-1].Query
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "2", q.Get("page_size"))
	assert.Equal(t, "asc", q.Get("sort_order"))
}

func TestRowsQuery(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	login(t, d, "viewer", "viewer-pw")
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{})
	require.NoError(t, err)

	_, out, err := tools.ToolRowsQuery(d)(ctx, nil, tools.RowsQueryInput{Expression: ".importer", Deduplicate: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"Acme", "Globex"}, out.Values)

	_, _, err = tools.ToolRowsQuery(d)(ctx, nil, tools.RowsQueryInput{Expression: ".importer", Mode: "all"})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))

	_, _, err = tools.ToolRowsQuery(d)(ctx, nil, tools.RowsQueryInput{Expression: ".[[["})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
}

func TestRecordSave_ViewerIsForbidden(t *testing.T) {
	d, srv := newDeps(t)
	login(t, d, "viewer", "viewer-pw")

	_, _, err := tools.ToolRecordSave(d)(context.Background(), nil, tools.RecordSaveInput{CustomsCode: "811010", Date: "2024-03-01"})
	assert.Equal(t, tools.ErrCodeForbidden, code(t, err))
	assert.Empty(t, srv.Calls(http.MethodPost, "/data"))
}

func TestRecordSave_CreateValidateAndEdit(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, apitest.AdminUser, apitest.AdminPassword)
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{})
	require.NoError(t, err)

	_, _, err = tools.ToolRecordSave(d)(ctx, nil, tools.RecordSaveInput{Importer: "NoCode"})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
	assert.Empty(t, srv.Calls(http.MethodPost, "/data"))

	_, out, err := tools.ToolRecordSave(d)(ctx, nil, tools.RecordSaveInput{
		CustomsCode: "811010",
		Date:        "2024-03-10",
		Importer:    "Initech",
		AmountUSD:   "1,250.5",
	})
	require.NoError(t, err)
	assert.Len(t, srv.Calls(http.MethodPost, "/data"), 1)
	assert.Len(t, srv.Records(), 4)
	assert.Len(t, pageRows(t, out.Page), 4)

	var id string
	for _, r := range srv.Records() {
		if r.Importer == "Initech" {
			id = r.ID
		}
	}
	require.NotEmpty(t, id)
	_, _, err = tools.ToolRecordSave(d)(ctx, nil, tools.RecordSaveInput{ID: id, Exporter: "Hooli"})
	require.NoError(t, err)
	for _, r := range srv.Records() {
		if r.ID == id {
			assert.Equal(t, "Hooli", r.Exporter)
			assert.Equal(t, "Initech", r.Importer)
		}
	}
}

func TestRecordDelete_RequiresExactlyOneTarget(t *testing.T) {
	d, _ := newDeps(t)
	login(t, d, apitest.AdminUser, apitest.AdminPassword)

	_, _, err := tools.ToolRecordDelete(d)(context.Background(), nil, tools.RecordDeleteInput{})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
	_, _, err = tools.ToolRecordDelete(d)(context.Background(), nil, tools.RecordDeleteInput{ID: "rec-1", Selected: true})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
}

func TestSelectAndDeleteSelected(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, apitest.AdminUser, apitest.AdminPassword)
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{CustomsCode: "811010"})
	require.NoError(t, err)

	ids := make([]string, 0, 2)
	for _, r := range srv.Records() {
		if r.CustomsCode == "811010" {
			ids = append(ids, r.ID)
		}
	}
	_, sel, err := tools.ToolSelectRows(d)(ctx, nil, tools.SelectRowsInput{IDs: ids})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, sel.Selected)

	_, _, err = tools.ToolSelectRows(d)(ctx, nil, tools.SelectRowsInput{IDs: []string{"missing"}})
	assert.Equal(t, tools.ErrCodeNotFound, code(t, err))

	_, out, err := tools.ToolRecordDelete(d)(ctx, nil, tools.RecordDeleteInput{Selected: true})
	require.NoError(t, err)
	assert.Len(t, srv.Records(), 1)
	assert.Empty(t, pageRows(t, out.Page))
}

func TestDeletePrepareAndConfirm(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, apitest.AdminUser, apitest.AdminPassword)
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{ExportCountry: "Vietnam (VN)"})
	require.NoError(t, err)

	_, prep, err := tools.ToolDeletePrepare(d)(ctx, nil, tools.DeletePrepareInput{Scope: "all_matching"})
	require.NoError(t, err)
	conf, ok := prep.Confirmation.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), conf["matching"])
	token, _ := conf["token"].(string)
	require.NotEmpty(t, token)
	assert.Empty(t, srv.Calls(http.MethodPost, "/data/bulk-delete-by-condition"))

	_, _, err = tools.ToolDeleteConfirm(d)(ctx, nil, tools.DeleteConfirmInput{Token: token})
	require.NoError(t, err)
	assert.Len(t, srv.Records(), 1)

	_, _, err = tools.ToolDeleteConfirm(d)(ctx, nil, tools.DeleteConfirmInput{Token: token})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
}

func TestExport_EmptyResult(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	login(t, d, "viewer", "viewer-pw")
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{CustomsCode: "000000"})
	require.NoError(t, err)

	_, _, err = tools.ToolExport(d)(ctx, nil, tools.EmptyInput{})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))
}

func TestExport_WritesWorkbook(t *testing.T) {
	d, _ := newDeps(t)
	ctx := context.Background()
	login(t, d, "viewer", "viewer-pw")
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{})
	require.NoError(t, err)

	_, out, err := tools.ToolExport(d)(ctx, nil, tools.EmptyInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Rows)
	assert.True(t, strings.HasSuffix(out.Name, ".xlsx"))
	assert.NotEmpty(t, out.Location)
}

func TestImportExcel_InlineContent(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, apitest.AdminUser, apitest.AdminPassword)

	_, _, err := tools.ToolImportExcel(d)(ctx, nil, tools.ImportInput{Filename: "data.xlsx"})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))

	_, _, err = tools.ToolImportExcel(d)(ctx, nil, tools.ImportInput{
		Filename:      "data.csv",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("a,b")),
	})
	assert.Equal(t, tools.ErrCodeInvalidInput, code(t, err))

	_, out, err := tools.ToolImportExcel(d)(ctx, nil, tools.ImportInput{
		Filename:      "data.xlsx",
		ContentBase64: base64.StdEncoding.EncodeToString([]byte("PK")),
	})
	require.NoError(t, err)
	assert.Equal(t, "data.xlsx", out.Filename)
	assert.Len(t, srv.Calls(http.MethodPost, "/import/excel"), 1)
}

func TestAISearch_MalformedReply(t *testing.T) {
	d, srv := newDeps(t)
	login(t, d, apitest.AdminUser, apitest.AdminPassword)
	srv.AIReply = `{"start_date": "next week"}`

	_, _, err := tools.ToolAISearch(d)(context.Background(), nil, tools.AISearchInput{Text: "下周的数据"})
	assert.Equal(t, tools.ErrCodeAIParse, code(t, err))
}

func TestUsers_ListSaveDelete(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, apitest.AdminUser, apitest.AdminPassword)

	_, list, err := tools.ToolUsersList(d)(ctx, nil, tools.UsersListInput{IncludeCodeOptions: true})
	require.NoError(t, err)
	assert.Len(t, list.Users, 2)
	assert.ElementsMatch(t, []string{"811010", "260400"}, list.CodeOptions)

	_, saved, err := tools.ToolUserSave(d)(ctx, nil, tools.UserSaveInput{
		Username:            "analyst",
		Password:            "pw",
		AllowedCustomsCodes: []string{"811010"},
	})
	require.NoError(t, err)
	user, ok := saved.User.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "analyst", user["username"])

	_, _, err = tools.ToolUserSave(d)(ctx, nil, tools.UserSaveInput{Username: "analyst", IsAdmin: true, Update: true})
	require.NoError(t, err)
	u, ok := srv.User("analyst")
	require.True(t, ok)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "pw", srv.Password("analyst"))

	_, _, err = tools.ToolUserDelete(d)(ctx, nil, tools.UserDeleteInput{Username: apitest.AdminUser})
	assert.Equal(t, tools.ErrCodeForbidden, code(t, err))

	_, after, err := tools.ToolUserDelete(d)(ctx, nil, tools.UserDeleteInput{Username: "analyst"})
	require.NoError(t, err)
	assert.Len(t, after.Users, 2)
}

func TestUsers_ViewerRedirected(t *testing.T) {
	d, srv := newDeps(t)
	login(t, d, "viewer", "viewer-pw")

	_, _, err := tools.ToolUsersList(d)(context.Background(), nil, tools.UsersListInput{})
	assert.Equal(t, tools.ErrCodeForbidden, code(t, err))
	assert.Equal(t, app.RouteDataQuery, d.App.Router.Current().Path)
	assert.Empty(t, srv.Calls(http.MethodGet, "/user"))
}

func TestExpiredSessionMapsToUnauthorized(t *testing.T) {
	d, srv := newDeps(t)
	ctx := context.Background()
	login(t, d, "viewer", "viewer-pw")
	_, _, err := tools.ToolSearch(d)(ctx, nil, tools.SearchInput{})
	require.NoError(t, err)

	srv.RevokeTokens()
	_, _, err = tools.ToolTableChange(d)(ctx, nil, tools.TableChangeInput{Page: 1})
	assert.Equal(t, tools.ErrCodeUnauthorized, code(t, err))

	_, out, err := tools.ToolWhoami(d)(ctx, nil, tools.EmptyInput{})
	require.NoError(t, err)
	assert.False(t, out.Authenticated)
	assert.Equal(t, string(app.RouteLogin), out.Route)
	assert.Equal(t, string(app.RouteDataQuery), out.From)
}
