package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/internal/apitest"
	"github.com/usestring/customs-mcp/pkg/client"
)

func f64(v float64) *float64 { return &v }

func loggedIn(t *testing.T, srv *apitest.Server) *client.Client {
	t.Helper()
	c := srv.Client()
	c.SetSession(client.StaticToken(srv.IssueToken(apitest.AdminUser)), nil)
	return c
}

func TestLogin_ReturnsToken(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	tok, err := srv.Client().Login(context.Background(), apitest.AdminUser, apitest.AdminPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)

	calls := srv.Calls(http.MethodPost, "/auth/login")
	require.Len(t, calls, 1)
	assert.Equal(t, "application/x-www-form-urlencoded", calls[0].Header.Get("Content-Type"))
	assert.Contains(t, string(calls[0].Body), "username=admin")
}

func TestLogin_BadPasswordIsAuthError(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	_, err := srv.Client().Login(context.Background(), apitest.AdminUser, "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrUnauthorized))
}

func TestSearch_SerializesQuery(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.Seed(
		client.Record{CustomsCode: "811010", Importer: "Acme", Date: client.NewDate(2024, 3, 15)},
		client.Record{CustomsCode: "811010", Importer: "Other", Date: client.NewDate(2024, 3, 16)},
	)

	c := loggedIn(t, srv)
	page, err := c.Search(context.Background(), client.SearchParams{
		Filter:    client.Filter{Importer: "Acme", StartDate: "2024-01-01"},
		Page:      1,
		PageSize:  20,
		SortBy:    client.FieldDate,
		SortOrder: client.SortDesc,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "Acme", page.Rows[0].Importer)
	assert.NotEmpty(t, page.Rows[0].ID)

	calls := srv.Calls(http.MethodGet, "/data/search")
	require.Len(t, calls, 1)
	q := calls[0].Query
	assert.Equal(t, "Acme", q.Get("importer"))
	assert.Equal(t, "2024-01-01", q.Get("start_date"))
	assert.False(t, q.Has("end_date"))
	assert.False(t, q.Has("customs_code"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "desc", q.Get("sort_order"))
	assert.NotEmpty(t, calls[0].Header.Get(client.RequestIDHeader))
	assert.True(t, strings.HasPrefix(calls[0].Header.Get("Authorization"), "Bearer "))
}

func TestUnauthorizedHook_FiresOnlyWithToken(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	fired := 0
	c := srv.Client()
	c.SetSession(client.StaticToken("stale"), func() { fired++ })

	_, err := c.CustomsCodes(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrUnauthorized))
	assert.Equal(t, 1, fired)

	_, err = c.Login(context.Background(), "nobody", "x")
	require.Error(t, err)
	assert.Equal(t, 1, fired)

	logins := srv.Calls(http.MethodPost, "/auth/login")
	require.Len(t, logins, 1)
	assert.Empty(t, logins[0].Header.Get("Authorization"))
}

func TestErrorMessage_DetailShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"not allowed"}`, "not allowed"},
		{"list detail", `{"detail":[{"msg":"field required"},{"msg":"bad date"}]}`, "field required; bad date"},
		{"raw body", `{"error":"boom"}`, `{"error":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := client.New(client.WithBaseURL(ts.URL)).CustomsCodes(context.Background())
			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, client.KindValidation, apiErr.Kind)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestForbidden_IsPermissionKind(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.AddUser(client.User{Username: "viewer"}, "pw")

	c := srv.Client()
	c.SetSession(client.StaticToken(srv.IssueToken("viewer")), nil)

	_, err := c.ListUsers(context.Background())
	assert.True(t, errors.Is(err, client.ErrForbidden))
}

func TestNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := client.New(client.WithBaseURL(url)).CustomsCodes(context.Background())
	var netErr *client.NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestBulkDeleteByCondition_Body(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.Seed(client.Record{CustomsCode: "811010", Date: client.NewDate(2024, 5, 1)})

	c := loggedIn(t, srv)
	res, err := c.BulkDeleteByCondition(context.Background(), client.Filter{CustomsCode: "811010", StartDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	calls := srv.Calls(http.MethodPost, "/data/bulk-delete-by-condition")
	require.Len(t, calls, 1)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &body))
	assert.Equal(t, map[string]any{"customs_code": "811010", "start_date": "2024-01-01"}, body["query_params"])
}

func TestCreateRecord_SendsNullNumbers(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c := loggedIn(t, srv)
	res, err := c.CreateRecord(context.Background(), client.Record{
		ID:          "ignored",
		CustomsCode: "811010",
		Date:        client.NewDate(2024, 3, 15),
		Quantity:    f64(12.5),
	})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", res.ID)

	calls := srv.Calls(http.MethodPost, "/data")
	require.Len(t, calls, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &body))
	assert.NotContains(t, body, "id")
	assert.Equal(t, "2024-03-15", body[client.FieldDate])
	assert.Equal(t, 12.5, body[client.FieldQuantity])
	assert.Contains(t, body, client.FieldMetricTons)
	assert.Nil(t, body[client.FieldMetricTons])
}

func TestImportExcel_Multipart(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	c := loggedIn(t, srv)
	res, err := c.ImportExcel(context.Background(), "march.xlsx", strings.NewReader("PK..."))
	require.NoError(t, err)
	assert.Equal(t, "march.xlsx", res.Filename)

	calls := srv.Calls(http.MethodPost, "/import/excel")
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].Header.Get("Content-Type"), "multipart/form-data"))
}

func TestUserUpdate_BlankPasswordOmitted(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.AddUser(client.User{Username: "bob"}, "old")

	c := loggedIn(t, srv)
	_, err := c.UpdateUser(context.Background(), "bob", client.UserUpdate{IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, "old", srv.Password("bob"))

	calls := srv.Calls(http.MethodPut, "/user/bob")
	require.Len(t, calls, 1)
	assert.NotContains(t, string(calls[0].Body), "password")
	assert.Contains(t, string(calls[0].Body), `"allowed_customs_codes":[]`)
}
