package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/internal/apitest"
	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/users"
	"github.com/usestring/customs-mcp/pkg/client"
)

type identity client.User

func (i identity) User() (*client.User, error) {
	u := client.User(i)
	return &u, nil
}

func newManager(t *testing.T, me client.User) (*apitest.Server, *users.Manager, *notify.Recorder) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	if me.Username != apitest.AdminUser {
		srv.AddUser(me, "pw")
	}
	api := srv.Client()
	api.SetSession(client.StaticToken(srv.IssueToken(me.Username)), nil)
	notes := &notify.Recorder{}
	return srv, users.New(api, identity(me), nil, notes), notes
}

var admin = client.User{Username: apitest.AdminUser, IsAdmin: true}

func TestCreate_SendsEmptyCodeList(t *testing.T) {
	srv, m, _ := newManager(t, admin)

	u, err := m.Create(context.Background(), users.Input{Username: " alice ", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	calls := srv.Calls(http.MethodPost, "/user")
	require.Len(t, calls, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &body))
	assert.Equal(t, []any{}, body["allowed_customs_codes"])

	// list refreshed after the mutation
	names := []string{}
	for _, u := range m.Users() {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"admin", "alice"}, names)

	stored, ok := srv.User("alice")
	require.True(t, ok)
	assert.True(t, stored.Unrestricted())
}

func TestCreate_Validation(t *testing.T) {
	srv, m, notes := newManager(t, admin)

	_, err := m.Create(context.Background(), users.Input{Username: strings.Repeat("x", 51)})
	require.Error(t, err)
	var errs form.Errors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "password")
	assert.Empty(t, srv.Calls(http.MethodPost, "/user"))

	last, ok := notes.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestUpdate_BlankPasswordUnchanged(t *testing.T) {
	srv, m, _ := newManager(t, admin)
	srv.AddUser(client.User{Username: "bob"}, "original")

	u, err := m.Update(context.Background(), "bob", users.Input{IsAdmin: true, AllowedCustomsCodes: []string{"811010", " 811010", ""}})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, []string{"811010"}, u.AllowedCustomsCodes)
	assert.Equal(t, "original", srv.Password("bob"))

	calls := srv.Calls(http.MethodPut, "/user/bob")
	require.Len(t, calls, 1)
	assert.NotContains(t, string(calls[0].Body), "password")

	_, err = m.Update(context.Background(), "bob", users.Input{Password: "changed"})
	require.NoError(t, err)
	assert.Equal(t, "changed", srv.Password("bob"))
}

func TestDelete_ProtectedAccounts(t *testing.T) {
	me := client.User{Username: "root2", IsAdmin: true}
	srv, m, _ := newManager(t, me)
	ctx := context.Background()

	err := m.Delete(ctx, client.BootstrapAdmin)
	assert.ErrorIs(t, err, users.ErrProtectedAccount)
	err = m.Delete(ctx, "root2")
	assert.ErrorIs(t, err, users.ErrProtectedAccount)
	assert.Empty(t, srv.Calls(http.MethodDelete, "/user/admin"))

	srv.AddUser(client.User{Username: "carol"}, "pw")
	require.NoError(t, m.Delete(ctx, "carol"))
	_, ok := srv.User("carol")
	assert.False(t, ok)
}

func TestNonAdminRejected(t *testing.T) {
	srv, m, _ := newManager(t, client.User{Username: "viewer"})

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, users.ErrAdminRequired)
	assert.ErrorIs(t, err, client.ErrForbidden)
	assert.Empty(t, srv.Calls(http.MethodGet, "/user"))
}

func TestRefresh_FailureKeepsList(t *testing.T) {
	srv, m, _ := newManager(t, admin)
	ctx := context.Background()

	_, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, m.Users(), 1)

	srv.FailNext(http.MethodGet, "/user", http.StatusInternalServerError, "down")
	_, err = m.Refresh(ctx)
	require.Error(t, err)
	assert.Len(t, m.Users(), 1)
	assert.False(t, m.Loading())
}

func TestReset_ClearsListAndDropsInflightRefresh(t *testing.T) {
	srv, m, _ := newManager(t, admin)
	ctx := context.Background()

	_, err := m.Refresh(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, m.Users())

	release := srv.Hold(http.MethodGet, "/user")
	defer release()
	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return len(srv.Calls(http.MethodGet, "/user")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	m.Reset()
	assert.Empty(t, m.Users())

	release()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, users.ErrSessionChanged)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}
	assert.Empty(t, m.Users())
	assert.False(t, m.Loading())
}
