// Package users holds the admin-only user management state: the account
// list and the create/edit/delete cycle over it.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/options"
	"github.com/usestring/customs-mcp/pkg/client"
)

// MaxUsernameLen is the longest username accepted by the server.
const MaxUsernameLen = 50

var (
	// ErrAdminRequired is returned when a non-admin uses the manager.
	ErrAdminRequired = fmt.Errorf("admin privileges required: %w", client.ErrForbidden)

	// ErrProtectedAccount is returned when deleting the bootstrap admin or
	// the signed-in account.
	ErrProtectedAccount = errors.New("this account cannot be deleted")

	// ErrSessionChanged is returned by a refresh overtaken by a sign-out or
	// account switch. Its result was discarded.
	ErrSessionChanged = errors.New("session changed while loading users")
)

// Identity reports the signed-in user.
type Identity interface {
	User() (*client.User, error)
}

// Input is the user editor form. On edit an empty Password leaves the
// stored one unchanged; Username is ignored since it cannot change.
// An empty AllowedCustomsCodes grants access to every code.
type Input struct {
	Username            string   `json:"username"`
	Password            string   `json:"password,omitempty"`
	IsAdmin             bool     `json:"is_admin"`
	AllowedCustomsCodes []string `json:"allowed_customs_codes"`
}

// Manager is the user list state. It is safe for concurrent use.
type Manager struct {
	api   *client.Client
	who   Identity
	opts  *options.Loader
	notes notify.Notifier

	mu      sync.Mutex
	users   []client.User
	loading bool
	gen     uint64 // bumped by Reset; older refreshes are dropped
}

// New creates a Manager. opts may be nil, in which case code options are
// fetched directly.
func New(api *client.Client, who Identity, opts *options.Loader, notes notify.Notifier) *Manager {
	if notes == nil {
		notes = notify.Log{}
	}
	return &Manager{api: api, who: who, opts: opts, notes: notes, users: []client.User{}}
}

func (m *Manager) admin(ctx context.Context) (*client.User, error) {
	u, err := m.who.User()
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin {
		notify.Error(ctx, m.notes, "权限不足: 仅管理员可管理用户")
		return nil, ErrAdminRequired
	}
	return u, nil
}

// Users returns the last loaded list.
func (m *Manager) Users() []client.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]client.User(nil), m.users...)
}

// Reset forgets the loaded list. A refresh still in flight is discarded.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.users = []client.User{}
	m.loading = false
}

// Loading reports whether a list refresh is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Refresh reloads the user list. On failure the previous list is kept.
func (m *Manager) Refresh(ctx context.Context) ([]client.User, error) {
	if _, err := m.admin(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.loading = true
	gen := m.gen
	m.mu.Unlock()

	list, err := m.api.ListUsers(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil, fmt.Errorf("listing users: %w", ErrSessionChanged)
	}
	m.loading = false
	if err != nil {
		notify.Error(ctx, m.notes, "获取用户列表失败: "+err.Error())
		return nil, err
	}
	for i := range list {
		if list[i].AllowedCustomsCodes == nil {
			list[i].AllowedCustomsCodes = []string{}
		}
	}
	m.users = list
	return append([]client.User(nil), list...), nil
}

// Create adds an account. Username and password are required.
func (m *Manager) Create(ctx context.Context, in Input) (*client.User, error) {
	if _, err := m.admin(ctx); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	errs := form.Errors{}
	switch {
	case in.Username == "":
		errs.Add("username", "required")
	case utf8.RuneCountInString(in.Username) > MaxUsernameLen:
		errs.Add("username", fmt.Sprintf("at most %d characters", MaxUsernameLen))
	}
	if in.Password == "" {
		errs.Add("password", "required")
	}
	if err := errs.Err(); err != nil {
		notify.Error(ctx, m.notes, err.Error())
		return nil, err
	}

	u, err := m.api.CreateUser(ctx, client.UserCreate{
		Username:            in.Username,
		Password:            in.Password,
		IsAdmin:             in.IsAdmin,
		AllowedCustomsCodes: codes(in.AllowedCustomsCodes),
	})
	if err != nil {
		notify.Error(ctx, m.notes, "创建用户失败: "+err.Error())
		return nil, err
	}
	notify.Success(ctx, m.notes, "用户创建成功")
	m.refreshAfterMutation(ctx)
	return u, nil
}

// Update edits an account. A blank password is not sent.
func (m *Manager) Update(ctx context.Context, username string, in Input) (*client.User, error) {
	if _, err := m.admin(ctx); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, form.Invalid("username", "required")
	}
	u, err := m.api.UpdateUser(ctx, username, client.UserUpdate{
		Password:            in.Password,
		IsAdmin:             in.IsAdmin,
		AllowedCustomsCodes: codes(in.AllowedCustomsCodes),
	})
	if err != nil {
		notify.Error(ctx, m.notes, "更新用户失败: "+err.Error())
		return nil, err
	}
	if m.opts != nil {
		m.opts.Invalidate(username)
	}
	notify.Success(ctx, m.notes, "用户更新成功")
	m.refreshAfterMutation(ctx)
	return u, nil
}

// Delete removes an account. The bootstrap admin and the signed-in account
// are refused without contacting the server.
func (m *Manager) Delete(ctx context.Context, username string) error {
	me, err := m.admin(ctx)
	if err != nil {
		return err
	}
	if username == client.BootstrapAdmin || username == me.Username {
		notify.Warn(ctx, m.notes, "不能删除该用户")
		return fmt.Errorf("deleting %q: %w", username, ErrProtectedAccount)
	}
	if err := m.api.DeleteUser(ctx, username); err != nil {
		notify.Error(ctx, m.notes, "删除用户失败: "+err.Error())
		return err
	}
	if m.opts != nil {
		m.opts.Invalidate(username)
	}
	notify.Success(ctx, m.notes, "用户删除成功")
	m.refreshAfterMutation(ctx)
	return nil
}

// CodeOptions lists the customs codes offered by the permission editor.
func (m *Manager) CodeOptions(ctx context.Context) ([]string, error) {
	me, err := m.admin(ctx)
	if err != nil {
		return nil, err
	}
	if m.opts != nil {
		lists, err := m.opts.Load(ctx, me.Username)
		if err != nil {
			return nil, err
		}
		return lists.CustomsCodes, nil
	}
	return m.api.CustomsCodes(ctx)
}

func (m *Manager) refreshAfterMutation(ctx context.Context) {
	if _, err := m.Refresh(ctx); err != nil {
		slog.Warn("refreshing users after mutation", slog.String("error", err.Error()))
	}
}

// codes normalizes the allow-list: trimmed, deduplicated, never nil.
func codes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
