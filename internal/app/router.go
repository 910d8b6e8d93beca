package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Route is a page path.
type Route string

const (
	RouteLogin     Route = "/login"
	RouteHome      Route = "/"
	RouteDataQuery Route = "/data-query"
	RouteImport    Route = "/import"
	RouteUsers     Route = "/users"
)

var routes = map[Route]struct{ auth, admin bool }{
	RouteLogin:     {},
	RouteHome:      {auth: true},
	RouteDataQuery: {auth: true},
	RouteImport:    {auth: true, admin: true},
	RouteUsers:     {auth: true, admin: true},
}

var (
	// ErrUnknownRoute is returned for a path no page serves.
	ErrUnknownRoute = errors.New("page not found")

	// ErrLoginRequired is returned when a guarded page is opened without a
	// session. The router moves to /login remembering the target.
	ErrLoginRequired = fmt.Errorf("login required: %w", client.ErrUnauthorized)

	// ErrAdminRequired is returned when an admin page is opened by a
	// non-admin. The router moves to the data page.
	ErrAdminRequired = fmt.Errorf("admin privileges required: %w", client.ErrForbidden)
)

// Location is the current page plus the state a navigation carried.
type Location struct {
	Path Route `json:"path"`
	// From is the page a login redirect interrupted.
	From Route `json:"from,omitempty"`
	// Criteria is handed to the data page by quick and AI search.
	Criteria *dataquery.Criteria `json:"criteria,omitempty"`
}

// AuthState is what the guards inspect.
type AuthState interface {
	Snapshot() session.Snapshot
}

// Router tracks the current page and applies route guards.
type Router struct {
	auth  AuthState
	notes notify.Notifier

	mu      sync.Mutex
	current Location
}

// NewRouter starts at /login.
func NewRouter(auth AuthState, notes notify.Notifier) *Router {
	if notes == nil {
		notes = notify.Log{}
	}
	return &Router{auth: auth, notes: notes, current: Location{Path: RouteLogin}}
}

// Current returns the current location.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate moves to path if the guards allow it. A refused navigation still
// moves: to /login when signed out, to the data page when not an admin.
func (r *Router) Navigate(ctx context.Context, path Route, criteria *dataquery.Criteria) (Location, error) {
	guard, ok := routes[path]
	if !ok {
		return r.Current(), fmt.Errorf("%s: %w", path, ErrUnknownRoute)
	}

	snap := r.auth.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case path == RouteLogin && snap.IsAuthenticated:
		r.current = Location{Path: RouteHome}
		return r.current, nil
	case guard.auth && !snap.IsAuthenticated:
		r.current = Location{Path: RouteLogin, From: path}
		return r.current, ErrLoginRequired
	case guard.admin && (snap.User == nil || !snap.User.IsAdmin):
		notify.Error(ctx, r.notes, "没有管理员权限，无法访问该页面")
		r.current = Location{Path: RouteDataQuery}
		return r.current, ErrAdminRequired
	}
	r.current = Location{Path: path, Criteria: criteria}
	return r.current, nil
}

// RedirectToLogin abandons the current page.
func (r *Router) RedirectToLogin() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.current.Path
	if from == RouteLogin {
		from = ""
	}
	r.current = Location{Path: RouteLogin, From: from}
	return r.current
}

// AfterLogin returns to the page a login redirect interrupted, or home.
func (r *Router) AfterLogin(ctx context.Context) (Location, error) {
	r.mu.Lock()
	target := r.current.From
	r.mu.Unlock()
	if target == "" {
		target = RouteHome
	}
	loc, err := r.Navigate(ctx, target, nil)
	if errors.Is(err, ErrAdminRequired) {
		// the interrupted page was admin-only; the redirect already landed on /data-query
		return loc, nil
	}
	return loc, err
}
