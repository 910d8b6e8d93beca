// Package app wires the client runtime together: session, data table,
// user management, option lists, AI search and the page router.
//
// It owns the one reaction every page shares: when the session ends
// (logout or a 401 from any call) all page state is abandoned and the
// router moves to /login.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/usestring/customs-mcp/internal/aisearch"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/options"
	"github.com/usestring/customs-mcp/internal/query"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/internal/users"
	"github.com/usestring/customs-mcp/pkg/client"
)

// App is one signed-in (or signing-in) client runtime.
type App struct {
	API     *client.Client
	Session *session.Store
	Options *options.Loader
	Data    *dataquery.Controller
	Users   *users.Manager
	AI      *aisearch.Service
	Rows    *query.Engine
	Router  *Router
	Notes   notify.Notifier

	tokens session.TokenStore
	unsub  func()
}

type settings struct {
	tokens session.TokenStore
	sink   export.Sink
	notes  notify.Notifier
	api    []client.Option
}

// Option configures New.
type Option func(*settings)

// WithTokenStore overrides the token store selected by configuration.
func WithTokenStore(ts session.TokenStore) Option {
	return func(s *settings) {
		s.tokens = ts
	}
}

// WithSink overrides the export sink selected by configuration.
func WithSink(sink export.Sink) Option {
	return func(s *settings) {
		s.sink = sink
	}
}

// WithNotifier sets where notices go. Defaults to the slog notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *settings) {
		s.notes = n
	}
}

// WithClientOptions appends API client options.
func WithClientOptions(opts ...client.Option) Option {
	return func(s *settings) {
		s.api = append(s.api, opts...)
	}
}

// New builds the runtime from cfg. Call Start to restore a persisted
// session and Close when done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var st settings
	for _, opt := range opts {
		opt(&st)
	}
	if st.notes == nil {
		st.notes = notify.Log{}
	}

	api := client.New(append([]client.Option{
		client.WithBaseURL(cfg.APIBaseURL),
		client.WithTimeout(cfg.HTTPClientTimeout),
	}, st.api...)...)

	if st.tokens == nil {
		ts, err := session.OpenTokenStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening token store: %w", err)
		}
		st.tokens = ts
	}
	if st.sink == nil {
		sink, err := export.NewSinkFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating export sink: %w", err)
		}
		st.sink = sink
	}

	sess := session.New(api, st.tokens)
	loader, err := options.NewLoader(api, cfg.OptionsCacheMax)
	if err != nil {
		return nil, err
	}
	ai, err := aisearch.NewService(api, loader)
	if err != nil {
		return nil, fmt.Errorf("creating AI search: %w", err)
	}
	engine, err := query.NewEngine(32)
	if err != nil {
		return nil, err
	}

	a := &App{
		API:     api,
		Session: sess,
		Options: loader,
		Data: dataquery.New(api, sess, st.notes, dataquery.Config{
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			ExportPrefix:    cfg.ExportPrefix,
		}, dataquery.WithSink(st.sink)),
		Users:  users.New(api, sess, loader, st.notes),
		AI:     ai,
		Rows:   engine,
		Router: NewRouter(sess, st.notes),
		Notes:  st.notes,
		tokens: st.tokens,
	}
	a.unsub = sess.Subscribe(a.onSession)
	return a, nil
}

// Start restores a persisted session and lands on the matching page.
func (a *App) Start(ctx context.Context) error {
	err := a.Session.Start(ctx)
	if a.Session.Snapshot().IsAuthenticated {
		if _, navErr := a.Router.Navigate(ctx, RouteHome, nil); navErr != nil {
			return navErr
		}
	}
	return err
}

// Close releases the token store.
func (a *App) Close() error {
	if a.unsub != nil {
		a.unsub()
	}
	if c, ok := a.tokens.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (a *App) onSession(ev session.Event) {
	switch {
	case ev.Torndown():
		a.Data.Teardown()
		a.Users.Reset()
		a.Options.InvalidateAll()
		loc := a.Router.RedirectToLogin()
		slog.Info("session ended, page state abandoned",
			slog.String("reason", string(ev.Reason)),
			slog.String("from", string(loc.From)),
		)
		if ev.Reason == session.ReasonExpired {
			notify.Warn(context.Background(), a.Notes, "登录已过期，请重新登录")
		}
	case ev.State == session.StateAuthenticated && ev.Reason == session.ReasonLogin:
		// a different account may be signing in
		a.Data.Teardown()
		a.Users.Reset()
		a.Options.InvalidateAll()
	}
}
