// Package dataquery is the state machine behind the customs data table.
//
// A Controller owns the filter form, pagination, result rows, the open edit
// draft, the row selection and pending delete confirmations. Every query
// goes through Loading and settles back into Idle, recording Success or
// Failed as the outcome of the last settled query. Queries are
// fenced: each dispatch gets a sequence number and cancels its predecessor,
// and a response whose number is no longer the latest is dropped, so the
// last query issued is the one shown.
package dataquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Phase is the query lifecycle position.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseFailed  Phase = "failed"
)

var (
	// ErrSuperseded is returned to a caller whose query was overtaken by a
	// newer one. Its response, if any, was discarded.
	ErrSuperseded = errors.New("query superseded by a newer one")

	// ErrAdminRequired is returned by mutations attempted by non-admins.
	ErrAdminRequired = fmt.Errorf("admin privileges required: %w", client.ErrForbidden)
)

// Permissions answers role questions about the signed-in user.
type Permissions interface {
	IsAdmin() bool
}

// Config tunes a Controller.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	ExportPrefix    string
}

// Controller is the query/result state machine. It is safe for concurrent
// use; network calls run outside the lock.
type Controller struct {
	api    *client.Client
	perms  Permissions
	notes  notify.Notifier
	sink   export.Sink
	cfg    Config
	now    func() time.Time
	prompt *message.Printer

	mu       sync.Mutex
	phase    Phase
	outcome  Phase
	lastErr  string
	criteria Criteria
	page     PageRequest
	last     *Query // last query that was issued and settled successfully
	rows     []Row
	total    int
	pages    int
	draft    *Draft
	keys     *rowKeys
	selected *selection
	pending  map[string]pendingDelete

	seq    uint64
	cancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for export names and
// confirmation expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithSink sets where exported workbooks are stored.
func WithSink(s export.Sink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// New creates a Controller.
func New(api *client.Client, perms Permissions, notes notify.Notifier, cfg Config, opts ...Option) *Controller {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.ExportPrefix == "" {
		cfg.ExportPrefix = "海关数据"
	}
	if notes == nil {
		notes = notify.Log{}
	}
	c := &Controller{
		api:    api,
		perms:  perms,
		notes:  notes,
		cfg:    cfg,
		now:    time.Now,
		prompt: message.NewPrinter(language.SimplifiedChinese),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetLocked()
	return c
}

func (c *Controller) resetLocked() {
	c.phase = PhaseIdle
	c.outcome = ""
	c.lastErr = ""
	c.criteria = DefaultCriteria()
	c.page = PageRequest{Page: 1, PageSize: c.cfg.DefaultPageSize}
	c.last = nil
	c.rows = []Row{}
	c.total = 0
	c.pages = 0
	c.draft = nil
	c.keys = newRowKeys()
	c.selected = newSelection()
	c.pending = make(map[string]pendingDelete)
}

// Search runs q and replaces the visible page with its result. On failure
// the previous rows stay untouched and an error notice is emitted.
func (c *Controller) Search(ctx context.Context, q Query) (*Snapshot, error) {
	q.Criteria = q.Criteria.withDefaults()
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = c.cfg.DefaultPageSize
	}
	if err := c.validate(q); err != nil {
		notify.Error(ctx, c.notes, err.Error())
		return nil, err
	}
	return c.dispatch(ctx, q)
}

func (c *Controller) validate(q Query) error {
	errs := form.Errors{}
	if q.Page < 1 {
		errs.Add("page", "must be at least 1")
	}
	if q.PageSize < 1 || q.PageSize > c.cfg.MaxPageSize {
		errs.Add("page_size", fmt.Sprintf("must be between 1 and %d", c.cfg.MaxPageSize))
	}
	if err := q.Criteria.validate(); err != nil {
		for k, v := range err.(form.Errors) {
			errs.Add(k, v)
		}
	}
	return errs.Err()
}

// Submit searches with new criteria from the first page, keeping the page
// size.
func (c *Controller) Submit(ctx context.Context, criteria Criteria) (*Snapshot, error) {
	c.mu.Lock()
	size := c.page.PageSize
	c.mu.Unlock()
	return c.Search(ctx, Query{Criteria: criteria, PageRequest: PageRequest{Page: 1, PageSize: size}})
}

// ApplyIncoming replaces the form with criteria carried by a navigation
// (home quick search, AI search) and searches from the first page.
func (c *Controller) ApplyIncoming(ctx context.Context, criteria Criteria) (*Snapshot, error) {
	merged := DefaultCriteria()
	merged.CustomsCode = criteria.CustomsCode
	merged.ImportCountry = criteria.ImportCountry
	merged.ExportCountry = criteria.ExportCountry
	merged.Importer = criteria.Importer
	merged.Exporter = criteria.Exporter
	merged.DateRange = criteria.DateRange
	if criteria.SortBy != "" {
		merged.SortBy, merged.SortOrder = criteria.SortBy, criteria.SortOrder
	}
	return c.Submit(ctx, merged)
}

// TableChange is a pagination and/or header sort event.
type TableChange struct {
	Page      int
	PageSize  int
	SortField string
	SortOrder string // ascend, descend or empty
}

// ChangeTable applies a table event to the current form and searches. A
// page size different from the previous request resets to page 1. The
// column sort changes only when the event names a sort field.
func (c *Controller) ChangeTable(ctx context.Context, tc TableChange) (*Snapshot, error) {
	c.mu.Lock()
	criteria := c.criteria
	prev := c.page
	c.mu.Unlock()

	if tc.SortField != "" {
		criteria.SortBy, criteria.SortOrder = SortFor(tc.SortField, tc.SortOrder)
	}

	next := prev
	if tc.PageSize != 0 && tc.PageSize != prev.PageSize {
		next = PageRequest{Page: 1, PageSize: tc.PageSize}
	} else if tc.Page != 0 {
		next.Page = tc.Page
	}
	return c.Search(ctx, Query{Criteria: criteria, PageRequest: next})
}

// ChangePage moves to page with size, keeping the current sort.
func (c *Controller) ChangePage(ctx context.Context, page, size int) (*Snapshot, error) {
	c.mu.Lock()
	criteria := c.criteria
	prev := c.page
	c.mu.Unlock()

	next := PageRequest{Page: page, PageSize: size}
	if size != prev.PageSize {
		next.Page = 1
	}
	return c.Search(ctx, Query{Criteria: criteria, PageRequest: next})
}

// SortFromColumn applies a header sort and searches the current page.
func (c *Controller) SortFromColumn(ctx context.Context, field, order string) (*Snapshot, error) {
	c.mu.Lock()
	criteria := c.criteria
	page := c.page
	c.mu.Unlock()

	criteria.SortBy, criteria.SortOrder = SortFor(field, order)
	return c.Search(ctx, Query{Criteria: criteria, PageRequest: page})
}

// Refresh re-issues the last successful query. Without one it does nothing.
func (c *Controller) Refresh(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last == nil {
		snap := c.Snapshot()
		return &snap, nil
	}
	return c.dispatch(ctx, *last)
}

// Reset clears the filter form to its defaults. Rows stay as they are.
func (c *Controller) Reset() Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.criteria = DefaultCriteria()
	return c.criteria
}

// Teardown abandons everything: in-flight queries are cancelled and their
// responses dropped, and the state returns to its initial values.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.resetLocked()
}

func (c *Controller) dispatch(ctx context.Context, q Query) (*Snapshot, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	if c.cancel != nil {
		c.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.phase = PhaseLoading
	c.mu.Unlock()
	defer cancel()

	start := time.Now()
	res, err := c.api.Search(reqCtx, q.params())

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		slog.Debug("dropping superseded search response", slog.Uint64("seq", seq))
		if errors.Is(err, client.ErrUnauthorized) {
			// the session teardown superseded us; report why
			return nil, fmt.Errorf("searching: %w", err)
		}
		return nil, ErrSuperseded
	}
	c.cancel = nil

	if err == nil && len(res.Rows) > q.PageSize {
		err = fmt.Errorf("server returned %d rows for page size %d", len(res.Rows), q.PageSize)
	}
	if err != nil {
		c.phase = PhaseIdle
		c.outcome = PhaseFailed
		c.lastErr = err.Error()
		c.mu.Unlock()
		notify.Error(ctx, c.notes, "数据查询失败: "+err.Error())
		return nil, fmt.Errorf("searching: %w", err)
	}

	c.criteria = q.Criteria
	c.page = q.PageRequest
	c.rows = c.keys.rows(res.Rows)
	c.total = res.Total
	c.pages = res.TotalPages
	c.selected.retain(c.rows)
	c.phase = PhaseIdle
	c.outcome = PhaseSuccess
	c.lastErr = ""
	issued := q
	c.last = &issued
	snap := c.snapshotLocked()
	c.mu.Unlock()

	slog.Debug("search settled",
		slog.Uint64("seq", seq),
		slog.Int("rows", len(res.Rows)),
		slog.Int("total", res.Total),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return &snap, nil
}

func (c *Controller) requireAdmin(ctx context.Context) error {
	if c.perms == nil || !c.perms.IsAdmin() {
		notify.Error(ctx, c.notes, "权限不足: 仅管理员可执行此操作")
		return ErrAdminRequired
	}
	return nil
}

// refreshAfterMutation re-issues the last search; a failure there does not
// undo the mutation that already succeeded.
func (c *Controller) refreshAfterMutation(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		slog.Warn("refresh after mutation failed", slog.String("error", err.Error()))
	}
}
