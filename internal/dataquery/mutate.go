package dataquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/pkg/client"
)

var (
	// ErrNoDraft is returned when a draft operation runs with no open draft.
	ErrNoDraft = errors.New("no record form is open")

	// ErrDraftOpen is returned when opening a draft while another is open.
	ErrDraftOpen = errors.New("another record form is already open")

	// ErrUnknownRow is returned for an id that is not on the visible page.
	ErrUnknownRow = fmt.Errorf("record is not on the current page: %w", client.ErrNotFound)

	// ErrUnknownConfirmation is returned for a missing, used or expired
	// delete confirmation.
	ErrUnknownConfirmation = errors.New("delete confirmation not found or expired")
)

// ConfirmationTTL bounds how long a prepared delete may wait.
const ConfirmationTTL = 5 * time.Minute

// OpenCreate opens an empty draft in create mode.
func (c *Controller) OpenCreate(ctx context.Context) (*Draft, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft != nil {
		return nil, ErrDraftOpen
	}
	c.draft = &Draft{Mode: ModeCreate}
	d := *c.draft
	return &d, nil
}

// OpenEdit opens a draft bound to a visible record.
func (c *Controller) OpenEdit(ctx context.Context, id string) (*Draft, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft != nil {
		return nil, ErrDraftOpen
	}
	for _, r := range c.rows {
		if r.Record.ID == id {
			c.draft = &Draft{Mode: ModeEdit, ID: id, Fields: FieldsFromRecord(r.Record)}
			d := *c.draft
			return &d, nil
		}
	}
	return nil, ErrUnknownRow
}

// UpdateDraft edits the open draft's fields in place.
func (c *Controller) UpdateDraft(fn func(*DraftFields)) (*Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return nil, ErrNoDraft
	}
	fn(&c.draft.Fields)
	d := *c.draft
	return &d, nil
}

// CancelDraft closes the open draft without saving.
func (c *Controller) CancelDraft() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = nil
}

// CreateOrUpdate submits the open draft: create when it has no id, update
// otherwise. On success the draft closes and the last search is re-issued.
// A validation failure keeps the draft open and sends nothing.
func (c *Controller) CreateOrUpdate(ctx context.Context) (*client.WriteResult, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return nil, ErrNoDraft
	}
	draft := *c.draft
	c.mu.Unlock()

	rec, err := draft.Fields.Record()
	if err != nil {
		notify.Error(ctx, c.notes, err.Error())
		return nil, err
	}

	var res *client.WriteResult
	var verb string
	if draft.ID == "" {
		verb = "创建"
		res, err = c.api.CreateRecord(ctx, rec)
	} else {
		verb = "更新"
		res, err = c.api.UpdateRecord(ctx, draft.ID, rec)
	}
	if err != nil {
		notify.Error(ctx, c.notes, verb+"记录失败: "+err.Error())
		return nil, err
	}

	c.mu.Lock()
	c.draft = nil
	c.mu.Unlock()
	notify.Success(ctx, c.notes, verb+"记录成功")
	c.refreshAfterMutation(ctx)
	return res, nil
}

// DeleteOne deletes a single record and refreshes.
func (c *Controller) DeleteOne(ctx context.Context, id string) (*client.WriteResult, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, form.Invalid("id", "required")
	}
	res, err := c.api.DeleteRecord(ctx, id)
	if err != nil {
		notify.Error(ctx, c.notes, "删除失败: "+err.Error())
		return nil, err
	}
	notify.Success(ctx, c.notes, "删除成功")
	c.refreshAfterMutation(ctx)
	return res, nil
}

// Select marks visible rows by id. With replace the previous selection is
// dropped first.
func (c *Controller) Select(ids []string, replace bool) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID := make(map[string]uint32, len(c.rows))
	for _, r := range c.rows {
		byID[r.Record.ID] = r.Key
	}
	keys := make([]uint32, 0, len(ids))
	for _, id := range ids {
		k, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("selecting %q: %w", id, ErrUnknownRow)
		}
		keys = append(keys, k)
	}
	if replace {
		c.selected.clear()
	}
	c.selected.add(keys...)
	return c.selected.ids(c.rows), nil
}

// ClearSelection unchecks every row.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected.clear()
}

// DeleteSelected bulk-deletes the selected rows and refreshes.
func (c *Controller) DeleteSelected(ctx context.Context) (*client.WriteResult, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	ids := c.selected.ids(c.rows)
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil, form.Invalid("selection", "no rows selected")
	}
	return c.bulkDelete(ctx, ids)
}

func (c *Controller) bulkDelete(ctx context.Context, ids []string) (*client.WriteResult, error) {
	res, err := c.api.BulkDelete(ctx, ids)
	if err != nil {
		notify.Error(ctx, c.notes, "批量删除失败: "+err.Error())
		return nil, err
	}
	c.mu.Lock()
	c.selected.clear()
	c.mu.Unlock()
	notify.Success(ctx, c.notes, fmt.Sprintf("已删除 %d 条记录", res.Deleted))
	c.refreshAfterMutation(ctx)
	return res, nil
}

// DeleteScope picks what a delete-by-condition removes.
type DeleteScope string

const (
	// ScopeDisplayed removes only the rows on the current page.
	ScopeDisplayed DeleteScope = "displayed"
	// ScopeAllMatching removes every row matching the last search,
	// including rows never fetched.
	ScopeAllMatching DeleteScope = "all_matching"
)

// Confirmation describes a prepared delete awaiting ConfirmDelete.
type Confirmation struct {
	Token     string        `json:"token"`
	Scope     DeleteScope   `json:"scope"`
	Displayed int           `json:"displayed"`
	Matching  int           `json:"matching"`
	Affected  int           `json:"affected"`
	Filter    client.Filter `json:"filter"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type pendingDelete struct {
	Confirmation
	ids []string
}

// PrepareDeleteByCondition stages a delete of scope and returns the token
// ConfirmDelete needs. The confirmation states both the displayed row count
// and the server's match count for the last search.
func (c *Controller) PrepareDeleteByCondition(ctx context.Context, scope DeleteScope) (*Confirmation, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil, form.Invalid("scope", "run a search first")
	}

	now := c.now()
	for tok, p := range c.pending {
		if now.After(p.ExpiresAt) {
			delete(c.pending, tok)
		}
	}

	p := pendingDelete{Confirmation: Confirmation{
		Token:     uuid.NewString(),
		Scope:     scope,
		Displayed: len(c.rows),
		Matching:  c.total,
		Filter:    c.last.Criteria.Filter(),
		ExpiresAt: now.Add(ConfirmationTTL),
	}}
	switch scope {
	case ScopeDisplayed:
		if len(c.rows) == 0 {
			return nil, form.Invalid("scope", "no rows displayed")
		}
		p.ids = make([]string, len(c.rows))
		for i, r := range c.rows {
			p.ids[i] = r.Record.ID
		}
		p.Affected = len(p.ids)
	case ScopeAllMatching:
		if p.Filter.IsEmpty() {
			return nil, form.Invalid("scope", "refusing to delete without any filter condition")
		}
		p.Affected = c.total
	default:
		return nil, form.Invalid("scope", fmt.Sprintf("must be %q or %q", ScopeDisplayed, ScopeAllMatching))
	}
	c.pending[p.Token] = p
	out := p.Confirmation
	return &out, nil
}

// ConfirmDelete executes a prepared delete. Tokens are single use.
func (c *Controller) ConfirmDelete(ctx context.Context, token string) (*client.WriteResult, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	p, ok := c.pending[token]
	delete(c.pending, token)
	c.mu.Unlock()
	if !ok || c.now().After(p.ExpiresAt) {
		return nil, ErrUnknownConfirmation
	}

	slog.Info("confirmed delete",
		slog.String("scope", string(p.Scope)),
		slog.Int("affected", p.Affected),
	)
	if p.Scope == ScopeDisplayed {
		return c.bulkDelete(ctx, p.ids)
	}

	res, err := c.api.BulkDeleteByCondition(ctx, p.Filter)
	if err != nil {
		notify.Error(ctx, c.notes, "按条件删除失败: "+err.Error())
		return nil, err
	}
	notify.Success(ctx, c.notes, fmt.Sprintf("已删除 %d 条记录", res.Deleted))
	c.refreshAfterMutation(ctx)
	return res, nil
}
