package dataquery

// Snapshot is an immutable view of the table state.
type Snapshot struct {
	Phase      Phase       `json:"phase"`
	Outcome    Phase       `json:"outcome,omitempty"` // success or failed, once a query has settled
	Error      string      `json:"error,omitempty"`
	Criteria   Criteria    `json:"criteria"`
	Page       PageRequest `json:"page"`
	Rows       []Row       `json:"rows"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
	Summary    string      `json:"summary"`
	Searched   bool        `json:"searched"`
	Draft      *Draft      `json:"draft,omitempty"`
	Selected   []string    `json:"selected"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	rows := make([]Row, len(c.rows))
	copy(rows, c.rows)
	var draft *Draft
	if c.draft != nil {
		d := *c.draft
		draft = &d
	}
	return Snapshot{
		Phase:      c.phase,
		Outcome:    c.outcome,
		Error:      c.lastErr,
		Criteria:   c.criteria,
		Page:       c.page,
		Rows:       rows,
		Total:      c.total,
		TotalPages: c.pages,
		Summary:    c.prompt.Sprintf("共 %d 条记录，共 %d 页", c.total, c.pages),
		Searched:   c.last != nil,
		Draft:      draft,
		Selected:   c.selected.ids(c.rows),
	}
}
