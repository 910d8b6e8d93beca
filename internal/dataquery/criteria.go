package dataquery

import (
	"strings"

	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/pkg/client"
)

// DateRange bounds the 日期 column, inclusive. Either end may be zero.
type DateRange struct {
	Start client.Date `json:"start"`
	End   client.Date `json:"end"`
}

// Criteria is the state of the filter form.
type Criteria struct {
	CustomsCode   string     `json:"customs_code,omitempty"`
	ImportCountry string     `json:"import_country,omitempty"`
	ExportCountry string     `json:"export_country,omitempty"`
	Importer      string     `json:"importer,omitempty"`
	Exporter      string     `json:"exporter,omitempty"`
	DateRange     *DateRange `json:"date_range,omitempty"`
	SortBy        string     `json:"sort_by"`
	SortOrder     string     `json:"sort_order"`
}

// DefaultCriteria is an empty filter sorted by date, newest first.
func DefaultCriteria() Criteria {
	return Criteria{SortBy: client.DefaultSortField, SortOrder: client.SortDesc}
}

// Filter flattens the criteria into the wire filter. The date range becomes
// start_date/end_date; an absent range omits both.
func (c Criteria) Filter() client.Filter {
	f := client.Filter{
		CustomsCode:   strings.TrimSpace(c.CustomsCode),
		ImportCountry: strings.TrimSpace(c.ImportCountry),
		ExportCountry: strings.TrimSpace(c.ExportCountry),
		Importer:      strings.TrimSpace(c.Importer),
		Exporter:      strings.TrimSpace(c.Exporter),
	}
	if c.DateRange != nil {
		f.StartDate = c.DateRange.Start.String()
		f.EndDate = c.DateRange.End.String()
	}
	return f
}

// withDefaults fills an unset sort with the default one.
func (c Criteria) withDefaults() Criteria {
	if c.SortBy == "" {
		c.SortBy = client.DefaultSortField
	}
	if c.SortOrder == "" {
		c.SortOrder = client.SortDesc
	}
	if c.DateRange != nil && c.DateRange.Start.IsZero() && c.DateRange.End.IsZero() {
		c.DateRange = nil
	}
	return c
}

func (c Criteria) validate() error {
	errs := form.Errors{}
	if !knownField(c.SortBy) {
		errs.Add("sort_by", "unknown column "+c.SortBy)
	}
	if c.SortOrder != client.SortAsc && c.SortOrder != client.SortDesc {
		errs.Add("sort_order", "must be asc or desc")
	}
	if r := c.DateRange; r != nil && !r.Start.IsZero() && !r.End.IsZero() && r.End.Time().Before(r.Start.Time()) {
		errs.Add("date_range", "end is before start")
	}
	return errs.Err()
}

func knownField(name string) bool {
	for _, f := range client.RecordFields {
		if f == name {
			return true
		}
	}
	return false
}

// Column sort orders as reported by a table header.
const (
	OrderAscend  = "ascend"
	OrderDescend = "descend"
)

// SortFor maps a column header sort to (sort_by, sort_order). An absent
// field or order falls back to the default sort.
func SortFor(field, order string) (string, string) {
	if field == "" {
		return client.DefaultSortField, client.SortDesc
	}
	switch order {
	case OrderAscend:
		return field, client.SortAsc
	case OrderDescend:
		return field, client.SortDesc
	}
	return client.DefaultSortField, client.SortDesc
}

// PageRequest selects one page of results.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Query is a complete search: criteria plus page.
type Query struct {
	Criteria Criteria
	PageRequest
}

func (q Query) params() client.SearchParams {
	return client.SearchParams{
		Filter:    q.Criteria.Filter(),
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.Criteria.SortBy,
		SortOrder: q.Criteria.SortOrder,
	}
}
