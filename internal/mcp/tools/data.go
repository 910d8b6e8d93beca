package tools

import (
	"context"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/query"
	"github.com/usestring/customs-mcp/pkg/client"
)

// PageOutput is the data table state after a tool call. Page holds rows,
// total count, pagination, the filter form and any open draft.
type PageOutput struct {
	Route   string          `json:"route"`
	Page    any             `json:"page,omitempty"`
	Notices []notify.Notice `json:"notices,omitzero"`
}

func pageOutput(d *Deps, snap *dataquery.Snapshot, notices []notify.Notice) (PageOutput, error) {
	if snap == nil {
		s := d.App.Data.Snapshot()
		snap = &s
	}
	page, err := ToAny(snap)
	if err != nil {
		return PageOutput{}, err
	}
	return PageOutput{
		Route:   string(d.App.Router.Current().Path),
		Page:    page,
		Notices: notices,
	}, nil
}

// SearchInput is the input for customs_search.
type SearchInput struct {
	CustomsCode   string `json:"customs_code,omitempty" jsonschema:"HS customs code, exact match"`
	ImportCountry string `json:"import_country,omitempty" jsonschema:"Importer country, e.g. China (CN)"`
	ExportCountry string `json:"export_country,omitempty" jsonschema:"Exporter country, e.g. Vietnam (VN)"`
	Importer      string `json:"importer,omitempty" jsonschema:"Importer name, substring match"`
	Exporter      string `json:"exporter,omitempty" jsonschema:"Exporter name, substring match"`
	StartDate     string `json:"start_date,omitempty" jsonschema:"Earliest date, YYYY-MM-DD"`
	EndDate       string `json:"end_date,omitempty" jsonschema:"Latest date, YYYY-MM-DD"`
	SortBy        string `json:"sort_by,omitempty" jsonschema:"Chinese record key to sort by (default: 日期)"`
	SortOrder     string `json:"sort_order,omitempty" jsonschema:"asc or desc (default: desc)"`
	Page          int    `json:"page,omitempty" jsonschema:"1-based page (default: 1)"`
	PageSize      int    `json:"page_size,omitempty" jsonschema:"Rows per page (default: current page size, max 100)"`
}

// Criteria converts the input to filter criteria.
func (in SearchInput) Criteria() (dataquery.Criteria, error) {
	c := dataquery.Criteria{
		CustomsCode:   in.CustomsCode,
		ImportCountry: in.ImportCountry,
		ExportCountry: in.ExportCountry,
		Importer:      in.Importer,
		Exporter:      in.Exporter,
		SortBy:        in.SortBy,
		SortOrder:     in.SortOrder,
	}
	errs := form.Errors{}
	var dr dataquery.DateRange
	if s := strings.TrimSpace(in.StartDate); s != "" {
		date, err := client.ParseDate(s)
		if err != nil {
			errs.Add("start_date", "not a date: "+s)
		}
		dr.Start = date
	}
	if s := strings.TrimSpace(in.EndDate); s != "" {
		date, err := client.ParseDate(s)
		if err != nil {
			errs.Add("end_date", "not a date: "+s)
		}
		dr.End = date
	}
	if err := errs.Err(); err != nil {
		return dataquery.Criteria{}, err
	}
	if !dr.Start.IsZero() || !dr.End.IsZero() {
		c.DateRange = &dr
	}
	return c, nil
}

// ToolSearch runs a data query and replaces the visible page.
func ToolSearch(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input SearchInput) (*sdkmcp.CallToolResult, PageOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input SearchInput) (*sdkmcp.CallToolResult, PageOutput, error) {
		ctx, notices := collect(ctx)
		criteria, err := input.Criteria()
		if err != nil {
			return nil, PageOutput{}, WrapError(err)
		}
		if _, err := d.App.Router.Navigate(ctx, app.RouteDataQuery, nil); err != nil {
			return nil, PageOutput{}, WrapError(err)
		}

		var snap *dataquery.Snapshot
		if input.Page == 0 && input.PageSize == 0 {
			snap, err = d.App.Data.Submit(ctx, criteria)
		} else {
			snap, err = d.App.Data.Search(ctx, dataquery.Query{
				Criteria:    criteria,
				PageRequest: dataquery.PageRequest{Page: input.Page, PageSize: input.PageSize},
			})
		}
		if err != nil {
			return nil, PageOutput{}, WrapError(err)
		}
		out, err := pageOutput(d, snap, notices())
		return nil, out, err
	}
}

// TableChangeInput is the input for customs_table_change.
type TableChangeInput struct {
	Page      int    `json:"page,omitempty" jsonschema:"Page to show"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"Rows per page; a new size returns to page 1"`
	SortField string `json:"sort_field,omitempty" jsonschema:"Column to sort by, one of the Chinese record keys such as 日期 or 金额美元"`
	SortOrder string `json:"sort_order,omitempty" jsonschema:"ascend, descend, or empty for the default sort"`
}

// ToolTableChange applies a pagination or header sort change to the current
// search.
func ToolTableChange(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input TableChangeInput) (*sdkmcp.CallToolResult, PageOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input TableChangeInput) (*sdkmcp.CallToolResult, PageOutput, error) {
		ctx, notices := collect(ctx)
		if _, err := d.App.Router.Navigate(ctx, app.RouteDataQuery, nil); err != nil {
			return nil, PageOutput{}, WrapError(err)
		}
		snap, err := d.App.Data.ChangeTable(ctx, dataquery.TableChange{
			Page:      input.Page,
			PageSize:  input.PageSize,
			SortField: input.SortField,
			SortOrder: input.SortOrder,
		})
		if err != nil {
			return nil, PageOutput{}, WrapError(err)
		}
		out, err := pageOutput(d, snap, notices())
		return nil, out, err
	}
}

// ToolResetFilter clears the filter form. Rows stay as they are until the
// next search.
func ToolResetFilter(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, PageOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, PageOutput, error) {
		d.App.Data.Reset()
		out, err := pageOutput(d, nil, nil)
		return nil, out, err
	}
}

// ExportOutput is the output for customs_export.
type ExportOutput struct {
	Name     string          `json:"name,omitempty"`
	Location string          `json:"location,omitempty"`
	Rows     int             `json:"rows"`
	Notices  []notify.Notice `json:"notices,omitzero"`
}

// ToolExport writes every row matching the last search to a workbook.
func ToolExport(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, ExportOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, ExportOutput, error) {
		ctx, notices := collect(ctx)
		if _, err := d.App.Router.Navigate(ctx, app.RouteDataQuery, nil); err != nil {
			return nil, ExportOutput{}, WrapError(err)
		}
		res, err := d.App.Data.Export(ctx)
		if err != nil {
			return nil, ExportOutput{}, WrapError(err)
		}
		return nil, ExportOutput{
			Name:     res.Name,
			Location: res.Location,
			Rows:     res.Rows,
			Notices:  notices(),
		}, nil
	}
}

// QuickSearchInput is the input for customs_quick_search.
type QuickSearchInput struct {
	Kind  string `json:"kind" jsonschema:"customs_code, export_country or import_country"`
	Value string `json:"value" jsonschema:"Value to filter by"`
}

// ToolQuickSearch opens the data page filtered by one field.
func ToolQuickSearch(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input QuickSearchInput) (*sdkmcp.CallToolResult, PageOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input QuickSearchInput) (*sdkmcp.CallToolResult, PageOutput, error) {
		ctx, notices := collect(ctx)
		snap, err := d.App.QuickSearch(ctx, app.QuickKind(input.Kind), input.Value)
		if err != nil {
			return nil, PageOutput{}, WrapError(err)
		}
		out, err := pageOutput(d, snap, notices())
		return nil, out, err
	}
}

// AISearchInput is the input for customs_ai_search.
type AISearchInput struct {
	Text string `json:"text" jsonschema:"Natural-language description of the trade data wanted"`
}

// ToolAISearch turns free text into filter criteria and searches with them.
func ToolAISearch(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input AISearchInput) (*sdkmcp.CallToolResult, PageOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input AISearchInput) (*sdkmcp.CallToolResult, PageOutput, error) {
		ctx, notices := collect(ctx)
		snap, err := d.App.AISearch(ctx, input.Text)
		if err != nil {
			return nil, PageOutput{}, WrapError(err)
		}
		out, err := pageOutput(d, snap, notices())
		return nil, out, err
	}
}

// RowsQueryInput is the input for customs_rows_query.
type RowsQueryInput struct {
	Expression  string `json:"expression" jsonschema:"jq expression; rows use ASCII keys such as customs_code, importer, amount_usd"`
	Mode        string `json:"mode,omitempty" jsonschema:"each (default) runs per row, page runs once over the array of rows"`
	Deduplicate bool   `json:"deduplicate,omitempty" jsonschema:"Remove duplicate values"`
	MaxResults  int    `json:"max_results,omitempty" jsonschema:"Max values to return (default: 1000)"`
}

// RowsQueryOutput is the output for customs_rows_query.
type RowsQueryOutput struct {
	Values     []any    `json:"values,omitzero"`
	Errors     []string `json:"errors,omitzero"`
	RawCount   int      `json:"raw_count"`
	MatchedIDs []string `json:"matched_ids,omitzero"`
}

// ToolRowsQuery runs a jq expression over the visible rows.
func ToolRowsQuery(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input RowsQueryInput) (*sdkmcp.CallToolResult, RowsQueryOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input RowsQueryInput) (*sdkmcp.CallToolResult, RowsQueryOutput, error) {
		if strings.TrimSpace(input.Expression) == "" {
			return nil, RowsQueryOutput{}, ErrInvalidInput("expression is required")
		}
		mode := query.Mode(input.Mode)
		if mode != "" && mode != query.ModeEach && mode != query.ModePage {
			return nil, RowsQueryOutput{}, ErrInvalidInput("mode must be 'each' or 'page'")
		}
		if _, err := d.App.Router.Navigate(ctx, app.RouteDataQuery, nil); err != nil {
			return nil, RowsQueryOutput{}, WrapError(err)
		}
		res, err := d.App.QueryRows(input.Expression, query.Options{
			Mode:        mode,
			Deduplicate: input.Deduplicate,
			MaxResults:  input.MaxResults,
		})
		if err != nil {
			return nil, RowsQueryOutput{}, ErrInvalidInput(err.Error())
		}
		return nil, RowsQueryOutput{
			Values:     res.Values,
			Errors:     res.Errors,
			RawCount:   res.RawCount,
			MatchedIDs: res.MatchedRowKeys,
		}, nil
	}
}
