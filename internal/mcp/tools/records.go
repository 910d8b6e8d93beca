package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/pkg/client"
)

// WriteOutput is the output of record mutations: the server's reply and
// the refreshed page.
type WriteOutput struct {
	Result  any             `json:"result,omitempty"`
	Route   string          `json:"route"`
	Page    any             `json:"page,omitempty"`
	Notices []notify.Notice `json:"notices,omitzero"`
}

func writeOutput(d *Deps, res *client.WriteResult, notices []notify.Notice) (WriteOutput, error) {
	page, err := pageOutput(d, nil, notices)
	if err != nil {
		return WriteOutput{}, err
	}
	out := WriteOutput{Route: page.Route, Page: page.Page, Notices: page.Notices}
	if res != nil {
		if out.Result, err = ToAny(res); err != nil {
			return WriteOutput{}, err
		}
	}
	return out, nil
}

// RecordSaveInput is the input for customs_record_save. Blank fields keep
// the edited record's value.
type RecordSaveInput struct {
	ID                 string `json:"id,omitempty" jsonschema:"Record to edit; must be on the visible page. Omit to create a new record"`
	CustomsCode        string `json:"customs_code,omitempty" jsonschema:"海关编码, required for new records"`
	ProductDescription string `json:"product_description,omitempty" jsonschema:"编码产品描述"`
	Date               string `json:"date,omitempty" jsonschema:"日期, YYYY-MM-DD, required for new records"`
	Importer           string `json:"importer,omitempty" jsonschema:"进口商"`
	ImportCountry      string `json:"import_country,omitempty" jsonschema:"进口商所在国家"`
	Exporter           string `json:"exporter,omitempty" jsonschema:"出口商"`
	ExportCountry      string `json:"export_country,omitempty" jsonschema:"出口商所在国家"`
	QuantityUnit       string `json:"quantity_unit,omitempty" jsonschema:"数量单位"`
	Quantity           string `json:"quantity,omitempty" jsonschema:"数量"`
	MetricTons         string `json:"metric_tons,omitempty" jsonschema:"公吨"`
	AmountUSD          string `json:"amount_usd,omitempty" jsonschema:"金额美元"`
	ProductDetail      string `json:"product_detail,omitempty" jsonschema:"详细产品名称"`
	BillOfLading       string `json:"bill_of_lading,omitempty" jsonschema:"提单号"`
	DataSource         string `json:"data_source,omitempty" jsonschema:"数据来源"`
	DeclarationNumber  string `json:"declaration_number,omitempty" jsonschema:"报关单号"`
}

func (in RecordSaveInput) apply(f *dataquery.DraftFields) {
	for _, p := range []struct {
		dst *string
		src string
	}{
		{&f.CustomsCode, in.CustomsCode},
		{&f.ProductDescription, in.ProductDescription},
		{&f.Date, in.Date},
		{&f.Importer, in.Importer},
		{&f.ImportCountry, in.ImportCountry},
		{&f.Exporter, in.Exporter},
		{&f.ExportCountry, in.ExportCountry},
		{&f.QuantityUnit, in.QuantityUnit},
		{&f.Quantity, in.Quantity},
		{&f.MetricTons, in.MetricTons},
		{&f.AmountUSD, in.AmountUSD},
		{&f.ProductDetail, in.ProductDetail},
		{&f.BillOfLading, in.BillOfLading},
		{&f.DataSource, in.DataSource},
		{&f.DeclarationNumber, in.DeclarationNumber},
	} {
		if p.src != "" {
			*p.dst = p.src
		}
	}
}

// ToolRecordSave creates a record, or updates a visible one when id is set.
// Any draft left open by an earlier failed save is discarded first.
func ToolRecordSave(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input RecordSaveInput) (*sdkmcp.CallToolResult, WriteOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input RecordSaveInput) (*sdkmcp.CallToolResult, WriteOutput, error) {
		ctx, notices := collect(ctx)
		data := d.App.Data
		data.CancelDraft()

		var err error
		if input.ID == "" {
			_, err = data.OpenCreate(ctx)
		} else {
			_, err = data.OpenEdit(ctx, input.ID)
		}
		if err != nil {
			return nil, WriteOutput{}, WrapError(err)
		}
		if _, err := data.UpdateDraft(input.apply); err != nil {
			return nil, WriteOutput{}, WrapError(err)
		}
		res, err := data.CreateOrUpdate(ctx)
		if err != nil {
			return nil, WriteOutput{}, WrapError(err)
		}
		out, err := writeOutput(d, res, notices())
		return nil, out, err
	}
}

// RecordDeleteInput is the input for customs_record_delete.
type RecordDeleteInput struct {
	ID       string `json:"id,omitempty" jsonschema:"Visible record to delete"`
	Selected bool   `json:"selected,omitempty" jsonschema:"Delete every selected row instead"`
}

// ToolRecordDelete deletes one visible record or the current selection.
func ToolRecordDelete(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input RecordDeleteInput) (*sdkmcp.CallToolResult, WriteOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input RecordDeleteInput) (*sdkmcp.CallToolResult, WriteOutput, error) {
		if (input.ID == "") == !input.Selected {
			return nil, WriteOutput{}, ErrInvalidInput("set exactly one of id or selected")
		}
		ctx, notices := collect(ctx)
		var res *client.WriteResult
		var err error
		if input.Selected {
			res, err = d.App.Data.DeleteSelected(ctx)
		} else {
			res, err = d.App.Data.DeleteOne(ctx, input.ID)
		}
		if err != nil {
			return nil, WriteOutput{}, WrapError(err)
		}
		out, err := writeOutput(d, res, notices())
		return nil, out, err
	}
}

// SelectRowsInput is the input for customs_select_rows.
type SelectRowsInput struct {
	IDs     []string `json:"ids,omitempty" jsonschema:"Visible record ids to select"`
	Replace bool     `json:"replace,omitempty" jsonschema:"Replace the selection instead of adding to it"`
	Clear   bool     `json:"clear,omitempty" jsonschema:"Clear the selection"`
}

// SelectRowsOutput is the output for customs_select_rows.
type SelectRowsOutput struct {
	Selected []string `json:"selected,omitzero"`
}

// ToolSelectRows changes the row selection used by bulk delete.
func ToolSelectRows(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input SelectRowsInput) (*sdkmcp.CallToolResult, SelectRowsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input SelectRowsInput) (*sdkmcp.CallToolResult, SelectRowsOutput, error) {
		if input.Clear {
			d.App.Data.ClearSelection()
			if len(input.IDs) == 0 {
				return nil, SelectRowsOutput{Selected: []string{}}, nil
			}
		}
		selected, err := d.App.Data.Select(input.IDs, input.Replace)
		if err != nil {
			return nil, SelectRowsOutput{}, WrapError(err)
		}
		return nil, SelectRowsOutput{Selected: selected}, nil
	}
}

// DeletePrepareInput is the input for customs_delete_prepare.
type DeletePrepareInput struct {
	Scope string `json:"scope" jsonschema:"displayed (rows on this page) or all_matching (every row matching the last search)"`
}

// DeletePrepareOutput carries the confirmation to pass to
// customs_delete_confirm.
type DeletePrepareOutput struct {
	Confirmation any             `json:"confirmation,omitempty"`
	Notices      []notify.Notice `json:"notices,omitzero"`
}

// ToolDeletePrepare counts what a delete-by-condition would remove and
// returns a single-use confirmation token. Nothing is deleted.
func ToolDeletePrepare(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input DeletePrepareInput) (*sdkmcp.CallToolResult, DeletePrepareOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input DeletePrepareInput) (*sdkmcp.CallToolResult, DeletePrepareOutput, error) {
		ctx, notices := collect(ctx)
		conf, err := d.App.Data.PrepareDeleteByCondition(ctx, dataquery.DeleteScope(input.Scope))
		if err != nil {
			return nil, DeletePrepareOutput{}, WrapError(err)
		}
		v, err := ToAny(conf)
		if err != nil {
			return nil, DeletePrepareOutput{}, err
		}
		return nil, DeletePrepareOutput{Confirmation: v, Notices: notices()}, nil
	}
}

// DeleteConfirmInput is the input for customs_delete_confirm.
type DeleteConfirmInput struct {
	Token string `json:"token" jsonschema:"Token returned by customs_delete_prepare"`
}

// ToolDeleteConfirm executes a prepared delete-by-condition.
func ToolDeleteConfirm(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input DeleteConfirmInput) (*sdkmcp.CallToolResult, WriteOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input DeleteConfirmInput) (*sdkmcp.CallToolResult, WriteOutput, error) {
		if strings.TrimSpace(input.Token) == "" {
			return nil, WriteOutput{}, ErrInvalidInput("token is required")
		}
		ctx, notices := collect(ctx)
		res, err := d.App.Data.ConfirmDelete(ctx, input.Token)
		if err != nil {
			return nil, WriteOutput{}, WrapError(err)
		}
		out, err := writeOutput(d, res, notices())
		return nil, out, err
	}
}

// ImportInput is the input for customs_import_excel.
type ImportInput struct {
	Path          string `json:"path,omitempty" jsonschema:"Local path of an .xlsx or .xls file"`
	Filename      string `json:"filename,omitempty" jsonschema:"File name when sending content inline"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"Base64 file content, used with filename"`
}

// ImportOutput is the output for customs_import_excel.
type ImportOutput struct {
	Message  string          `json:"message"`
	Filename string          `json:"filename"`
	Notices  []notify.Notice `json:"notices,omitzero"`
}

// ToolImportExcel uploads a spreadsheet for background import.
func ToolImportExcel(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input ImportInput) (*sdkmcp.CallToolResult, ImportOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input ImportInput) (*sdkmcp.CallToolResult, ImportOutput, error) {
		ctx, notices := collect(ctx)
		var res *client.ImportResult
		var err error
		switch {
		case input.Path != "" && input.ContentBase64 == "":
			res, err = d.App.ImportFile(ctx, input.Path)
		case input.Path == "" && input.Filename != "" && input.ContentBase64 != "":
			content, decErr := base64.StdEncoding.DecodeString(input.ContentBase64)
			if decErr != nil {
				return nil, ImportOutput{}, ErrInvalidInput("content_base64 is not valid base64")
			}
			res, err = d.App.Import(ctx, input.Filename, bytes.NewReader(content))
		default:
			return nil, ImportOutput{}, ErrInvalidInput("set path, or filename with content_base64")
		}
		if err != nil {
			return nil, ImportOutput{}, WrapError(err)
		}
		return nil, ImportOutput{Message: res.Message, Filename: res.Filename, Notices: notices()}, nil
	}
}
