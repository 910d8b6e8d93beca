// Package export serializes result rows to an .xlsx workbook and stores it.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/usestring/customs-mcp/pkg/client"
)

// SheetName is the name of the single worksheet.
const SheetName = "海关数据"

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Column describes one exported column.
type Column struct {
	Field  string  // wire field name
	Title  string  // header cell
	Width  float64 // in characters
	NumFmt string  // custom number format, numeric columns only
}

// Columns is the exported column layout, in table order.
var Columns = []Column{
	{Field: client.FieldCustomsCode, Title: "海关编码", Width: 17},
	{Field: client.FieldProductDescription, Title: "编码产品描述", Width: 26},
	{Field: client.FieldDate, Title: "日期", Width: 17},
	{Field: client.FieldImporter, Title: "进口公司", Width: 21},
	{Field: client.FieldImportCountry, Title: "进口国家", Width: 17},
	{Field: client.FieldExporter, Title: "出口公司", Width: 21},
	{Field: client.FieldExportCountry, Title: "出口国家", Width: 17},
	{Field: client.FieldQuantityUnit, Title: "数量单位", Width: 14},
	{Field: client.FieldQuantity, Title: "数量", Width: 14, NumFmt: "0.00"},
	{Field: client.FieldMetricTons, Title: "公吨", Width: 14, NumFmt: "0.0000"},
	{Field: client.FieldAmountUSD, Title: "金额美元", Width: 17, NumFmt: `"$"0.00`},
	{Field: client.FieldProductDetail, Title: "详细产品名称", Width: 28},
	{Field: client.FieldBillOfLading, Title: "提单号", Width: 21},
	{Field: client.FieldDataSource, Title: "数据来源", Width: 17},
	{Field: client.FieldDeclarationNumber, Title: "关单号", Width: 21},
}

// FileName returns "<prefix>_<YYYYMMDD>.xlsx" for the given day.
func FileName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", prefix, now.Format("20060102"))
}

// Workbook renders rows into an .xlsx document.
func Workbook(rows []client.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, col := range Columns {
		header[i] = col.Title
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, name, name, col.Width); err != nil {
			return nil, fmt.Errorf("sizing column %s: %w", name, err)
		}
		if col.NumFmt != "" {
			numFmt := col.NumFmt
			style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
			if err != nil {
				return nil, fmt.Errorf("creating style: %w", err)
			}
			if err := f.SetColStyle(SheetName, name, style); err != nil {
				return nil, fmt.Errorf("styling column %s: %w", name, err)
			}
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	for i, rec := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := rowValues(rec)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func rowValues(r client.Record) []any {
	out := make([]any, len(Columns))
	for i, col := range Columns {
		out[i] = cellValue(r, col.Field)
	}
	return out
}

// cellValue returns the cell content for field. Missing numbers stay blank.
func cellValue(r client.Record, field string) any {
	num := func(p *float64) any {
		if p == nil {
			return nil
		}
		return *p
	}
	switch field {
	case client.FieldCustomsCode:
		return r.CustomsCode
	case client.FieldProductDescription:
		return r.ProductDescription
	case client.FieldDate:
		return r.Date.String()
	case client.FieldImporter:
		return r.Importer
	case client.FieldImportCountry:
		return r.ImportCountry
	case client.FieldExporter:
		return r.Exporter
	case client.FieldExportCountry:
		return r.ExportCountry
	case client.FieldQuantityUnit:
		return r.QuantityUnit
	case client.FieldQuantity:
		return num(r.Quantity)
	case client.FieldMetricTons:
		return num(r.MetricTons)
	case client.FieldAmountUSD:
		return num(r.AmountUSD)
	case client.FieldProductDetail:
		return r.ProductDetail
	case client.FieldBillOfLading:
		return r.BillOfLading
	case client.FieldDataSource:
		return r.DataSource
	case client.FieldDeclarationNumber:
		return r.DeclarationNumber
	}
	return nil
}
