package dataquery

import (
	"strconv"
	"strings"

	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/pkg/client"
)

// DraftMode tells whether a draft creates a record or edits one.
type DraftMode string

const (
	ModeCreate DraftMode = "create"
	ModeEdit   DraftMode = "edit"
)

// DraftFields is the text-typed record form.
type DraftFields struct {
	CustomsCode        string `json:"customs_code"`
	ProductDescription string `json:"product_description"`
	Date               string `json:"date"`
	Importer           string `json:"importer"`
	ImportCountry      string `json:"import_country"`
	Exporter           string `json:"exporter"`
	ExportCountry      string `json:"export_country"`
	QuantityUnit       string `json:"quantity_unit"`
	Quantity           string `json:"quantity"`
	MetricTons         string `json:"metric_tons"`
	AmountUSD          string `json:"amount_usd"`
	ProductDetail      string `json:"product_detail"`
	BillOfLading       string `json:"bill_of_lading"`
	DataSource         string `json:"data_source"`
	DeclarationNumber  string `json:"declaration_number"`
}

// Draft is the open create/edit form. ID is set only in edit mode.
type Draft struct {
	Mode   DraftMode   `json:"mode"`
	ID     string      `json:"id,omitempty"`
	Fields DraftFields `json:"fields"`
}

// FieldsFromRecord renders a record into form text.
func FieldsFromRecord(r client.Record) DraftFields {
	num := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	return DraftFields{
		CustomsCode:        r.CustomsCode,
		ProductDescription: r.ProductDescription,
		Date:               r.Date.String(),
		Importer:           r.Importer,
		ImportCountry:      r.ImportCountry,
		Exporter:           r.Exporter,
		ExportCountry:      r.ExportCountry,
		QuantityUnit:       r.QuantityUnit,
		Quantity:           num(r.Quantity),
		MetricTons:         num(r.MetricTons),
		AmountUSD:          num(r.AmountUSD),
		ProductDetail:      r.ProductDetail,
		BillOfLading:       r.BillOfLading,
		DataSource:         r.DataSource,
		DeclarationNumber:  r.DeclarationNumber,
	}
}

// Record parses the form into a record. Customs code and date are required;
// numbers are blank (null) or parseable floats.
func (f DraftFields) Record() (client.Record, error) {
	errs := form.Errors{}
	r := client.Record{
		CustomsCode:        strings.TrimSpace(f.CustomsCode),
		ProductDescription: strings.TrimSpace(f.ProductDescription),
		Importer:           strings.TrimSpace(f.Importer),
		ImportCountry:      strings.TrimSpace(f.ImportCountry),
		Exporter:           strings.TrimSpace(f.Exporter),
		ExportCountry:      strings.TrimSpace(f.ExportCountry),
		QuantityUnit:       strings.TrimSpace(f.QuantityUnit),
		ProductDetail:      strings.TrimSpace(f.ProductDetail),
		BillOfLading:       strings.TrimSpace(f.BillOfLading),
		DataSource:         strings.TrimSpace(f.DataSource),
		DeclarationNumber:  strings.TrimSpace(f.DeclarationNumber),
	}
	if r.CustomsCode == "" {
		errs.Add("customs_code", "required")
	}

	if s := strings.TrimSpace(f.Date); s == "" {
		errs.Add("date", "required")
	} else if d, err := client.ParseDate(s); err != nil {
		errs.Add("date", "expected YYYY-MM-DD")
	} else {
		r.Date = d
	}

	parse := func(field, s string) *float64 {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			errs.Add(field, "must be a number")
			return nil
		}
		return &v
	}
	r.Quantity = parse("quantity", f.Quantity)
	r.MetricTons = parse("metric_tons", f.MetricTons)
	r.AmountUSD = parse("amount_usd", f.AmountUSD)

	if err := errs.Err(); err != nil {
		return client.Record{}, err
	}
	return r, nil
}
