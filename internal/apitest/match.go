package apitest

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/usestring/customs-mcp/pkg/client"
)

func withUser(ctx context.Context, u client.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func userFrom(ctx context.Context) client.User {
	u, _ := ctx.Value(ctxKey{}).(client.User)
	return u
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func filterFromValues(q url.Values) client.Filter {
	return client.Filter{
		CustomsCode:   q.Get("customs_code"),
		ImportCountry: q.Get("import_country"),
		ExportCountry: q.Get("export_country"),
		Importer:      q.Get("importer"),
		Exporter:      q.Get("exporter"),
		StartDate:     q.Get("start_date"),
		EndDate:       q.Get("end_date"),
	}
}

// matchLocked returns the records matching f that the user may see.
func (s *Server) matchLocked(f client.Filter, u *client.User) []client.Record {
	out := make([]client.Record, 0, len(s.records))
	for _, rec := range s.records {
		if u != nil && !u.CanAccess(rec.CustomsCode) {
			continue
		}
		if matches(rec, f) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec client.Record, f client.Filter) bool {
	eq := func(want, got string) bool { return want == "" || want == got }
	if !eq(f.CustomsCode, rec.CustomsCode) ||
		!eq(f.ImportCountry, rec.ImportCountry) ||
		!eq(f.ExportCountry, rec.ExportCountry) ||
		!eq(f.Importer, rec.Importer) ||
		!eq(f.Exporter, rec.Exporter) {
		return false
	}
	d := rec.Date.String()
	if f.StartDate != "" && d < f.StartDate {
		return false
	}
	if f.EndDate != "" && d > f.EndDate {
		return false
	}
	return true
}

func (s *Server) removeLocked(drop func(client.Record) bool) int {
	kept := s.records[:0]
	n := 0
	for _, rec := range s.records {
		if drop(rec) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return n
}

func distinct(recs []client.Record, key func(client.Record) string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range recs {
		k := key(r)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// compareField orders two records by a wire field name.
func compareField(a, b client.Record, field string) int {
	num := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	cmpFloat := func(x, y float64) int {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	switch field {
	case client.FieldQuantity:
		return cmpFloat(num(a.Quantity), num(b.Quantity))
	case client.FieldMetricTons:
		return cmpFloat(num(a.MetricTons), num(b.MetricTons))
	case client.FieldAmountUSD:
		return cmpFloat(num(a.AmountUSD), num(b.AmountUSD))
	}
	return strings.Compare(stringField(a, field), stringField(b, field))
}

func stringField(r client.Record, field string) string {
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
	case client.FieldProductDetail:
		return r.ProductDetail
	case client.FieldBillOfLading:
		return r.BillOfLading
	case client.FieldDataSource:
		return r.DataSource
	case client.FieldDeclarationNumber:
		return r.DeclarationNumber
	}
	return ""
}
