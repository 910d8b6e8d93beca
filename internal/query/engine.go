// Package query runs jq expressions over customs result rows.
//
// Rows are exposed to jq with ASCII keys (customs_code, importer, date,
// amount_usd, ...) so expressions can use plain dot paths. Missing numbers
// are null.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/usestring/customs-mcp/internal/cache"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Mode selects what a jq expression receives as input.
type Mode string

const (
	// ModeEach runs the expression once per row.
	ModeEach Mode = "each"
	// ModePage runs the expression once with the array of all rows.
	ModePage Mode = "page"
)

// Engine compiles and runs jq expressions. Compiled programs are cached.
type Engine struct {
	compiled *cache.LRU[*gojq.Code]
}

// NewEngine creates an engine caching up to size compiled expressions.
func NewEngine(size int) (*Engine, error) {
	if size <= 0 {
		size = 32
	}
	c, err := cache.New[*gojq.Code](size)
	if err != nil {
		return nil, fmt.Errorf("creating jq cache: %w", err)
	}
	return &Engine{compiled: c}, nil
}

// Options tunes a run.
type Options struct {
	Mode        Mode
	Deduplicate bool
	MaxResults  int
}

// Result holds the values an expression produced.
type Result struct {
	Values         []any    `json:"values"`
	Errors         []string `json:"errors,omitempty"`
	RawCount       int      `json:"raw_count"`
	MatchedRowKeys []string `json:"matched_ids,omitempty"`
}

// Run evaluates expression over rows.
func (e *Engine) Run(rows []client.Record, expression string, opts Options) (*Result, error) {
	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	res := &Result{Values: []any{}}
	seen := make(map[string]bool)
	seenErr := make(map[string]bool)
	full := func() bool { return opts.MaxResults > 0 && len(res.Values) >= opts.MaxResults }

	emit := func(label string, input any) bool {
		matched := false
		iter := code.Run(input)
		for !full() {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				msg := formatError(label, err)
				if !seenErr[msg] {
					seenErr[msg] = true
					res.Errors = append(res.Errors, msg)
				}
				continue
			}
			if v == nil {
				continue
			}
			res.RawCount++
			matched = true
			if opts.Deduplicate {
				k := valueKey(v)
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			res.Values = append(res.Values, v)
		}
		return matched
	}

	if opts.Mode == ModePage {
		docs := make([]any, len(rows))
		for i, r := range rows {
			docs[i] = Document(r)
		}
		emit("page", docs)
		return res, nil
	}

	for _, r := range rows {
		if full() {
			break
		}
		if emit(r.ID, Document(r)) {
			res.MatchedRowKeys = append(res.MatchedRowKeys, r.ID)
		}
	}
	return res, nil
}

// Validate checks that expression compiles.
func (e *Engine) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Engine) compile(expression string) (*gojq.Code, error) {
	if code, ok := e.compiled.Get(expression); ok {
		return code, nil
	}
	q, err := gojq.Parse(expression)
	if err != nil {
		var perr *gojq.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("invalid jq expression at position %d: %w", perr.Offset, err)
		}
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compiling jq expression: %w", err)
	}
	e.compiled.Put(expression, code)
	return code, nil
}

// Document converts a record into the map jq sees.
func Document(r client.Record) map[string]any {
	num := func(p *float64) any {
		if p == nil {
			return nil
		}
		return *p
	}
	return map[string]any{
		"id":                  r.ID,
		"customs_code":        r.CustomsCode,
		"product_description": r.ProductDescription,
		"date":                r.Date.String(),
		"importer":            r.Importer,
		"import_country":      r.ImportCountry,
		"exporter":            r.Exporter,
		"export_country":      r.ExportCountry,
		"quantity_unit":       r.QuantityUnit,
		"quantity":            num(r.Quantity),
		"metric_tons":         num(r.MetricTons),
		"amount_usd":          num(r.AmountUSD),
		"product_detail":      r.ProductDetail,
		"bill_of_lading":      r.BillOfLading,
		"data_source":         r.DataSource,
		"declaration_number":  r.DeclarationNumber,
	}
}

// formatError decorates gojq runtime errors with a hint where one helps.
// Runtime errors are untyped in gojq, so hints key off the message text.
func formatError(label string, err error) string {
	var halt *gojq.HaltError
	if errors.As(err, &halt) {
		if halt.Value() == nil {
			return label + ": query halted"
		}
		return fmt.Sprintf("%s: query halted with: %v", label, halt.Value())
	}

	msg := err.Error()
	var hint string
	switch {
	case strings.Contains(msg, "cannot iterate over: null"):
		hint = " (the field may be empty on this row)"
	case strings.Contains(msg, "cannot index") && strings.Contains(msg, "with"):
		hint = " (rows are objects; in page mode use .[] first)"
	case strings.Contains(msg, "object") && strings.Contains(msg, "cannot be iterated"):
		hint = " (each mode receives one row object; use page mode to iterate rows)"
	}
	return label + ": " + msg + hint
}

func valueKey(v any) string {
	switch val := v.(type) {
	case string:
		return "s:" + val
	case float64:
		return fmt.Sprintf("n:%v", val)
	case int:
		return fmt.Sprintf("n:%d", val)
	case bool:
		return fmt.Sprintf("b:%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("?:%v", val)
		}
		return "j:" + string(b)
	}
}
