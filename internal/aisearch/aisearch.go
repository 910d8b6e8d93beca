// Package aisearch turns a natural-language request into search criteria
// with the help of the server's AI endpoint.
//
// The server relays the text and the known country lists to a language
// model and returns whatever object the model produced. That reply is
// validated against a JSON schema reflected from Reply before any of it is
// used; a reply that fails validation is rejected as a whole.
package aisearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/options"
	"github.com/usestring/customs-mcp/pkg/client"
)

// ErrAIParse matches every ParseError.
var ErrAIParse = errors.New("AI search reply is not a valid search")

// ParseError reports a malformed AI reply.
type ParseError struct {
	Problems []string
}

func (e *ParseError) Error() string {
	return "AI search reply rejected: " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is match ErrAIParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrAIParse
}

// Code is a customs code. Models send it as a digit string or as a bare
// JSON number; both decode to the same digits.
type Code string

const maxCodeDigits = 10

// JSONSchema implements jsonschema's custom schema hook.
func (Code) JSONSchema() *jsonschema.Schema {
	maxLen := uint64(maxCodeDigits)
	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
		{Type: "string", Pattern: "^[0-9]*$", MaxLength: &maxLen},
		{Type: "integer", Minimum: json.Number("0"), Maximum: json.Number(strings.Repeat("9", maxCodeDigits))},
	}}
}

// UnmarshalJSON accepts a string or an integer.
func (c *Code) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("customs_code: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("customs_code: %w", err)
	}
	*c = Code(strconv.FormatInt(v, 10))
	return nil
}

// Reply is the object the AI endpoint returns. Every key is optional.
type Reply struct {
	CustomsCode   Code   `json:"customs_code,omitempty"`
	ExportCountry string `json:"export_country,omitempty"`
	ImportCountry string `json:"import_country,omitempty"`
	StartDate     string `json:"start_date,omitempty" jsonschema:"pattern=^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"`
	EndDate       string `json:"end_date,omitempty" jsonschema:"pattern=^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"`
}

// Parser validates replies. It is safe for concurrent use.
type Parser struct {
	schema *jsv.Schema
}

// NewParser reflects the Reply schema and compiles it.
func NewParser() (*Parser, error) {
	r := &jsonschema.Reflector{DoNotReference: true, AllowAdditionalProperties: true}
	s := r.Reflect(&Reply{})
	s.ID = ""

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling reply schema: %w", err)
	}
	doc, err := jsv.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding reply schema: %w", err)
	}

	c := jsv.NewCompiler()
	if err := c.AddResource("ai-reply.json", doc); err != nil {
		return nil, fmt.Errorf("adding reply schema: %w", err)
	}
	compiled, err := c.Compile("ai-reply.json")
	if err != nil {
		return nil, fmt.Errorf("compiling reply schema: %w", err)
	}
	return &Parser{schema: compiled}, nil
}

// Parse validates raw and maps it to criteria sorted by the default sort.
func (p *Parser) Parse(raw []byte) (dataquery.Criteria, error) {
	doc, err := jsv.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return dataquery.Criteria{}, &ParseError{Problems: []string{"invalid JSON: " + err.Error()}}
	}
	if err := p.schema.Validate(doc); err != nil {
		return dataquery.Criteria{}, &ParseError{Problems: problems(err)}
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return dataquery.Criteria{}, &ParseError{Problems: []string{err.Error()}}
	}

	c := dataquery.DefaultCriteria()
	c.CustomsCode = strings.TrimSpace(string(reply.CustomsCode))
	c.ExportCountry = strings.TrimSpace(reply.ExportCountry)
	c.ImportCountry = strings.TrimSpace(reply.ImportCountry)

	var bad []string
	var rng dataquery.DateRange
	if reply.StartDate != "" {
		if rng.Start, err = client.ParseDate(reply.StartDate); err != nil {
			bad = append(bad, "/start_date: "+err.Error())
		}
	}
	if reply.EndDate != "" {
		if rng.End, err = client.ParseDate(reply.EndDate); err != nil {
			bad = append(bad, "/end_date: "+err.Error())
		}
	}
	if len(bad) > 0 {
		return dataquery.Criteria{}, &ParseError{Problems: bad}
	}
	if !rng.Start.IsZero() || !rng.End.IsZero() {
		c.DateRange = &rng
	}
	return c, nil
}

var printer = message.NewPrinter(language.English)

// problems flattens a validation error into leaf messages keyed by path.
func problems(err error) []string {
	var ve *jsv.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(*jsv.ValidationError)
	walk = func(e *jsv.ValidationError) {
		if len(e.Causes) == 0 && e.ErrorKind != nil {
			msg := "/" + strings.Join(e.InstanceLocation, "/") + ": " + e.ErrorKind.LocalizedString(printer)
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

// Service sends requests to the AI endpoint together with the caller's
// known country lists.
type Service struct {
	api    *client.Client
	opts   *options.Loader
	parser *Parser
}

// NewService creates a Service.
func NewService(api *client.Client, opts *options.Loader) (*Service, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	return &Service{api: api, opts: opts, parser: p}, nil
}

// Translate asks the AI endpoint to turn text into criteria for username.
func (s *Service) Translate(ctx context.Context, username, text string) (dataquery.Criteria, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return dataquery.Criteria{}, form.Invalid("text", "required")
	}

	req := client.AISearchRequest{SearchValue: text}
	if s.opts != nil {
		lists, err := s.opts.Load(ctx, username)
		if err != nil {
			return dataquery.Criteria{}, fmt.Errorf("loading country lists: %w", err)
		}
		req.ExportCountries = lists.ExportCountries
		req.ImportCountries = lists.ImportCountries
	}

	raw, err := s.api.AISearch(ctx, req)
	if err != nil {
		var de *client.DecodeError
		if errors.As(err, &de) {
			return dataquery.Criteria{}, &ParseError{Problems: []string{"invalid JSON: " + de.Err.Error()}}
		}
		return dataquery.Criteria{}, err
	}
	c, err := s.parser.Parse(raw)
	if err != nil {
		slog.Warn("rejected AI search reply",
			slog.String("reply", string(raw)),
			slog.String("error", err.Error()),
		)
		return dataquery.Criteria{}, err
	}
	return c, nil
}
