// Package form carries field-level validation failures.
package form

import (
	"errors"
	"sort"
	"strings"
)

// Errors maps a field name to its validation message. A non-empty Errors
// blocks submission; nothing is sent to the server.
type Errors map[string]string

// Add records msg for field, keeping the first message per field.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Err returns e as an error, or nil when no field failed.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + e[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid returns a single-field validation error.
func Invalid(field, msg string) error {
	return Errors{field: msg}
}

// IsValidation reports whether err carries field errors.
func IsValidation(err error) bool {
	var fe Errors
	return errors.As(err, &fe)
}
