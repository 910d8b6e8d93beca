// Package tools contains MCP tool implementations for the customs data client.
package tools

import (
	"encoding/json"
)

// MIME type constant.
const MimeJSON = "application/json"

// ToAny round-trips v through JSON so values with custom marshalers (dates,
// Chinese column keys) reach the client exactly as the API shapes them.
func ToAny(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
