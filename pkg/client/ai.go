package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AISearch asks the server to translate a natural-language request into
// search conditions. The reply is returned raw; callers validate its shape.
func (c *Client) AISearch(ctx context.Context, in AISearchRequest) (json.RawMessage, error) {
	if in.ExportCountries == nil {
		in.ExportCountries = []string{}
	}
	if in.ImportCountries == nil {
		in.ImportCountries = []string{}
	}
	var raw json.RawMessage
	if err := c.sendJSON(ctx, http.MethodPost, "/ai/search", in, &raw); err != nil {
		return nil, fmt.Errorf("AI search: %w", err)
	}
	return raw, nil
}
