package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Search runs a filtered, sorted, paginated query.
func (c *Client) Search(ctx context.Context, params SearchParams) (*ResultPage, error) {
	var page ResultPage
	if err := c.get(ctx, "/data/search", params.Values(), &page); err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}
	if page.Rows == nil {
		page.Rows = []Record{}
	}
	return &page, nil
}

// CustomsCodes lists the customs codes visible to the current user.
func (c *Client) CustomsCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := c.get(ctx, "/data/customs-codes", nil, &codes); err != nil {
		return nil, fmt.Errorf("listing customs codes: %w", err)
	}
	return codes, nil
}

// Countries lists the distinct import and export countries.
func (c *Client) Countries(ctx context.Context) (*Countries, error) {
	var countries Countries
	if err := c.get(ctx, "/data/countries", nil, &countries); err != nil {
		return nil, fmt.Errorf("listing countries: %w", err)
	}
	return &countries, nil
}

// CreateRecord stores a new record.
func (c *Client) CreateRecord(ctx context.Context, rec Record) (*WriteResult, error) {
	rec.ID = ""
	var res WriteResult
	if err := c.sendJSON(ctx, http.MethodPost, "/data", rec, &res); err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	return &res, nil
}

// UpdateRecord replaces the record with the given id.
func (c *Client) UpdateRecord(ctx context.Context, id string, rec Record) (*WriteResult, error) {
	rec.ID = ""
	var res WriteResult
	if err := c.sendJSON(ctx, http.MethodPut, "/data/"+url.PathEscape(id), rec, &res); err != nil {
		return nil, fmt.Errorf("updating record %q: %w", id, err)
	}
	return &res, nil
}

// DeleteRecord removes one record.
func (c *Client) DeleteRecord(ctx context.Context, id string) (*WriteResult, error) {
	var res WriteResult
	if err := c.sendJSON(ctx, http.MethodDelete, "/data/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, fmt.Errorf("deleting record %q: %w", id, err)
	}
	return &res, nil
}

// BulkDelete removes the records with the given ids.
func (c *Client) BulkDelete(ctx context.Context, ids []string) (*WriteResult, error) {
	body := struct {
		DataIDs []string `json:"data_ids"`
	}{DataIDs: ids}

	var res WriteResult
	if err := c.sendJSON(ctx, http.MethodPost, "/data/bulk-delete", body, &res); err != nil {
		return nil, fmt.Errorf("bulk deleting %d records: %w", len(ids), err)
	}
	return &res, nil
}

// BulkDeleteByCondition removes every record matching the filter on the
// server, including rows never fetched by the client.
func (c *Client) BulkDeleteByCondition(ctx context.Context, filter Filter) (*WriteResult, error) {
	body := struct {
		QueryParams Filter `json:"query_params"`
	}{QueryParams: filter}

	var res WriteResult
	if err := c.sendJSON(ctx, http.MethodPost, "/data/bulk-delete-by-condition", body, &res); err != nil {
		return nil, fmt.Errorf("deleting records by condition: %w", err)
	}
	return &res, nil
}
