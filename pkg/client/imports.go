package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// ImportExcel uploads a spreadsheet for server-side import. The import runs
// in the background on the server; the response only confirms the upload.
func (c *Client) ImportExcel(ctx context.Context, filename string, content io.Reader) (*ImportResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("reading %q: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	var res ImportResult
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/import/excel",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("importing %q: %w", filename, err)
	}
	return &res, nil
}
