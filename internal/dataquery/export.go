package dataquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/usestring/customs-mcp/internal/export"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/pkg/client"
)

// ErrEmptyResult is returned by Export when there is nothing to export.
var ErrEmptyResult = errors.New("no data to export")

// ErrNoSink is returned by Export when no sink is configured.
var ErrNoSink = errors.New("no export destination configured")

// ExportResult describes a stored workbook.
type ExportResult struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
}

// Export fetches every row matching the last search and stores them as an
// .xlsx workbook. The row count comes from the last search; when it is zero
// nothing is requested. Rows are fetched in pages of at most the server's
// page size limit, so a total within the limit is a single request of size
// total.
func (c *Controller) Export(ctx context.Context) (*ExportResult, error) {
	c.mu.Lock()
	last := c.last
	total := c.total
	c.mu.Unlock()

	if last == nil || total == 0 {
		notify.Error(ctx, c.notes, "数据导出失败: 当前没有数据")
		return nil, ErrEmptyResult
	}
	if c.sink == nil {
		notify.Error(ctx, c.notes, "数据导出失败: 未配置导出位置")
		return nil, ErrNoSink
	}

	rows, err := c.fetchAll(ctx, *last, total)
	if err != nil {
		notify.Error(ctx, c.notes, "数据导出失败: "+err.Error())
		return nil, err
	}
	if len(rows) == 0 {
		notify.Error(ctx, c.notes, "数据导出失败: 当前没有数据")
		return nil, ErrEmptyResult
	}

	data, err := export.Workbook(rows)
	if err != nil {
		notify.Error(ctx, c.notes, "数据导出失败: "+err.Error())
		return nil, err
	}
	name := export.FileName(c.cfg.ExportPrefix, c.now())
	loc, err := c.sink.Save(ctx, name, data)
	if err != nil {
		notify.Error(ctx, c.notes, "数据导出失败: "+err.Error())
		return nil, err
	}

	slog.Info("export stored",
		slog.String("name", name),
		slog.String("location", loc),
		slog.Int("rows", len(rows)),
	)
	notify.Success(ctx, c.notes, "数据导出成功")
	return &ExportResult{Name: name, Location: loc, Rows: len(rows)}, nil
}

func (c *Controller) fetchAll(ctx context.Context, q Query, total int) ([]client.Record, error) {
	size := total
	if size > c.cfg.MaxPageSize {
		size = c.cfg.MaxPageSize
	}
	rows := make([]client.Record, 0, total)
	for page := 1; len(rows) < total; page++ {
		params := q.params()
		params.Page = page
		params.PageSize = size
		res, err := c.api.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("fetching export page %d: %w", page, err)
		}
		rows = append(rows, res.Rows...)
		if len(res.Rows) < size {
			break
		}
	}
	return rows, nil
}
