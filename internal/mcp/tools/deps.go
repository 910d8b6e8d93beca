package tools

import (
	"context"

	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/notify"
)

// Deps contains all dependencies needed by tool handlers.
type Deps struct {
	App    *app.App
	Config *config.Config
}

// collect returns a context capturing the notices a tool call produces.
func collect(ctx context.Context) (context.Context, func() []notify.Notice) {
	ctx, rec := notify.Collect(ctx)
	return ctx, func() []notify.Notice {
		n := rec.Notices()
		if n == nil {
			return []notify.Notice{}
		}
		return n
	}
}
