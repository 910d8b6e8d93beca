package mcpsrv

import (
	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
)

// Deps contains all dependencies available to custom tools.
// This gives custom tools access to the same runtime as builtin tools:
// the session, the data page, user management and the API client.
type Deps struct {
	App    *app.App
	Config *config.Config
}
