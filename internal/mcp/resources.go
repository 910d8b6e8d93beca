package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/mcp/tools"
	"github.com/usestring/customs-mcp/internal/session"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Resource URI scheme: customs://
// Supported URIs:
//   customs://page/current
//   customs://session
//   customs://record/{id}

const recordURIPrefix = "customs://record/"

// registerResources registers resources, resource templates and handlers.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         "customs://page/current",
		Name:        "Current Page",
		Description: "The current route and the full data table state: filter form, pagination, visible rows, selection and open draft. Tools already return the page after each change; read this to resync.",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.6,
		},
	}, s.handleResourcePage)

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         "customs://session",
		Name:        "Session",
		Description: "Session state and the signed-in account with its role and allowed customs codes",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.5,
		},
	}, s.handleResourceSession)

	s.mcpServer.AddResourceTemplate(&sdkmcp.ResourceTemplate{
		URITemplate: recordURIPrefix + "{id}",
		Name:        "Trade Record",
		Description: "One record from the visible page, with its Chinese column keys as stored by the server",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.4,
		},
	}, s.handleResourceRecord)
}

// pageResource is the content of customs://page/current.
type pageResource struct {
	Location app.Location       `json:"location"`
	Session  session.Snapshot   `json:"session"`
	Page     dataquery.Snapshot `json:"page"`
	Users    []client.User      `json:"users,omitempty"`
}

func (s *Server) handleResourcePage(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	a := s.deps.App
	content := pageResource{
		Location: a.Router.Current(),
		Page:     a.Data.Snapshot(),
		Session:  a.Session.Snapshot(),
	}
	if content.Location.Path == app.RouteUsers {
		content.Users = a.Users.Users()
	}
	return toResourceResult(req.Params.URI, content)
}

func (s *Server) handleResourceSession(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	return toResourceResult(req.Params.URI, s.deps.App.Session.Snapshot())
}

func (s *Server) handleResourceRecord(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	id := strings.TrimPrefix(req.Params.URI, recordURIPrefix)
	if id == "" || id == req.Params.URI {
		return nil, sdkmcp.ResourceNotFoundError(req.Params.URI)
	}
	for _, row := range s.deps.App.Data.Snapshot().Rows {
		if row.Record.ID == id {
			return toResourceResult(req.Params.URI, row.Record)
		}
	}
	return nil, sdkmcp.ResourceNotFoundError(req.Params.URI)
}

// toResourceResult converts content to a ReadResourceResult.
func toResourceResult(uri string, content any) (*sdkmcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing resource: %w", err)
	}

	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: tools.MimeJSON,
				Text:     string(data),
			},
		},
	}, nil
}
