package tools

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/customs-mcp/internal/notify"
)

// LoginInput is the input for customs_login.
type LoginInput struct {
	Username string `json:"username" jsonschema:"Account name"`
	Password string `json:"password" jsonschema:"Account password"`
}

// SessionOutput describes the session after a login, logout or whoami.
type SessionOutput struct {
	Authenticated bool            `json:"authenticated"`
	User          any             `json:"user,omitempty"`
	Route         string          `json:"route"`
	From          string          `json:"from,omitempty"`
	Notices       []notify.Notice `json:"notices,omitzero"`
}

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// ToolLogin signs in and lands on the page a login redirect interrupted.
func ToolLogin(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input LoginInput) (*sdkmcp.CallToolResult, SessionOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input LoginInput) (*sdkmcp.CallToolResult, SessionOutput, error) {
		ctx, notices := collect(ctx)
		_, loc, err := d.App.Login(ctx, input.Username, input.Password)
		if err != nil {
			return nil, SessionOutput{}, WrapError(err)
		}
		out, err := sessionOutput(d)
		if err != nil {
			return nil, SessionOutput{}, err
		}
		out.Route = string(loc.Path)
		out.Notices = notices()
		return nil, out, nil
	}
}

// ToolLogout ends the session and abandons all page state.
func ToolLogout(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, SessionOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, SessionOutput, error) {
		ctx, notices := collect(ctx)
		d.App.Logout(ctx)
		out, err := sessionOutput(d)
		if err != nil {
			return nil, SessionOutput{}, err
		}
		out.Notices = notices()
		return nil, out, nil
	}
}

// ToolWhoami reports the signed-in user and current page.
func ToolWhoami(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, SessionOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input EmptyInput) (*sdkmcp.CallToolResult, SessionOutput, error) {
		out, err := sessionOutput(d)
		return nil, out, err
	}
}

func sessionOutput(d *Deps) (SessionOutput, error) {
	snap := d.App.Session.Snapshot()
	loc := d.App.Router.Current()
	out := SessionOutput{
		Authenticated: snap.IsAuthenticated,
		Route:         string(loc.Path),
		From:          string(loc.From),
	}
	if snap.User != nil {
		u, err := ToAny(snap.User)
		if err != nil {
			return SessionOutput{}, err
		}
		out.User = u
	}
	return out, nil
}

// OptionsInput is the input for customs_options.
type OptionsInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"Keep only entries containing this text, case-insensitive"`
}

// OptionsOutput lists the filter values available to the signed-in user.
type OptionsOutput struct {
	CustomsCodes    []string        `json:"customs_codes,omitzero"`
	ImportCountries []string        `json:"import_countries,omitzero"`
	ExportCountries []string        `json:"export_countries,omitzero"`
	Notices         []notify.Notice `json:"notices,omitzero"`
}

// ToolOptions returns the customs code and country option lists.
func ToolOptions(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input OptionsInput) (*sdkmcp.CallToolResult, OptionsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input OptionsInput) (*sdkmcp.CallToolResult, OptionsOutput, error) {
		ctx, notices := collect(ctx)
		lists, err := d.App.FilterOptions(ctx, input.Filter)
		if err != nil {
			return nil, OptionsOutput{}, WrapError(err)
		}
		return nil, OptionsOutput{
			CustomsCodes:    lists.CustomsCodes,
			ImportCountries: lists.ImportCountries,
			ExportCountries: lists.ExportCountries,
			Notices:         notices(),
		}, nil
	}
}
