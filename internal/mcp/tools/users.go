package tools

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/users"
	"github.com/usestring/customs-mcp/pkg/client"
)

// UsersOutput lists accounts. Admin only.
type UsersOutput struct {
	Users       []any           `json:"users,omitzero"`
	CodeOptions []string        `json:"code_options,omitzero"`
	Notices     []notify.Notice `json:"notices,omitzero"`
}

func usersOutput(ctx context.Context, d *Deps, withCodes bool) (UsersOutput, error) {
	list := d.App.Users.Users()
	out := UsersOutput{Users: make([]any, 0, len(list))}
	for _, u := range list {
		v, err := ToAny(u)
		if err != nil {
			return UsersOutput{}, err
		}
		out.Users = append(out.Users, v)
	}
	if withCodes {
		codes, err := d.App.Users.CodeOptions(ctx)
		if err != nil {
			return UsersOutput{}, WrapError(err)
		}
		out.CodeOptions = codes
	}
	return out, nil
}

// UsersListInput is the input for customs_users_list.
type UsersListInput struct {
	IncludeCodeOptions bool `json:"include_code_options,omitempty" jsonschema:"Also return the customs codes that can be granted"`
}

// ToolUsersList opens the user management page and lists accounts.
func ToolUsersList(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input UsersListInput) (*sdkmcp.CallToolResult, UsersOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input UsersListInput) (*sdkmcp.CallToolResult, UsersOutput, error) {
		ctx, notices := collect(ctx)
		if _, err := d.App.Router.Navigate(ctx, app.RouteUsers, nil); err != nil {
			return nil, UsersOutput{}, WrapError(err)
		}
		if _, err := d.App.Users.Refresh(ctx); err != nil {
			return nil, UsersOutput{}, WrapError(err)
		}
		out, err := usersOutput(ctx, d, input.IncludeCodeOptions)
		if err != nil {
			return nil, UsersOutput{}, err
		}
		out.Notices = notices()
		return nil, out, nil
	}
}

// UserSaveInput is the input for customs_user_save.
type UserSaveInput struct {
	Username            string   `json:"username" jsonschema:"Account name, at most 50 characters"`
	Password            string   `json:"password,omitempty" jsonschema:"Required for new accounts; blank keeps the current password"`
	IsAdmin             bool     `json:"is_admin,omitempty" jsonschema:"Grant admin privileges"`
	AllowedCustomsCodes []string `json:"allowed_customs_codes,omitempty" jsonschema:"Customs codes the account may see; empty means all"`
	Update              bool     `json:"update,omitempty" jsonschema:"Update an existing account instead of creating one"`
}

// UserSaveOutput is the output for customs_user_save.
type UserSaveOutput struct {
	User    any             `json:"user,omitempty"`
	Notices []notify.Notice `json:"notices,omitzero"`
}

// ToolUserSave creates or updates an account.
func ToolUserSave(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input UserSaveInput) (*sdkmcp.CallToolResult, UserSaveOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input UserSaveInput) (*sdkmcp.CallToolResult, UserSaveOutput, error) {
		ctx, notices := collect(ctx)
		if _, err := d.App.Router.Navigate(ctx, app.RouteUsers, nil); err != nil {
			return nil, UserSaveOutput{}, WrapError(err)
		}
		in := users.Input{
			Username:            input.Username,
			Password:            input.Password,
			IsAdmin:             input.IsAdmin,
			AllowedCustomsCodes: input.AllowedCustomsCodes,
		}
		save := d.App.Users.Create
		if input.Update {
			save = func(ctx context.Context, in users.Input) (*client.User, error) {
				return d.App.Users.Update(ctx, in.Username, in)
			}
		}
		u, err := save(ctx, in)
		if err != nil {
			return nil, UserSaveOutput{}, WrapError(err)
		}
		v, err := ToAny(u)
		if err != nil {
			return nil, UserSaveOutput{}, err
		}
		return nil, UserSaveOutput{User: v, Notices: notices()}, nil
	}
}

// UserDeleteInput is the input for customs_user_delete.
type UserDeleteInput struct {
	Username string `json:"username" jsonschema:"Account to delete"`
}

// ToolUserDelete deletes an account and returns the refreshed list.
func ToolUserDelete(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input UserDeleteInput) (*sdkmcp.CallToolResult, UsersOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input UserDeleteInput) (*sdkmcp.CallToolResult, UsersOutput, error) {
		ctx, notices := collect(ctx)
		if _, err := d.App.Router.Navigate(ctx, app.RouteUsers, nil); err != nil {
			return nil, UsersOutput{}, WrapError(err)
		}
		if err := d.App.Users.Delete(ctx, input.Username); err != nil {
			return nil, UsersOutput{}, WrapError(err)
		}
		out, err := usersOutput(ctx, d, false)
		if err != nil {
			return nil, UsersOutput{}, err
		}
		out.Notices = notices()
		return nil, out, nil
	}
}
