package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListUsers lists every account. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/user", nil, &users); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// GetUser retrieves one account.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	if err := c.get(ctx, "/user/"+url.PathEscape(username), nil, &u); err != nil {
		return nil, fmt.Errorf("getting user %q: %w", username, err)
	}
	return &u, nil
}

// CreateUser creates an account. Admin only.
func (c *Client) CreateUser(ctx context.Context, in UserCreate) (*User, error) {
	if in.AllowedCustomsCodes == nil {
		in.AllowedCustomsCodes = []string{}
	}
	var u User
	if err := c.sendJSON(ctx, http.MethodPost, "/user", in, &u); err != nil {
		return nil, fmt.Errorf("creating user %q: %w", in.Username, err)
	}
	return &u, nil
}

// UpdateUser updates an account.
func (c *Client) UpdateUser(ctx context.Context, username string, in UserUpdate) (*User, error) {
	if in.AllowedCustomsCodes == nil {
		in.AllowedCustomsCodes = []string{}
	}
	var u User
	if err := c.sendJSON(ctx, http.MethodPut, "/user/"+url.PathEscape(username), in, &u); err != nil {
		return nil, fmt.Errorf("updating user %q: %w", username, err)
	}
	return &u, nil
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	var resp messageResponse
	if err := c.sendJSON(ctx, http.MethodDelete, "/user/"+url.PathEscape(username), nil, &resp); err != nil {
		return fmt.Errorf("deleting user %q: %w", username, err)
	}
	return nil
}
