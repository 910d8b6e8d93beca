package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok Token
	if err := c.postForm(ctx, "/auth/login", form, &tok); err != nil {
		return nil, fmt.Errorf("logging in as %q: %w", username, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("logging in as %q: empty access token", username)
	}
	return &tok, nil
}

// CurrentUser returns the profile of the user owning the current token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/auth/me", nil, &u); err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &u, nil
}

// Logout notifies the server that the token is no longer used.
// Tokens are stateless, so this is advisory.
func (c *Client) Logout(ctx context.Context) error {
	var resp messageResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/logout", nil, &resp); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
