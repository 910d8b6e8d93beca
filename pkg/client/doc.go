// Package client provides a Go SDK for the customs trade data API.
//
// The API serves customs declaration records (imports and exports keyed by
// customs code, country and company), user accounts with per-user customs
// code restrictions, an Excel import endpoint and a natural-language search
// helper backed by an AI completion service.
//
// # Quick Start
//
// Create a client, log in and search:
//
//	c := client.New(client.WithBaseURL("http://localhost:8000"))
//	tok, err := c.Login(ctx, "admin", "secret")
//	c.SetSession(client.StaticToken(tok.AccessToken), nil)
//	page, err := c.Search(ctx, client.SearchParams{
//	    Filter:   client.Filter{Importer: "Acme"},
//	    Page:     1,
//	    PageSize: 20,
//	})
//
// # Sessions
//
// The client does not store tokens itself. A TokenSource supplies the bearer
// token for every request and an optional handler is invoked whenever an
// authenticated request comes back with 401, so the owner of the session can
// tear it down:
//
//	c.SetSession(store, store.HandleUnauthorized)
//
// # Errors
//
// Non-2xx responses are returned as *APIError with a Kind derived from the
// status code. Transport failures are returned as *NetworkError. Use
// errors.Is with ErrUnauthorized or ErrForbidden for the common checks:
//
//	if errors.Is(err, client.ErrForbidden) {
//	    // admin privileges required
//	}
//
// # Records
//
// Records use the server's field names on the wire. Dates travel as
// YYYY-MM-DD strings and numeric fields are nullable.
package client
