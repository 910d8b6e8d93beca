// Package prompts contains MCP prompt implementations for the customs
// data client.
package prompts

// Config holds configuration needed by prompts.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}
