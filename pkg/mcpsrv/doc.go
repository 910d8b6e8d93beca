// Package mcpsrv provides an extensible MCP server for the customs data API.
//
// This package exposes a high-level API for creating and running an MCP server
// with all builtin customs tools, prompts, and resources. Users can extend the
// server with custom tools, prompts, and resources using functional options.
//
// # Basic Usage
//
// Create a server from environment configuration:
//
//	server, err := mcpsrv.NewServer(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close()
//	server.Run(ctx)
//
// # Extension
//
// Add custom tools using MCP SDK types directly. Tools that need the session
// or the data page use WithDepsTool:
//
//	mcpsrv.WithDepsTool(
//	    &mcp.Tool{Name: "row_count", Description: "Rows matching the last search"},
//	    func(d *mcpsrv.Deps) func(ctx context.Context, req *mcp.CallToolRequest, in struct{}) (*mcp.CallToolResult, CountOutput, error) {
//	        return func(ctx context.Context, req *mcp.CallToolRequest, in struct{}) (*mcp.CallToolResult, CountOutput, error) {
//	            return nil, CountOutput{Total: d.App.Data.Snapshot().Total}, nil
//	        }
//	    },
//	)
//
// # Transports
//
// Run serves stdio by default. Set MCP_HTTP_ADDR or pass WithHTTPAddr to
// serve streamable HTTP on /mcp instead, with a liveness check on /healthz.
package mcpsrv
