package prompts

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// HandleUsageGuide serves the tool usage guide.
func HandleUsageGuide(cfg *Config) func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	return func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
		var sb strings.Builder

		sb.WriteString("# Customs Tools Guide\n\n")

		sb.WriteString("## Sessions and Pages\n")
		sb.WriteString("- Call `customs_login` first. Every other tool needs a session.\n")
		sb.WriteString("- A session expiry surfaces as UNAUTHORIZED from any tool. All table state is discarded; log in again and the interrupted page is restored.\n")
		sb.WriteString("- Outputs carry `route` (the current page) and `notices` (what an operator would have seen as toasts).\n")

		sb.WriteString("\n## Roles\n")
		sb.WriteString("| Tool group | Viewer | Admin |\n")
		sb.WriteString("|------------|--------|-------|\n")
		sb.WriteString("| search, table_change, quick_search, ai_search, rows_query, export | yes | yes |\n")
		sb.WriteString("| record_save, record_delete, delete_prepare, delete_confirm, import_excel | no | yes |\n")
		sb.WriteString("| users_list, user_save, user_delete | no | yes |\n")
		sb.WriteString("\nAdmin-only tools are refused locally with FORBIDDEN; nothing is sent.\n")

		sb.WriteString("\n## Paging\n")
		fmt.Fprintf(&sb, "- Default page size %d, maximum %d.\n", cfg.DefaultPageSize, cfg.MaxPageSize)
		sb.WriteString("- `customs_search` without page arguments starts at page 1 and keeps the current page size.\n")
		sb.WriteString("- Changing page size in `customs_table_change` returns to page 1.\n")
		sb.WriteString("- A failed search keeps the previous rows.\n")

		sb.WriteString("\n## Deleting by Condition\n")
		sb.WriteString("1. Search so the table shows the rows you mean.\n")
		sb.WriteString("2. `customs_delete_prepare(scope=\"displayed\"|\"all_matching\")` returns displayed and matching counts and a token.\n")
		sb.WriteString("3. Show both counts to the user. Only then call `customs_delete_confirm(token=...)`. Tokens expire after 5 minutes and work once.\n")
		sb.WriteString("- `all_matching` with an empty filter is refused: it would delete everything.\n")

		sb.WriteString("\n## Error Codes\n")
		sb.WriteString("- `INVALID_INPUT`: field errors or a tool called at the wrong moment; fix the input\n")
		sb.WriteString("- `UNAUTHORIZED`: log in again\n")
		sb.WriteString("- `FORBIDDEN`: the account lacks the role, or the account is protected\n")
		sb.WriteString("- `NOT_FOUND`: the record is not on the visible page or was deleted\n")
		sb.WriteString("- `AI_PARSE_ERROR`: the AI reply was malformed; rephrase or search directly\n")
		sb.WriteString("- `TIMEOUT` / `API_ERROR`: server side; nothing was retried\n")

		return &sdkmcp.GetPromptResult{
			Description: "Guide for using the customs tools",
			Messages: []*sdkmcp.PromptMessage{
				{
					Role:    "user",
					Content: &sdkmcp.TextContent{Text: sb.String()},
				},
			},
		}, nil
	}
}
