package prompts

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// HandleTradeFlowAnalysis implements the trade flow workflow.
func HandleTradeFlowAnalysis(cfg *Config) func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	return func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
		var code, country, period string
		if args := req.Params.Arguments; args != nil {
			code = strings.TrimSpace(args["customs_code"])
			country = strings.TrimSpace(args["country"])
			period = strings.TrimSpace(args["period"])
		}
		start, end, _ := strings.Cut(period, "..")

		var sb strings.Builder

		sb.WriteString("# Trade Flow Analysis\n\n")
		sb.WriteString("You are a trade data analyst working with customs declarations. ")
		sb.WriteString("Your goal is to describe who ships what to whom, in what volume and value, and how that changes over time.\n\n")

		sb.WriteString("## Focus\n\n")
		if code == "" && country == "" && period == "" {
			sb.WriteString("No focus given. Start from the option lists and pick the codes or countries with the most rows.\n\n")
		} else {
			if code != "" {
				fmt.Fprintf(&sb, "- Customs code: `%s`\n", code)
			}
			if country != "" {
				fmt.Fprintf(&sb, "- Country: `%s` (check it both as import and export country)\n", country)
			}
			if period != "" {
				fmt.Fprintf(&sb, "- Period: `%s` to `%s`\n", start, end)
			}
			sb.WriteString("\n")
		}

		sb.WriteString("## Workflow Steps\n\n")
		sb.WriteString("1. **Check access** - `customs_whoami`. Restricted accounts only see their allowed customs codes.\n")
		sb.WriteString("2. **Discover values** - `customs_options(filter=...)` returns exact code and country spellings. Countries look like `China (CN)`.\n")
		sb.WriteString("3. **Search** - `customs_search` with the exact values")
		if code != "" || country != "" || start != "" {
			sb.WriteString(":\n```\ncustoms_search(")
			var args []string
			if code != "" {
				args = append(args, fmt.Sprintf("customs_code=%q", code))
			}
			if country != "" {
				args = append(args, fmt.Sprintf("import_country=%q", country))
			}
			if start != "" {
				args = append(args, fmt.Sprintf("start_date=%q", start))
			}
			if end != "" {
				args = append(args, fmt.Sprintf("end_date=%q", end))
			}
			sb.WriteString(strings.Join(args, ", "))
			sb.WriteString(")\n```\n")
		} else {
			sb.WriteString(".\n")
		}
		fmt.Fprintf(&sb, "   - The summary line gives the total. Pages default to %d rows; `page_size` goes up to %d.\n", cfg.DefaultPageSize, cfg.MaxPageSize)
		sb.WriteString("4. **Aggregate the page** - `customs_rows_query` runs jq over the visible rows with ASCII keys:\n")
		sb.WriteString("   - Value by exporter country: `mode=page`, `group_by(.export_country) | map({country: .[0].export_country, usd: (map(.amount_usd // 0) | add)})`\n")
		sb.WriteString("   - Top importers: `mode=page`, `group_by(.importer) | map({importer: .[0].importer, n: length}) | sort_by(-.n) | .[:10]`\n")
		sb.WriteString("   - Tonnage per row: `.metric_tons`\n")
		sb.WriteString("5. **Page through** - `customs_table_change(page=N)` for more rows, or sort by a column with `sort_field` (Chinese key, e.g. `金额美元`) and `sort_order=descend`.\n")
		sb.WriteString("6. **Export** - `customs_export` writes every matching row to a workbook when the result is too large to page through.\n\n")

		sb.WriteString("## Expected Output Format\n\n")
		sb.WriteString("1. **Summary**: total rows, period covered, total USD value and tonnage where present\n")
		sb.WriteString("2. **Flows**: top origin/destination pairs with row count and value\n")
		sb.WriteString("3. **Counterparties**: leading importers and exporters\n")
		sb.WriteString("4. **Caveats**: rows without amounts, pages not examined, restricted codes\n\n")

		sb.WriteString("## Constraints\n\n")
		sb.WriteString("- This workflow is read-only. Do NOT call record, delete, import or user tools.\n")
		sb.WriteString("- Aggregates from `customs_rows_query` cover the visible page only; say so or export first.\n\n")

		sb.WriteString("## If Things Go Wrong\n\n")
		sb.WriteString("- **UNAUTHORIZED**: the session expired; call `customs_login` and retry the search.\n")
		sb.WriteString("- **Zero rows?** Check the exact spelling with `customs_options`; filters are exact for codes and countries.\n")
		sb.WriteString("- **Free-text request?** `customs_ai_search(text=...)` turns it into criteria; rejected replies return AI_PARSE_ERROR and change nothing.\n")

		return &sdkmcp.GetPromptResult{
			Description: "Workflow for analyzing trade flows",
			Messages: []*sdkmcp.PromptMessage{
				{
					Role:    "user",
					Content: &sdkmcp.TextContent{Text: sb.String()},
				},
			},
		}, nil
	}
}
