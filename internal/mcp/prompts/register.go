package prompts

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all prompts with the MCP server.
func Register(srv *sdkmcp.Server, cfg *Config) {
	srv.AddPrompt(&sdkmcp.Prompt{
		Name:        "trade_flow_analysis",
		Description: "RECOMMENDED: Analyze import/export flows for a customs code or country pair. Walks through option discovery, searching, paging, jq aggregation and export.",
		Arguments: []*sdkmcp.PromptArgument{
			{
				Name:        "customs_code",
				Description: "HS customs code to focus on (e.g., '811010')",
				Required:    false,
			},
			{
				Name:        "country",
				Description: "Import or export country to focus on (e.g., 'China (CN)')",
				Required:    false,
			},
			{
				Name:        "period",
				Description: "Date range as YYYY-MM-DD..YYYY-MM-DD",
				Required:    false,
			},
		},
	}, HandleTradeFlowAnalysis(cfg))

	srv.AddPrompt(&sdkmcp.Prompt{
		Name:        "usage_guide",
		Description: "Guide to the customs tools: sessions, roles, paging limits, confirmations and error codes",
	}, HandleUsageGuide(cfg))
}
