package tools

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all tools with the MCP server.
func Register(srv *sdkmcp.Server, d *Deps) {
	// Session
	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_login",
		Description: "Sign in to the customs data service. Returns the account and the page landed on (the interrupted page after a session expiry, otherwise home).",
	}, ToolLogin(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_logout",
		Description: "Sign out. All table state, selections and pending confirmations are discarded.",
	}, ToolLogout(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_whoami",
		Description: "Show the signed-in account, its role and customs code restrictions, and the current page",
	}, ToolWhoami(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_options",
		Description: "List the customs codes, import countries and export countries available as filter values to the signed-in account. Use filter to narrow long lists.",
	}, ToolOptions(d))

	// Data table
	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_search",
		Description: "Search customs trade records. Without page/page_size this submits the form: page 1, current page size. Returns the visible page with total count and a summary line. On failure the previous rows stay.",
	}, ToolSearch(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_table_change",
		Description: "Change page, page size or header sort of the current search. A new page size returns to page 1. sort_order ascend/descend maps to asc/desc; empty restores the default date sort.",
	}, ToolTableChange(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_reset_filter",
		Description: "Reset the filter form to its defaults. Visible rows stay until the next search.",
	}, ToolResetFilter(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_export",
		Description: "Export every row matching the last search to an .xlsx workbook and return where it was stored. Fails without sending anything when the last search matched nothing.",
	}, ToolExport(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_quick_search",
		Description: "Home page quick search: open the data page filtered by one customs code, export country or import country",
	}, ToolQuickSearch(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_ai_search",
		Description: "Translate a natural-language request into filter criteria with the AI endpoint and search with them. A malformed AI reply is rejected whole and changes nothing.",
	}, ToolAISearch(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_rows_query",
		Description: "Run a jq expression over the visible rows, e.g. `.amount_usd` or `select(.importer == \"Acme\") | .id`. Use mode=page with `group_by(.export_country) | map({country: .[0].export_country, n: length})` for aggregates over the page.",
	}, ToolRowsQuery(d))

	// Record maintenance (admin)
	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_record_save",
		Description: "Admin: create a record, or edit a visible record by id. customs_code and date are required; numeric fields accept thousands separators. Blank fields keep the current value.",
	}, ToolRecordSave(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_record_delete",
		Description: "Admin: delete one visible record by id, or every selected row with selected=true",
	}, ToolRecordDelete(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_select_rows",
		Description: "Select visible rows by id for bulk delete. The selection only keeps rows that stay visible.",
	}, ToolSelectRows(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_delete_prepare",
		Description: "Admin: prepare a delete by the last search's condition. Returns displayed and matching counts and a token valid for 5 minutes. Nothing is deleted until customs_delete_confirm.",
	}, ToolDeletePrepare(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_delete_confirm",
		Description: "Admin: execute a prepared delete. Each token works once.",
	}, ToolDeleteConfirm(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_import_excel",
		Description: "Admin: upload an .xlsx or .xls file for background import, from a local path or inline base64 content",
	}, ToolImportExcel(d))

	// User management (admin)
	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_users_list",
		Description: "Admin: list accounts with their roles and allowed customs codes",
	}, ToolUsersList(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_user_save",
		Description: "Admin: create an account, or update one with update=true. An empty allowed_customs_codes list means unrestricted.",
	}, ToolUserSave(d))

	AddTool(srv, &sdkmcp.Tool{
		Name:        "customs_user_delete",
		Description: "Admin: delete an account. The bootstrap admin and the signed-in account cannot be deleted.",
	}, ToolUserDelete(d))
}
