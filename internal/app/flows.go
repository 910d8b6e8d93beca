package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/notify"
	"github.com/usestring/customs-mcp/internal/options"
	"github.com/usestring/customs-mcp/internal/query"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Login signs in and returns to the interrupted page.
func (a *App) Login(ctx context.Context, username, password string) (*client.User, Location, error) {
	errs := form.Errors{}
	if strings.TrimSpace(username) == "" {
		errs.Add("username", "required")
	}
	if password == "" {
		errs.Add("password", "required")
	}
	if err := errs.Err(); err != nil {
		return nil, a.Router.Current(), err
	}

	u, err := a.Session.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		notify.Error(ctx, a.Notes, "登录失败: "+err.Error())
		return nil, a.Router.Current(), err
	}
	notify.Success(ctx, a.Notes, "登录成功")
	loc, err := a.Router.AfterLogin(ctx)
	return u, loc, err
}

// Logout ends the session. The session subscription does the rest.
func (a *App) Logout(ctx context.Context) Location {
	a.Session.Logout(ctx)
	notify.Info(ctx, a.Notes, "已退出登录")
	return a.Router.Current()
}

// QuickKind is a home-page search type.
type QuickKind string

const (
	QuickCustomsCode   QuickKind = "customs_code"
	QuickExportCountry QuickKind = "export_country"
	QuickImportCountry QuickKind = "import_country"
)

// QuickSearch opens the data page filtered by one field.
func (a *App) QuickSearch(ctx context.Context, kind QuickKind, value string) (*dataquery.Snapshot, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, form.Invalid("value", "required")
	}
	var c dataquery.Criteria
	switch kind {
	case QuickCustomsCode:
		c.CustomsCode = value
	case QuickExportCountry:
		c.ExportCountry = value
	case QuickImportCountry:
		c.ImportCountry = value
	default:
		return nil, form.Invalid("kind", fmt.Sprintf("must be %s, %s or %s", QuickCustomsCode, QuickExportCountry, QuickImportCountry))
	}
	return a.openData(ctx, c)
}

// AISearch turns text into criteria through the AI endpoint and opens the
// data page with them. A malformed reply is rejected whole.
func (a *App) AISearch(ctx context.Context, text string) (*dataquery.Snapshot, error) {
	u, err := a.Session.User()
	if err != nil {
		return nil, ErrLoginRequired
	}
	c, err := a.AI.Translate(ctx, u.Username, text)
	if err != nil {
		if !form.IsValidation(err) {
			notify.Error(ctx, a.Notes, "AI搜索失败，请重试")
		}
		return nil, err
	}
	return a.openData(ctx, c)
}

func (a *App) openData(ctx context.Context, c dataquery.Criteria) (*dataquery.Snapshot, error) {
	if _, err := a.Router.Navigate(ctx, RouteDataQuery, &c); err != nil {
		return nil, err
	}
	return a.Data.ApplyIncoming(ctx, c)
}

// ImportExtensions are the spreadsheet types the server accepts.
var ImportExtensions = []string{".xlsx", ".xls"}

// ErrUnsupportedFile is returned for a file that is not a spreadsheet.
var ErrUnsupportedFile = errors.New("only .xlsx and .xls files can be imported")

// ImportFile uploads the spreadsheet at path.
func (a *App) ImportFile(ctx context.Context, path string) (*client.ImportResult, error) {
	if err := a.checkImport(ctx, path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return a.Import(ctx, filepath.Base(path), f)
}

// Import uploads a spreadsheet read from content. The server imports it in
// the background; option lists are dropped so new values show up.
func (a *App) Import(ctx context.Context, name string, content io.Reader) (*client.ImportResult, error) {
	if err := a.checkImport(ctx, name); err != nil {
		return nil, err
	}
	res, err := a.API.ImportExcel(ctx, name, content)
	if err != nil {
		notify.Error(ctx, a.Notes, "文件上传失败，请重试")
		return nil, err
	}
	a.Options.InvalidateAll()
	notify.Success(ctx, a.Notes, "文件上传成功，数据导入任务已启动")
	return res, nil
}

func (a *App) checkImport(ctx context.Context, name string) error {
	if _, err := a.Router.Navigate(ctx, RouteImport, nil); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, ok := range ImportExtensions {
		if ext == ok {
			return nil
		}
	}
	notify.Error(ctx, a.Notes, "仅支持 .xlsx 和 .xls 格式文件")
	return fmt.Errorf("%s: %w", name, ErrUnsupportedFile)
}

// FilterOptions returns the option lists of the signed-in user narrowed to
// entries containing input, case-insensitively.
func (a *App) FilterOptions(ctx context.Context, input string) (*options.Lists, error) {
	u, err := a.Session.User()
	if err != nil {
		return nil, ErrLoginRequired
	}
	lists, err := a.Options.Load(ctx, u.Username)
	if err != nil {
		notify.Error(ctx, a.Notes, "获取选项失败: "+err.Error())
		return nil, err
	}
	return &options.Lists{
		CustomsCodes:    options.Filter(lists.CustomsCodes, input),
		ImportCountries: options.Filter(lists.ImportCountries, input),
		ExportCountries: options.Filter(lists.ExportCountries, input),
	}, nil
}

// QueryRows runs a jq expression over the visible rows.
func (a *App) QueryRows(expression string, opts query.Options) (*query.Result, error) {
	snap := a.Data.Snapshot()
	recs := make([]client.Record, len(snap.Rows))
	for i, r := range snap.Rows {
		recs[i] = r.Record
	}
	return a.Rows.Run(recs, expression, opts)
}
