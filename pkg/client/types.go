package client

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Sort orders accepted by the search endpoint.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Record field names as used on the wire. They double as sort keys.
const (
	FieldCustomsCode        = "海关编码"
	FieldProductDescription = "编码产品描述"
	FieldDate               = "日期"
	FieldImporter           = "进口商"
	FieldImportCountry      = "进口商所在国家"
	FieldExporter           = "出口商"
	FieldExportCountry      = "出口商所在国家"
	FieldQuantityUnit       = "数量单位"
	FieldQuantity           = "数量"
	FieldMetricTons         = "公吨"
	FieldAmountUSD          = "金额美元"
	FieldProductDetail      = "详细产品名称"
	FieldBillOfLading       = "提单号"
	FieldDataSource         = "数据来源"
	FieldDeclarationNumber  = "关单号"
)

// DefaultSortField is the sort key used when none is requested.
const DefaultSortField = FieldDate

// RecordFields lists the sortable record fields in display order.
var RecordFields = []string{
	FieldCustomsCode,
	FieldProductDescription,
	FieldDate,
	FieldImporter,
	FieldImportCountry,
	FieldExporter,
	FieldExportCountry,
	FieldQuantityUnit,
	FieldQuantity,
	FieldMetricTons,
	FieldAmountUSD,
	FieldProductDetail,
	FieldBillOfLading,
	FieldDataSource,
	FieldDeclarationNumber,
}

// Record is a single customs declaration row.
type Record struct {
	ID                 string   `json:"id,omitempty"`
	CustomsCode        string   `json:"海关编码"`
	ProductDescription string   `json:"编码产品描述"`
	Date               Date     `json:"日期"`
	Importer           string   `json:"进口商"`
	ImportCountry      string   `json:"进口商所在国家"`
	Exporter           string   `json:"出口商"`
	ExportCountry      string   `json:"出口商所在国家"`
	QuantityUnit       string   `json:"数量单位"`
	Quantity           *float64 `json:"数量"`
	MetricTons         *float64 `json:"公吨"`
	AmountUSD          *float64 `json:"金额美元"`
	ProductDetail      string   `json:"详细产品名称"`
	BillOfLading       string   `json:"提单号"`
	DataSource         string   `json:"数据来源"`
	DeclarationNumber  string   `json:"关单号"`
}

// UnmarshalJSON accepts the server id under either "id" or "_id".
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		*plain
		RawID string `json:"_id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.RawID
	}
	return nil
}

// Filter is the serialized filter shared by search and delete-by-condition.
// Empty fields are omitted.
type Filter struct {
	CustomsCode   string `json:"customs_code,omitempty"`
	ImportCountry string `json:"import_country,omitempty"`
	ExportCountry string `json:"export_country,omitempty"`
	Importer      string `json:"importer,omitempty"`
	Exporter      string `json:"exporter,omitempty"`
	StartDate     string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate       string `json:"end_date,omitempty"`   // YYYY-MM-DD
}

// IsEmpty reports whether no condition is set.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// values encodes the filter as query parameters.
func (f Filter) values() url.Values {
	v := make(url.Values)
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("customs_code", f.CustomsCode)
	set("import_country", f.ImportCountry)
	set("export_country", f.ExportCountry)
	set("importer", f.Importer)
	set("exporter", f.Exporter)
	set("start_date", f.StartDate)
	set("end_date", f.EndDate)
	return v
}

// SearchParams is a full search query: filter, pagination and sort.
type SearchParams struct {
	Filter
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Values encodes the query as URL parameters.
func (p SearchParams) Values() url.Values {
	v := p.Filter.values()
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.SortBy != "" {
		v.Set("sort_by", p.SortBy)
	}
	if p.SortOrder != "" {
		v.Set("sort_order", p.SortOrder)
	}
	return v
}

// ResultPage is one page of search results.
type ResultPage struct {
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
	Rows       []Record `json:"data"`
}

// Countries holds the distinct import and export countries.
type Countries struct {
	ImportCountries []string `json:"import_countries"`
	ExportCountries []string `json:"export_countries"`
}

// WriteResult is returned by record mutations.
type WriteResult struct {
	ID      string  `json:"id,omitempty"`
	Result  string  `json:"result,omitempty"`
	Deleted int     `json:"deleted,omitempty"`
	Data    *Record `json:"data,omitempty"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// BootstrapAdmin is the account created by the server on first start.
const BootstrapAdmin = "admin"

// User is an account as returned by the API.
type User struct {
	Username            string   `json:"username"`
	IsAdmin             bool     `json:"is_admin"`
	AllowedCustomsCodes []string `json:"allowed_customs_codes"`
	CreatedAt           string   `json:"created_at,omitempty"`
	UpdatedAt           string   `json:"updated_at,omitempty"`
}

// Unrestricted reports whether the user may see every customs code.
// An empty allow-list means no restriction, not no access.
func (u *User) Unrestricted() bool {
	return u.IsAdmin || len(u.AllowedCustomsCodes) == 0
}

// CanAccess reports whether the user may see records with the given code.
func (u *User) CanAccess(customsCode string) bool {
	if u.Unrestricted() {
		return true
	}
	for _, c := range u.AllowedCustomsCodes {
		if c == customsCode {
			return true
		}
	}
	return false
}

// UserCreate is the payload for creating a user.
type UserCreate struct {
	Username            string   `json:"username"`
	Password            string   `json:"password"`
	IsAdmin             bool     `json:"is_admin"`
	AllowedCustomsCodes []string `json:"allowed_customs_codes"`
}

// UserUpdate is the payload for updating a user. An empty Password is
// omitted, which leaves the stored password unchanged.
type UserUpdate struct {
	Password            string   `json:"password,omitempty"`
	IsAdmin             bool     `json:"is_admin"`
	AllowedCustomsCodes []string `json:"allowed_customs_codes"`
}

// ImportResult is the response of an Excel upload.
type ImportResult struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// AISearchRequest is the payload for the natural-language search helper.
type AISearchRequest struct {
	SearchValue     string   `json:"search_value"`
	ExportCountries []string `json:"export_countries"`
	ImportCountries []string `json:"import_countries"`
}

// messageResponse is a generic {"message": ...} body.
type messageResponse struct {
	Message string `json:"message"`
}
