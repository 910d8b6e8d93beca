// Package apitest provides an in-memory fake of the customs data API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/usestring/customs-mcp/pkg/client"
)

// Default credentials of the seeded bootstrap account.
const (
	AdminUser     = client.BootstrapAdmin
	AdminPassword = "admin123"
)

// Call is one request observed by the fake.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header
}

type account struct {
	user     client.User
	password string
}

type failure struct {
	status int
	detail string
}

// Server is a fake customs data API backed by memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account
	tokens   map[string]string
	records  []client.Record
	nextID   int
	nextTok  int
	calls    []Call
	failures map[string]failure
	gates    map[string]chan struct{}

	// AIReply is returned verbatim by POST /ai/search.
	AIReply string
}

// New starts a fake server seeded with the bootstrap admin account.
func New() *Server {
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		failures: make(map[string]failure),
		gates:    make(map[string]chan struct{}),
		AIReply:  `{}`,
	}
	s.accounts[AdminUser] = &account{
		user:     client.User{Username: AdminUser, IsAdmin: true, AllowedCustomsCodes: []string{}, CreatedAt: "2024-01-01T00:00:00"},
		password: AdminPassword,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// Client returns an API client pointed at the fake.
func (s *Server) Client(opts ...client.Option) *client.Client {
	return client.New(append([]client.Option{client.WithBaseURL(s.URL)}, opts...)...)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)

			r.Get("/data/search", s.handleSearch)
			r.Get("/data/customs-codes", s.handleCustomsCodes)
			r.Get("/data/countries", s.handleCountries)
			r.Post("/data", s.handleCreate)
			r.Put("/data/{id}", s.handleUpdate)
			r.Delete("/data/{id}", s.handleDelete)
			r.Post("/data/bulk-delete", s.handleBulkDelete)
			r.Post("/data/bulk-delete-by-condition", s.handleDeleteByCondition)

			r.Post("/import/excel", s.handleImport)
			r.Post("/ai/search", s.handleAISearch)

			r.Get("/user", s.handleListUsers)
			r.Post("/user", s.handleCreateUser)
			r.Get("/user/{username}", s.handleGetUser)
			r.Put("/user/{username}", s.handleUpdateUser)
			r.Delete("/user/{username}", s.handleDeleteUser)
		})
	})
	return r
}

// record captures every request and applies injected failures and gates.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		path := strings.TrimPrefix(r.URL.Path, "/api/v1")

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.Query(),
			Body:   body,
			Header: r.Header.Clone(),
		})
		key := r.Method + " " + path
		f, failing := s.failures[key]
		if failing {
			delete(s.failures, key)
		}
		gate := s.gates[key]
		if gate != nil {
			delete(s.gates, key)
		}
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next request to method+path fail with status.
// The path excludes the /api/v1 prefix.
func (s *Server) FailNext(method, path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, detail: detail}
}

// Hold blocks the next request to method+path until the returned function
// is called.
func (s *Server) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[method+" "+path] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the recorded requests matching method and path.
// An empty method matches any.
func (s *Server) Calls(method, path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// AddUser creates an account directly.
func (s *Server) AddUser(u client.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.AllowedCustomsCodes == nil {
		u.AllowedCustomsCodes = []string{}
	}
	s.accounts[u.Username] = &account{user: u, password: password}
}

// IssueToken returns a valid token for an existing user.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username)
}

func (s *Server) issueLocked(username string) string {
	s.nextTok++
	tok := fmt.Sprintf("tok-%s-%d", username, s.nextTok)
	s.tokens[tok] = username
	return tok
}

// RevokeTokens invalidates every issued token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// Seed appends records and returns their assigned ids.
func (s *Server) Seed(recs ...client.Record) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		r.ID = s.newIDLocked()
		s.records = append(s.records, r)
		ids = append(ids, r.ID)
	}
	return ids
}

// Records returns a copy of the stored records.
func (s *Server) Records() []client.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]client.Record(nil), s.records...)
}

func (s *Server) newIDLocked() string {
	s.nextID++
	return "rec-" + strconv.Itoa(s.nextID)
}

type ctxKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		username, ok := s.tokens[tok]
		acct := s.accounts[username]
		s.mu.Unlock()
		if !ok || acct == nil {
			writeDetail(w, http.StatusUnauthorized, "could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), acct.user)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[r.PostForm.Get("username")]
	if acct == nil || acct.password != r.PostForm.Get("password") {
		writeDetail(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, client.Token{AccessToken: s.issueLocked(acct.user.Username), TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize := atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("page_size"), 20)
	if page < 1 || pageSize < 1 {
		writeDetail(w, http.StatusUnprocessableEntity, "page and page_size must be positive")
		return
	}
	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = client.DefaultSortField
	}
	desc := q.Get("sort_order") != client.SortAsc

	user := userFrom(r.Context())
	s.mu.Lock()
	matched := s.matchLocked(filterFromValues(q), &user)
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		c := compareField(matched[i], matched[j], sortBy)
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	from := (page - 1) * pageSize
	if from > total {
		from = total
	}
	to := from + pageSize
	if to > total {
		to = total
	}
	writeJSON(w, http.StatusOK, client.ResultPage{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		Rows:       matched[from:to],
	})
}

func (s *Server) handleCustomsCodes(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, distinct(s.matchLocked(client.Filter{}, &user), func(rec client.Record) string { return rec.CustomsCode }))
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.matchLocked(client.Filter{}, &user)
	writeJSON(w, http.StatusOK, client.Countries{
		ImportCountries: distinct(recs, func(rec client.Record) string { return rec.ImportCountry }),
		ExportCountries: distinct(recs, func(rec client.Record) string { return rec.ExportCountry }),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec client.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	rec.ID = s.newIDLocked()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, client.WriteResult{ID: rec.ID, Result: "created", Data: &rec})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var rec client.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			rec.ID = id
			s.records[i] = rec
			writeJSON(w, http.StatusOK, client.WriteResult{ID: id, Result: "updated", Data: &rec})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "record not found")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.removeLocked(func(rec client.Record) bool { return rec.ID == id })
	if n == 0 {
		writeDetail(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, client.WriteResult{ID: id, Result: "deleted"})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DataIDs []string `json:"data_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ids := make(map[string]bool, len(body.DataIDs))
	for _, id := range body.DataIDs {
		ids[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.removeLocked(func(rec client.Record) bool { return ids[rec.ID] })
	writeJSON(w, http.StatusOK, client.WriteResult{Result: "success", Deleted: n})
}

func (s *Server) handleDeleteByCondition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QueryParams client.Filter `json:"query_params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if body.QueryParams.IsEmpty() {
		writeDetail(w, http.StatusBadRequest, "delete condition must not be empty")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := body.QueryParams
	n := s.removeLocked(func(rec client.Record) bool { return matches(rec, f) })
	writeJSON(w, http.StatusOK, client.WriteResult{Result: "success", Deleted: n})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !userFrom(r.Context()).IsAdmin {
		writeDetail(w, http.StatusForbidden, "admin privileges required")
		return
	}
	_, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, client.ImportResult{Message: "import started", Filename: header.Filename})
}

func (s *Server) handleAISearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reply := s.AIReply
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !userFrom(r.Context()).IsAdmin {
		writeDetail(w, http.StatusForbidden, "admin privileges required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]client.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		users = append(users, a.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[chi.URLParam(r, "username")]
	if a == nil {
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, a.user)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !userFrom(r.Context()).IsAdmin {
		writeDetail(w, http.StatusForbidden, "admin privileges required")
		return
	}
	var in client.UserCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "user already exists")
		return
	}
	u := client.User{Username: in.Username, IsAdmin: in.IsAdmin, AllowedCustomsCodes: in.AllowedCustomsCodes}
	s.accounts[in.Username] = &account{user: u, password: in.Password}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password            *string  `json:"password"`
		IsAdmin             *bool    `json:"is_admin"`
		AllowedCustomsCodes []string `json:"allowed_customs_codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[chi.URLParam(r, "username")]
	if a == nil {
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	}
	if in.Password != nil {
		a.password = *in.Password
	}
	if in.IsAdmin != nil {
		a.user.IsAdmin = *in.IsAdmin
	}
	if in.AllowedCustomsCodes != nil {
		a.user.AllowedCustomsCodes = in.AllowedCustomsCodes
	}
	writeJSON(w, http.StatusOK, a.user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !userFrom(r.Context()).IsAdmin {
		writeDetail(w, http.StatusForbidden, "admin privileges required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := chi.URLParam(r, "username")
	if _, ok := s.accounts[name]; !ok {
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	}
	delete(s.accounts, name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// Password returns the stored password of a user, for assertions.
func (s *Server) Password(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.accounts[username]; a != nil {
		return a.password
	}
	return ""
}

// User returns the stored account, for assertions.
func (s *Server) User(username string) (client.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[username]
	if a == nil {
		return client.User{}, false
	}
	return a.user, true
}
