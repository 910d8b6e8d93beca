// Package options loads the selectable values of the filter form: customs
// codes and import/export countries.
package options

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/usestring/customs-mcp/internal/cache"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Lists holds every option list offered by the filter form.
type Lists struct {
	CustomsCodes    []string `json:"customs_codes"`
	ImportCountries []string `json:"import_countries"`
	ExportCountries []string `json:"export_countries"`
}

// Loader fetches option lists and caches them per user, since the server
// scopes them to the caller's allowed customs codes.
type Loader struct {
	api   *client.Client
	cache *cache.LRU[*Lists]
	group singleflight.Group
}

// NewLoader creates a Loader caching up to maxUsers entries.
func NewLoader(api *client.Client, maxUsers int) (*Loader, error) {
	c, err := cache.New[*Lists](maxUsers)
	if err != nil {
		return nil, fmt.Errorf("creating options cache: %w", err)
	}
	return &Loader{api: api, cache: c}, nil
}

// Load returns the option lists for username, fetching both lists in
// parallel on a miss. Concurrent misses for the same user share one fetch.
func (l *Loader) Load(ctx context.Context, username string) (*Lists, error) {
	if lists, ok := l.cache.Get(username); ok {
		return lists, nil
	}

	v, err, _ := l.group.Do(username, func() (any, error) {
		if lists, ok := l.cache.Get(username); ok {
			return lists, nil
		}
		lists, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Put(username, lists)
		return lists, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Lists), nil
}

func (l *Loader) fetch(ctx context.Context) (*Lists, error) {
	start := time.Now()
	var (
		codes     []string
		countries *client.Countries
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		codes, err = l.api.CustomsCodes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		countries, err = l.api.Countries(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading options: %w", err)
	}

	lists := &Lists{
		CustomsCodes:    nonNil(codes),
		ImportCountries: nonNil(countries.ImportCountries),
		ExportCountries: nonNil(countries.ExportCountries),
	}
	slog.Debug("options loaded",
		slog.Int("customs_codes", len(lists.CustomsCodes)),
		slog.Int("import_countries", len(lists.ImportCountries)),
		slog.Int("export_countries", len(lists.ExportCountries)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return lists, nil
}

// Invalidate drops the cached lists of one user.
func (l *Loader) Invalidate(username string) {
	l.cache.Remove(username)
}

// InvalidateAll drops every cached list, e.g. after an import or a delete
// that may have removed the last row of a code.
func (l *Loader) InvalidateAll() {
	l.cache.Purge()
}

// Filter returns the options containing input, ignoring case. An empty input
// matches everything.
func Filter(options []string, input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return append([]string{}, options...)
	}
	fold := cases.Fold()
	needle := fold.String(input)
	out := []string{}
	for _, opt := range options {
		if strings.Contains(fold.String(opt), needle) {
			out = append(out, opt)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
