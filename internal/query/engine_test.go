package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/customs-mcp/pkg/client"
)

func f64(v float64) *float64 { return &v }

func sampleRows() []client.Record {
	return []client.Record{
		{ID: "rec-1", CustomsCode: "811010", Importer: "Acme", ExportCountry: "Vietnam (VN)", AmountUSD: f64(100), Date: client.NewDate(2024, 3, 15)},
		{ID: "rec-2", CustomsCode: "811010", Importer: "Acme", ExportCountry: "Laos (LA)", AmountUSD: f64(250.5)},
		{ID: "rec-3", CustomsCode: "260400", Importer: "Globex", ExportCountry: "Vietnam (VN)"},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(8)
	require.NoError(t, err)
	return e
}

func TestRun_EachRow(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), ".importer", Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{"Acme", "Acme", "Globex"}, res.Values)
	assert.Equal(t, []string{"rec-1", "rec-2", "rec-3"}, res.MatchedRowKeys)
}

func TestRun_SelectTracksMatchedRows(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), `select(.export_country == "Vietnam (VN)") | .customs_code`, Options{Deduplicate: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"811010", "260400"}, res.Values)
	assert.Equal(t, []string{"rec-1", "rec-3"}, res.MatchedRowKeys)
}

func TestRun_Deduplicate(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), ".customs_code", Options{Deduplicate: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"811010", "260400"}, res.Values)
	assert.Equal(t, 3, res.RawCount)
}

func TestRun_MissingNumbersAreNull(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), ".amount_usd", Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{100.0, 250.5}, res.Values)
}

func TestRun_PageMode(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), `map(.amount_usd // 0) | add`, Options{Mode: ModePage})
	require.NoError(t, err)
	assert.Equal(t, []any{350.5}, res.Values)
	assert.Empty(t, res.MatchedRowKeys)

	res, err = e.Run(sampleRows(), `group_by(.importer) | map({importer: .[0].importer, n: length})`, Options{Mode: ModePage})
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	assert.Equal(t, []any{
		map[string]any{"importer": "Acme", "n": 2},
		map[string]any{"importer": "Globex", "n": 1},
	}, res.Values[0])
}

func TestRun_MaxResults(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), ".id", Options{MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, []any{"rec-1", "rec-2"}, res.Values)
}

func TestRun_DateIsLiteral(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows()[:1], ".date", Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{"2024-03-15"}, res.Values)
}

func TestRun_RuntimeErrorsAreCollected(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows(), ".importer[]", Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Values)
	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "rec-1: ")
	assert.Empty(t, res.MatchedRowKeys)
}

func TestRun_HaltError(t *testing.T) {
	e := newEngine(t)

	res, err := e.Run(sampleRows()[:1], `"stop" | halt_error`, Options{})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "rec-1: query halted with: stop")
}

func TestValidate(t *testing.T) {
	e := newEngine(t)

	assert.NoError(t, e.Validate(".importer"))
	assert.Error(t, e.Validate(".importer |"))
	assert.Error(t, e.Validate("undefined_func"))
}

func TestCompile_Cached(t *testing.T) {
	e := newEngine(t)

	first, err := e.compile(".importer")
	require.NoError(t, err)
	second, err := e.compile(".importer")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
