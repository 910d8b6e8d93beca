package dataquery

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/usestring/customs-mcp/pkg/client"
)

// Row is one rendered table row. Key is derived from the record id, so it
// stays the same across refreshes and page changes.
type Row struct {
	Key    uint32        `json:"key"`
	Record client.Record `json:"record"`
}

// rowKeys interns record ids into small stable keys.
type rowKeys struct {
	ids  map[string]uint32
	next uint32
}

func newRowKeys() *rowKeys {
	return &rowKeys{ids: make(map[string]uint32)}
}

func (k *rowKeys) key(id string) uint32 {
	if v, ok := k.ids[id]; ok {
		return v
	}
	v := k.next
	k.next++
	k.ids[id] = v
	return v
}

func (k *rowKeys) rows(recs []client.Record) []Row {
	out := make([]Row, len(recs))
	for i, r := range recs {
		out[i] = Row{Key: k.key(r.ID), Record: r}
	}
	return out
}

// selection is the set of checked rows, by key.
type selection struct {
	bm *roaring.Bitmap
}

func newSelection() *selection {
	return &selection{bm: roaring.New()}
}

func (s *selection) add(keys ...uint32) {
	s.bm.AddMany(keys)
}

func (s *selection) clear() {
	s.bm.Clear()
}

func (s *selection) len() int {
	return int(s.bm.GetCardinality())
}

// retain drops every selected key not in visible.
func (s *selection) retain(visible []Row) {
	keep := roaring.New()
	for _, r := range visible {
		keep.Add(r.Key)
	}
	s.bm.And(keep)
}

// ids returns the record ids of the selected visible rows, in row order.
func (s *selection) ids(visible []Row) []string {
	out := []string{}
	for _, r := range visible {
		if s.bm.Contains(r.Key) {
			out = append(out, r.Record.ID)
		}
	}
	return out
}
