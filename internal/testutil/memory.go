package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/source"
)

// MemorySource is an in-memory source.Source. Documents are kept in
// insertion order, which is also the order SampleID inspects.
//
// Thread-safety: all methods are safe for concurrent use.
type MemorySource struct {
	mu  sync.Mutex
	dbs map[string]map[string]*memCollection

	// FindErr, when set, is returned by every Find call.
	FindErr error
}

type memCollection struct {
	docs []*document.Document
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{dbs: make(map[string]map[string]*memCollection)}
}

// AddCollection creates db.coll (and db) without documents.
func (s *MemorySource) AddCollection(db, coll string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(db, coll)
}

// Insert appends docs to db.coll, creating it if needed. Documents are
// cloned so later caller mutations are not observed.
func (s *MemorySource) Insert(db, coll string, docs ...*document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(db, coll)
	for _, d := range docs {
		c.docs = append(c.docs, d.Clone())
	}
}

// Replace overwrites the fields of the document with identifier id.
func (s *MemorySource) Replace(db, coll string, id any, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(db, coll)
	for i, d := range c.docs {
		if v, _ := d.Get(source.IDField); compareValues(v, id) == 0 {
			next := doc.Clone()
			next.Set(source.IDField, id)
			c.docs[i] = next
			return nil
		}
	}
	return fmt.Errorf("%s.%s: no document with id %v", db, coll, id)
}

func (s *MemorySource) collection(db, coll string) *memCollection {
	colls, ok := s.dbs[db]
	if !ok {
		colls = make(map[string]*memCollection)
		s.dbs[db] = colls
	}
	c, ok := colls[coll]
	if !ok {
		c = &memCollection{}
		colls[coll] = c
	}
	return c
}

func (s *MemorySource) HasDatabase(_ context.Context, db string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dbs[db]
	return ok, nil
}

func (s *MemorySource) HasCollection(_ context.Context, db, coll string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dbs[db][coll]
	return ok, nil
}

func (s *MemorySource) ListCollections(_ context.Context, db string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.dbs[db]))
	for name := range s.dbs[db] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemorySource) SampleID(_ context.Context, db, coll string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.dbs[db][coll]
	if !ok || len(c.docs) == 0 {
		return nil, nil
	}
	id, _ := c.docs[0].Get(source.IDField)
	return id, nil
}

func (s *MemorySource) SampleField(_ context.Context, db, coll, field string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.dbs[db][coll]
	if !ok {
		return nil, nil
	}
	for _, doc := range c.docs {
		if v, ok := doc.Get(field); ok {
			return v, nil
		}
	}
	return nil, nil
}

func (s *MemorySource) Count(_ context.Context, db, coll string, filter *source.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.match(db, coll, filter))), nil
}

func (s *MemorySource) Find(_ context.Context, db, coll string, filter *source.Filter) (source.Cursor, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.match(db, coll, filter)
	field := filter.SortField()
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := docs[i].Get(field)
		b, _ := docs[j].Get(field)
		return compareValues(a, b) < 0
	})
	recs := make([]source.Record, len(docs))
	for i, d := range docs {
		recs[i] = source.SplitID(d.Clone())
	}
	return &sliceCursor{recs: recs, pos: -1}, nil
}

// match returns the documents selected by filter. Caller holds s.mu.
func (s *MemorySource) match(db, coll string, filter *source.Filter) []*document.Document {
	c, ok := s.dbs[db][coll]
	if !ok {
		return nil
	}
	var out []*document.Document
	for _, d := range c.docs {
		if filter != nil {
			v, ok := d.Get(filter.Field)
			if !ok || compareValues(v, filter.After) <= 0 {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

type sliceCursor struct {
	recs []source.Record
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.pos++
	return c.pos < len(c.recs)
}

func (c *sliceCursor) Record() source.Record {
	return c.recs[c.pos]
}

func (c *sliceCursor) Err() error {
	return nil
}

func (c *sliceCursor) Close(context.Context) error {
	return nil
}

// MemoryDestination is an in-memory dest.Destination. Documents are stored
// as their JSON round-trip, so numbers come back as float64 and date-times
// as strings, like a real cluster returns them.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryDestination struct {
	mu     sync.Mutex
	data   map[string]map[string]map[string]any
	writes int

	// IndexErr, when set, is returned by every Index call.
	IndexErr error
}

// NewMemoryDestination creates an empty destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{data: make(map[string]map[string]map[string]any)}
}

func target(index, typ string) string {
	return index + "/" + typ
}

// Docs returns a copy of every document stored under (index, typ) by ID.
func (m *MemoryDestination) Docs(index, typ string) map[string]map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]any, len(m.data[target(index, typ)]))
	for id, src := range m.data[target(index, typ)] {
		out[id] = deepCopy(src).(map[string]any)
	}
	return out
}

// Writes returns how many Index and Update calls reached the store.
func (m *MemoryDestination) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Put stores a raw document directly, bypassing write accounting.
func (m *MemoryDestination) Put(index, typ, id string, src map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(index, typ)[id] = deepCopy(src).(map[string]any)
}

func (m *MemoryDestination) bucket(index, typ string) map[string]map[string]any {
	key := target(index, typ)
	b, ok := m.data[key]
	if !ok {
		b = make(map[string]map[string]any)
		m.data[key] = b
	}
	return b
}

// Search orders documents the way the cluster does: by each sort key in
// turn, documents missing a key last. Remaining ties go to the smaller ID.
func (m *MemoryDestination) Search(_ context.Context, index, typ string, sortBy []dest.SortField) (*dest.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.data[target(index, typ)]
	if len(b) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		for _, s := range sortBy {
			a, aok := b[ids[i]][s.Field]
			c, cok := b[ids[j]][s.Field]
			switch {
			case !aok && !cok:
				continue
			case !aok:
				return false
			case !cok:
				return true
			}
			cmp := compareValues(a, c)
			if cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return ids[i] < ids[j]
	})
	top := ids[0]
	return &dest.Hit{ID: top, Source: deepCopy(b[top]).(map[string]any)}, nil
}

func (m *MemoryDestination) Get(_ context.Context, index, typ, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.data[target(index, typ)][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s/%s: %w", index, typ, id, dest.ErrNotFound)
	}
	return deepCopy(src).(map[string]any), nil
}

func (m *MemoryDestination) Index(_ context.Context, index, typ, id string, doc *document.Document) error {
	if m.IndexErr != nil {
		return m.IndexErr
	}
	src, err := roundTrip(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(index, typ)[id] = src
	m.writes++
	return nil
}

// Update deep-merges doc into the stored document. Updating a missing
// document fails with dest.ErrNotFound.
func (m *MemoryDestination) Update(_ context.Context, index, typ, id string, doc *document.Document) (bool, error) {
	patch, err := roundTrip(doc)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(index, typ)
	cur, ok := b[id]
	if !ok {
		return false, fmt.Errorf("update %s/%s/%s: %w", index, typ, id, dest.ErrNotFound)
	}
	m.writes++
	next := deepCopy(cur).(map[string]any)
	merge(next, patch)
	if reflect.DeepEqual(cur, next) {
		return false, nil
	}
	b[id] = next
	return true, nil
}

func roundTrip(doc *document.Document) (map[string]any, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func merge(dst, patch map[string]any) {
	for k, v := range patch {
		pm, pok := v.(map[string]any)
		dm, dok := dst[k].(map[string]any)
		if pok && dok {
			merge(dm, pm)
			continue
		}
		dst[k] = v
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// compareValues orders identifiers, date-times (native or RFC 3339
// strings), strings and numbers. Values of different kinds compare by kind.
func compareValues(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	switch av := a.(type) {
	case bson.ObjectID:
		if bv, ok := b.(bson.ObjectID); ok {
			return bytes.Compare(av[:], bv[:])
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	ka, kb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	}
	return 0
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		return t, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}
