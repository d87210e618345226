// Package mapping simulates the destination's dynamic mapping so type
// conflicts are found before any document is sent.
//
// The destination infers a field's type from the first document that
// introduces it. A later document carrying the same field with another type
// is rejected (or silently mis-mapped), so the simulator records the first
// observed type per (index, field) and reports the first mismatch.
package mapping

import (
	"fmt"

	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/syncerr"
)

// Origin identifies where a field observation came from.
type Origin struct {
	DB         string
	Collection string
}

// String renders the origin as "db:collection".
func (o Origin) String() string {
	return o.DB + ":" + o.Collection
}

// Conflict describes a field seen with two different types in one index.
type Conflict struct {
	Index        string
	Field        string
	Original     Origin
	OriginalType string
	Current      Origin
	CurrentType  string
}

// Describe renders the conflict the way operators read it:
// both origins with the field in brackets.
func (c *Conflict) Describe() string {
	return fmt.Sprintf("Original field: %s[%s] (%s)\nConflicting field: %s[%s] (%s)",
		c.Original, c.Field, c.OriginalType, c.Current, c.Field, c.CurrentType)
}

// Err converts the conflict into a MAPPING_CONFLICT error.
func (c *Conflict) Err() error {
	return &syncerr.Error{
		Code: syncerr.CodeMappingConflict,
		Message: fmt.Sprintf("index %q field %q is %s in %s but %s in %s",
			c.Index, c.Field, c.OriginalType, c.Original, c.CurrentType, c.Current),
		Collection: c.Current.DB + "." + c.Current.Collection,
		Field:      c.Field,
	}
}

type observation struct {
	typ    string
	origin Origin
}

// Simulator tracks observed field types per destination index for one run.
// State only grows; an observation is never overwritten.
//
// Not safe for concurrent use; the engine drives it from a single goroutine.
type Simulator struct {
	indices map[string]map[string]observation
}

// NewSimulator creates an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{indices: make(map[string]map[string]observation)}
}

// Check records doc's field types under index and returns the first
// conflict with previously observed types, or nil.
//
// The first document of an unseen index seeds its state. On conflict the
// remaining fields of doc are not examined.
func (s *Simulator) Check(index string, origin Origin, doc *document.Document) *Conflict {
	fields, ok := s.indices[index]
	if !ok {
		fields = make(map[string]observation, doc.Len())
		s.indices[index] = fields
		for _, f := range doc.Fields() {
			fields[f.Key] = observation{typ: document.TypeTag(f.Value), origin: origin}
		}
		return nil
	}

	for _, f := range doc.Fields() {
		typ := document.TypeTag(f.Value)
		seen, known := fields[f.Key]
		if !known {
			fields[f.Key] = observation{typ: typ, origin: origin}
			continue
		}
		if seen.typ != typ {
			return &Conflict{
				Index:        index,
				Field:        f.Key,
				Original:     seen.origin,
				OriginalType: seen.typ,
				Current:      origin,
				CurrentType:  typ,
			}
		}
	}
	return nil
}

// fieldType returns the recorded type of field in index.
func (s *Simulator) fieldType(index, field string) (string, bool) {
	obs, ok := s.indices[index][field]
	return obs.typ, ok
}

// fieldCount returns the number of fields recorded for index.
func (s *Simulator) fieldCount(index string) int {
	return len(s.indices[index])
}
