package transform

import (
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/objectid"
	"github.com/roach88/mongo2elastic/internal/syncerr"
)

// Pipeline applies the per-document transformation steps in a fixed order:
//
//  1. the collection's custom hook
//  2. common timestamp injection
//  3. sync field injection
//  4. field namespacing
//  5. a check that no two keys share a normalized form
//
// Each step mutates the document in place and fails fast. A step that would
// overwrite an existing field returns a DUPLICATE_GENERATED_FIELD error; the
// document must then not be written.
//
// Pipeline holds no state across documents.
type Pipeline struct {
	policy Policy
}

// NewPipeline creates a pipeline for policy.
func NewPipeline(policy Policy) *Pipeline {
	return &Pipeline{policy: policy}
}

// Policy returns the pipeline's filter policy.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Apply transforms doc, whose source identifier id has already been removed
// from the field set.
func (p *Pipeline) Apply(c Collection, id any, doc *document.Document) error {
	if c.Hook != nil {
		if err := c.Hook.Mutate(doc); err != nil {
			return err
		}
	}
	if err := p.injectTimestamp(c, id, doc); err != nil {
		return err
	}
	if err := p.injectSyncField(id, doc); err != nil {
		return err
	}
	if err := p.namespace(c, doc); err != nil {
		return err
	}
	if key, ok := doc.NormalizedCollision(); ok {
		return syncerr.DuplicateField(key, "unicode normalization")
	}
	return nil
}

func (p *Pipeline) injectTimestamp(c Collection, id any, doc *document.Document) error {
	field := p.policy.CommonTimestamp
	if field == "" {
		return nil
	}
	if doc.Has(field) {
		return syncerr.DuplicateField(field, "common timestamp")
	}

	// Without an explicit timestamp field the identifier's creation time is used.
	if c.TimestampField == "" {
		hex, ok := objectid.FromValue(id)
		if !ok {
			return nil
		}
		ts, err := objectid.EmbeddedTime(hex)
		if err != nil {
			return err
		}
		doc.Set(field, ts)
		return nil
	}

	v, ok := doc.Get(c.TimestampField)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case time.Time:
		doc.Set(field, val)
	case string:
		if c.TimestampFormat == "" {
			return nil
		}
		ts, err := strftime.Parse(c.TimestampFormat, val)
		if err != nil {
			return fmt.Errorf("parse %s=%q with %q: %w", c.TimestampField, val, c.TimestampFormat, err)
		}
		doc.Set(field, ts)
	}
	return nil
}

func (p *Pipeline) injectSyncField(id any, doc *document.Document) error {
	field := p.policy.SyncField
	if field == "" {
		return nil
	}
	if doc.Has(field) {
		return syncerr.DuplicateField(field, "sync field")
	}

	if hex, ok := objectid.FromValue(id); ok {
		incField := p.policy.SyncIncField()
		if doc.Has(incField) {
			return syncerr.DuplicateField(incField, "sync increment field")
		}
		ts, err := objectid.EmbeddedTime(hex)
		if err != nil {
			return err
		}
		inc, err := objectid.TieBreak(hex)
		if err != nil {
			return err
		}
		doc.Set(field, ts)
		doc.Set(incField, int64(inc))
		return nil
	}

	if p.policy.CommonTimestamp != "" {
		if ts, ok := doc.Get(p.policy.CommonTimestamp); ok {
			doc.Set(field, ts)
		}
	}
	return nil
}

func (p *Pipeline) namespace(c Collection, doc *document.Document) error {
	if !p.policy.Namespacing() {
		return nil
	}
	for _, f := range doc.Fields() {
		if p.policy.reserved(f.Key) {
			continue
		}
		name := p.policy.FieldFormat.Format(map[string]string{
			VarField: f.Key,
			VarColl:  c.Name,
			VarType:  document.TypeTag(f.Value),
			VarDB:    c.DB,
		})
		if doc.Has(name) {
			return syncerr.DuplicateField(name, fmt.Sprintf("namespacing %q", f.Key))
		}
		if err := doc.Rename(f.Key, name); err != nil {
			return err
		}
	}
	return nil
}
