// Package checkpoint derives where an incremental run resumes.
//
// No sync metadata is stored anywhere: the destination itself is the
// bookkeeping. The resolver asks it for the most recently replicated
// document of a collection's target (index, type), ordered by the sync field
// (tie-broken by its increment field) or the common timestamp, and turns
// that document into a source filter.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/objectid"
	"github.com/roach88/mongo2elastic/internal/source"
	"github.com/roach88/mongo2elastic/internal/transform"
)

// ErrNoResumePoint is returned when a checkpoint exists but the source
// collection offers no ordering it can be translated to: identifiers without
// embedded time and no explicit timestamp field.
var ErrNoResumePoint = errors.New("no resume point for collection")

// Searcher finds the top destination document under a sort.
type Searcher interface {
	Search(ctx context.Context, index, typ string, sort []dest.SortField) (*dest.Hit, error)
}

// Sampler reports how a source collection stores its identifiers and
// timestamp fields.
type Sampler interface {
	SampleID(ctx context.Context, db, coll string) (any, error)
	SampleField(ctx context.Context, db, coll, field string) (any, error)
}

// Checkpoint is the latest synchronized point of a collection.
type Checkpoint struct {
	// Value is the criterion value of the last replicated document.
	Value time.Time

	// ByIdentifier is true when the resume filter uses identifier ordering.
	ByIdentifier bool

	// Synthesized is true when the destination identifier could not be
	// parsed and the bound was rebuilt from Value.
	Synthesized bool

	// LastID is the destination identifier of the last replicated document.
	LastID string

	// Filter selects the source documents after the checkpoint.
	Filter *source.Filter
}

// Resolver derives checkpoints. It holds no state across collections.
type Resolver struct {
	dest   Searcher
	src    Sampler
	policy transform.Policy
}

// NewResolver creates a resolver.
func NewResolver(d Searcher, s Sampler, policy transform.Policy) *Resolver {
	return &Resolver{dest: d, src: s, policy: policy}
}

// Criterion returns the ordering field and the destination sort used to
// find the last replicated document. Fails with a CONFIGURATION error when
// neither a sync field nor a common timestamp is configured.
func (r *Resolver) Criterion() (string, []dest.SortField, error) {
	field, err := r.policy.OrderingField()
	if err != nil {
		return "", nil, err
	}
	sort := []dest.SortField{{Field: field, Desc: true, UnmappedType: "date"}}
	if r.policy.SyncField != "" {
		// Only identifiers with embedded time produce the increment field.
		sort = append(sort, dest.SortField{Field: r.policy.SyncIncField(), Desc: true, UnmappedType: "long"})
	}
	return field, sort, nil
}

// Resolve returns the checkpoint for c, or nil when the destination holds
// nothing for it yet and the collection must be pulled in full.
func (r *Resolver) Resolve(ctx context.Context, c transform.Collection) (*Checkpoint, error) {
	criterion, sort, err := r.Criterion()
	if err != nil {
		return nil, err
	}

	index, typ := r.policy.IndexName(c), r.policy.TypeName(c)
	hit, err := r.dest.Search(ctx, index, typ, sort)
	if err != nil {
		return nil, fmt.Errorf("find last document of %s/%s: %w", index, typ, err)
	}
	if hit == nil {
		return nil, nil
	}

	raw, ok := hit.Source[criterion]
	if !ok {
		return nil, fmt.Errorf("last document %s of %s/%s has no %q field", hit.ID, index, typ, criterion)
	}
	value, err := ParseTime(raw)
	if err != nil {
		return nil, fmt.Errorf("last document %s of %s/%s: %s: %w", hit.ID, index, typ, criterion, err)
	}
	cp := &Checkpoint{Value: value, LastID: hit.ID}

	if r.policy.SyncField != "" || c.TimestampField == "" {
		sample, err := r.src.SampleID(ctx, c.DB, c.Name)
		if err != nil {
			return nil, err
		}
		if _, native := objectid.FromValue(sample); native {
			cp.ByIdentifier = true
			bound, err := objectid.Parse(hit.ID)
			if err != nil {
				bound, _ = objectid.Parse(objectid.Synthesize(value))
				cp.Synthesized = true
			}
			cp.Filter = &source.Filter{Field: source.IDField, After: bound}
			return cp, nil
		}
		if c.TimestampField == "" {
			return nil, fmt.Errorf("%s: %w", c.FullName(), ErrNoResumePoint)
		}
	}

	sample, err := r.src.SampleField(ctx, c.DB, c.Name, c.TimestampField)
	if err != nil {
		return nil, err
	}
	cp.Filter = &source.Filter{Field: c.TimestampField, After: nativeValue(c, sample, value)}
	return cp, nil
}

// nativeValue converts a checkpoint time to the representation the source
// field is stored in, judged from a sampled value. A string field is
// compared as text in the timestamp format; any other kind is compared as a
// date. Without a sample the timestamp format decides.
func nativeValue(c transform.Collection, sample any, t time.Time) any {
	if c.TimestampFormat == "" {
		return t
	}
	switch sample.(type) {
	case string, nil:
		return strftime.Format(c.TimestampFormat, t)
	default:
		return t
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime interprets a date-time value read back from the destination:
// a string in one of the common ISO-8601 layouts (zone-less values are
// UTC) or epoch milliseconds.
func ParseTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date-time %q", val)
	case float64:
		return time.UnixMilli(int64(val)).UTC(), nil
	case json.Number:
		ms, err := val.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date-time %q", val)
		}
		return time.UnixMilli(ms).UTC(), nil
	case time.Time:
		return val.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unrecognized date-time %v (%T)", v, v)
	}
}
