// Package reconcile decides, in update mode, whether each transformed
// document is a creation or an update of what the destination already
// holds, and counts the outcomes per destination (index, type).
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/document"
)

// Outcome is what happened to one document.
type Outcome int

const (
	// Unchanged means the destination already matched.
	Unchanged Outcome = iota
	// Created means the document did not exist (written unless simulating).
	Created
	// Updated means an existing document changed, or would change.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Store is the part of the destination reconciliation needs.
type Store interface {
	Get(ctx context.Context, index, typ, id string) (map[string]any, error)
	Index(ctx context.Context, index, typ, id string, doc *document.Document) error
	Update(ctx context.Context, index, typ, id string, doc *document.Document) (bool, error)
}

// Reconciler applies documents and keeps the per-target counters. One
// instance lives for a whole run.
type Reconciler struct {
	store    Store
	simulate bool
	counters map[string]int
}

// New creates a reconciler. When simulate is set nothing is written and
// updates are guessed from field counts.
func New(store Store, simulate bool) *Reconciler {
	return &Reconciler{store: store, simulate: simulate, counters: make(map[string]int)}
}

func key(index, typ string) string {
	return index + "." + typ
}

// Reconcile looks id up in (index, typ) and creates or updates it.
func (r *Reconciler) Reconcile(ctx context.Context, index, typ, id string, doc *document.Document) (Outcome, error) {
	existing, err := r.store.Get(ctx, index, typ, id)
	if dest.IsNotFound(err) {
		r.counters[key(index, typ)]++
		if r.simulate {
			return Created, nil
		}
		if err := r.store.Index(ctx, index, typ, id, doc); err != nil {
			return Created, fmt.Errorf("create %s: %w", id, err)
		}
		return Created, nil
	}
	if err != nil {
		return Unchanged, fmt.Errorf("look up %s: %w", id, err)
	}

	if r.simulate {
		if len(existing) == doc.Len() {
			r.touch(index, typ)
			return Unchanged, nil
		}
		slog.Debug("document would change", "id", id, "stored_fields", len(existing), "fields", doc.Len())
		r.counters[key(index, typ)]++
		return Updated, nil
	}

	changed, err := r.store.Update(ctx, index, typ, id, doc)
	if err != nil {
		return Unchanged, fmt.Errorf("update %s: %w", id, err)
	}
	if !changed {
		r.touch(index, typ)
		return Unchanged, nil
	}
	r.counters[key(index, typ)]++
	return Updated, nil
}

// touch creates the counter for a target without incrementing it.
func (r *Reconciler) touch(index, typ string) {
	k := key(index, typ)
	if _, ok := r.counters[k]; !ok {
		r.counters[k] = 0
	}
}

// Count returns the counter of (index, typ).
func (r *Reconciler) Count(index, typ string) int {
	return r.counters[key(index, typ)]
}

// Status renders the end-of-collection status of (index, typ).
func (r *Reconciler) Status(index, typ string) string {
	n := r.Count(index, typ)
	switch {
	case n == 0:
		return "UP TO DATE"
	case r.simulate:
		return fmt.Sprintf("BEHIND BY %d DOCS", n)
	default:
		return fmt.Sprintf("%d DOCS UPDATED", n)
	}
}
