// Package dest writes documents to the search/indexing destination.
//
// Destination is the collaborator the engine, the checkpoint resolver and
// the reconciler talk to; Elastic is the Elasticsearch implementation.
// Failures are classified into ErrNotFound (404) and *TransportError
// (everything else). Transport errors are never retried here.
package dest

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/mongo2elastic/internal/document"
)

// ErrNotFound is returned when the requested document or index does not exist.
var ErrNotFound = errors.New("not found")

// TransportError is any destination failure other than not-found.
type TransportError struct {
	Op     string
	Status int // HTTP status, 0 if the request never completed
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" [%d]", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// SortField is one search sort key, descending when Desc.
type SortField struct {
	Field string
	Desc  bool

	// UnmappedType is the type assumed when no document of the target has
	// the field, so the search returns hits instead of failing.
	UnmappedType string
}

// Hit is a single search result.
type Hit struct {
	ID     string
	Source map[string]any
}

// Destination is the search/indexing store.
type Destination interface {
	// Search returns the top document of (index, typ) under sort, or nil
	// when there is none.
	Search(ctx context.Context, index, typ string, sort []SortField) (*Hit, error)

	// Get returns the stored fields of a document or ErrNotFound.
	Get(ctx context.Context, index, typ, id string) (map[string]any, error)

	// Index creates or replaces a document.
	Index(ctx context.Context, index, typ, id string, doc *document.Document) error

	// Update merges doc into an existing document and reports whether the
	// stored content changed.
	Update(ctx context.Context, index, typ, id string, doc *document.Document) (bool, error)
}
