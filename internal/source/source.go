// Package source reads documents from the source document store.
//
// Source is the read-only collaborator the engine streams from; Mongo is
// the MongoDB implementation. Cursors yield records one at a time in
// ascending order of the filter field (or the identifier when unfiltered).
package source

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/mongo2elastic/internal/document"
)

// IDField is the name of the distinguished identifier field.
const IDField = "_id"

// Record is a source document split into its identifier and remaining fields.
type Record struct {
	ID  any
	Doc *document.Document
}

// Filter restricts a cursor to documents whose Field is strictly greater
// than After. A nil *Filter selects every document.
type Filter struct {
	Field string
	After any
}

// SortField returns the field cursors are ordered by.
func (f *Filter) SortField() string {
	if f == nil || f.Field == "" {
		return IDField
	}
	return f.Field
}

// BSON renders the filter as a query document.
func (f *Filter) BSON() bson.D {
	if f == nil {
		return bson.D{}
	}
	return bson.D{{Key: f.Field, Value: bson.D{{Key: "$gt", Value: f.After}}}}
}

// String renders the filter for logs.
func (f *Filter) String() string {
	if f == nil {
		return "<all>"
	}
	return fmt.Sprintf("%s > %v", f.Field, f.After)
}

// Cursor is a lazy, forward-only sequence of records.
type Cursor interface {
	// Next advances to the next record, returning false at the end or on error.
	Next(ctx context.Context) bool
	// Record returns the current record.
	Record() Record
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases the cursor.
	Close(ctx context.Context) error
}

// Source is the source document store.
type Source interface {
	HasDatabase(ctx context.Context, db string) (bool, error)
	HasCollection(ctx context.Context, db, coll string) (bool, error)
	ListCollections(ctx context.Context, db string) ([]string, error)

	// SampleID returns the identifier of one document of the collection, or
	// nil if it is empty. Used to learn which identifier kind it stores.
	SampleID(ctx context.Context, db, coll string) (any, error)

	// SampleField returns the value of field in one document that has it, or
	// nil if none does. Used to learn how a timestamp field is stored.
	SampleField(ctx context.Context, db, coll, field string) (any, error)

	Count(ctx context.Context, db, coll string, filter *Filter) (int64, error)
	Find(ctx context.Context, db, coll string, filter *Filter) (Cursor, error)
}

// SplitID removes the identifier from doc and returns the record.
func SplitID(doc *document.Document) Record {
	id, _ := doc.Get(IDField)
	doc.Delete(IDField)
	return Record{ID: id, Doc: doc}
}
