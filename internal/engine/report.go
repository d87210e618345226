package engine

import (
	"context"
	"time"

	"github.com/roach88/mongo2elastic/internal/mapping"
	"github.com/roach88/mongo2elastic/internal/store"
)

// Terminal collection statuses. Update mode statuses come from the
// reconciler ("UP TO DATE", "N DOCS UPDATED", "BEHIND BY N DOCS").
const (
	StatusIndexed = "INDEXED"
	StatusOK      = "OK"
	StatusEmpty   = "EMPTY"
	StatusSkipped = "SKIPPED"
	StatusFailed  = "FAILED"
)

// Progress statuses shown while a collection streams.
const (
	ProgressIndexing = "INDEXING"
	ProgressChecking = "CHECKING"
	ProgressUpdating = "UPDATING"
	ProgressCompare  = "CHECKING FOR UPDATES"
)

// CollectionReport is the progress or result of one collection.
type CollectionReport struct {
	Seq        int64  `json:"seq"`
	DB         string `json:"db"`
	Collection string `json:"collection"`
	Index      string `json:"index"`
	Type       string `json:"type"`

	// Docs is how many documents have been processed so far.
	Docs int64 `json:"docs"`

	// Total is how many documents the cursor selects.
	Total int64 `json:"total"`

	Status string `json:"status"`
}

// FullName returns "db.collection".
func (c CollectionReport) FullName() string {
	return c.DB + "." + c.Collection
}

// Target returns "index/type".
func (c CollectionReport) Target() string {
	return c.Index + "/" + c.Type
}

// RunReport is the outcome of Engine.Run.
type RunReport struct {
	RunID       string             `json:"run_id"`
	Mode        Mode               `json:"mode"`
	Test        bool               `json:"test"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Outcome     string             `json:"outcome"`
	Collections []CollectionReport `json:"collections"`

	// Conflict is set when the run was aborted by the mapping simulation.
	Conflict *mapping.Conflict `json:"conflict,omitempty"`
}

// Reporter receives human-facing progress. Implementations must not block.
type Reporter interface {
	// Progress is called when a collection starts streaming and
	// periodically while it does.
	Progress(c CollectionReport)

	// Done is called once per collection with its terminal status.
	Done(c CollectionReport)

	// Notice reports a recovered condition in one line.
	Notice(msg string)
}

type nopReporter struct{}

func (nopReporter) Progress(CollectionReport) {}
func (nopReporter) Done(CollectionReport)     {}
func (nopReporter) Notice(string)             {}

// Recorder journals runs. *store.Store implements it.
type Recorder interface {
	BeginRun(ctx context.Context, run store.Run) error
	RecordCollection(ctx context.Context, c store.CollectionRun) error
	FinishRun(ctx context.Context, run store.Run) error
}

// RunIDGenerator generates unique run IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}
