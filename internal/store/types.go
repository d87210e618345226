package store

import (
	"errors"
	"time"
)

// Run outcomes.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// ErrRunNotFound is returned by ReadRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of a replication mode.
type Run struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`
	Test bool   `json:"test"`

	// Settings is the effective naming policy (field format, sync field...)
	// so history shows which names a run wrote under.
	Settings map[string]string `json:"settings"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    string     `json:"outcome"`
	Error      string     `json:"error,omitempty"`

	// Collections is filled by ReadRun only.
	Collections []CollectionRun `json:"collections,omitempty"`
}

// CollectionRun is the result of one collection within a run.
type CollectionRun struct {
	RunID      string `json:"run_id"`
	Seq        int64  `json:"seq"`
	DB         string `json:"db"`
	Collection string `json:"collection"`
	Index      string `json:"index"`
	Type       string `json:"type"`
	Docs       int64  `json:"docs"`
	Status     string `json:"status"`
}
