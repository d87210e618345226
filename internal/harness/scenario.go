package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mongo2elastic/internal/config"
	"github.com/roach88/mongo2elastic/internal/engine"
)

// Scenario defines one replication scenario: a source state, a sequence of
// runs and the assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the replication configuration, in configuration file layout.
	Config config.File `yaml:"config"`

	// Source maps "db.coll" to the documents it initially holds.
	Source map[string][]map[string]any `yaml:"source"`

	// Destination maps "index/type" to documents present before the first
	// run, keyed by identifier.
	Destination map[string]map[string]map[string]any `yaml:"destination,omitempty"`

	// Runs are executed in order against the same endpoints.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final destination and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// RunStep is one replication run.
type RunStep struct {
	Mode string `yaml:"mode"`
	Test bool   `yaml:"test,omitempty"`

	// Insert adds documents to the source before this run.
	Insert map[string][]map[string]any `yaml:"insert,omitempty"`

	// Expect, if set, is checked against the run report.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected run report.
type ExpectClause struct {
	// Outcome is the expected run outcome (completed, aborted, failed).
	Outcome string `yaml:"outcome"`

	// Collections is a prefix match on the report's collections.
	Collections []ExpectCollection `yaml:"collections,omitempty"`

	// Conflict is the expected conflicting field, if the run must abort on one.
	Conflict string `yaml:"conflict,omitempty"`
}

// ExpectCollection is the expected result of one collection.
type ExpectCollection struct {
	Collection string `yaml:"collection"`
	Status     string `yaml:"status"`
	Docs       *int64 `yaml:"docs,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Target is "index/type" (destination assertions).
	Target string `yaml:"target,omitempty"`

	// ID is the document identifier (destination_doc, destination_missing).
	ID string `yaml:"id,omitempty"`

	// Expect holds expected fields of the document (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of documents (destination_count).
	Count int `yaml:"count,omitempty"`

	// Text is the expected notice fragment (notice_contains).
	Text string `yaml:"text,omitempty"`

	// Run is the 1-based run number and Outcome its expected journal
	// outcome (journal_outcome).
	Run     int    `yaml:"run,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertDestinationCount   = "destination_count"
	AssertDestinationDoc     = "destination_doc"
	AssertDestinationMissing = "destination_missing"
	AssertNoticeContains     = "notice_contains"
	AssertJournalOutcome     = "journal_outcome"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for name := range s.Source {
		if err := validateCollectionKey(name); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	for target := range s.Destination {
		if err := validateTarget(target); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
	}

	for i, run := range s.Runs {
		if _, err := engine.ParseMode(run.Mode); err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
		for name := range run.Insert {
			if err := validateCollectionKey(name); err != nil {
				return fmt.Errorf("runs[%d].insert: %w", i, err)
			}
		}
		if run.Expect != nil && run.Expect.Outcome == "" {
			return fmt.Errorf("runs[%d].expect: outcome is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Runs)); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, runs int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDestinationCount:
		if err := validateTarget(a.Target); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertDestinationDoc, AssertDestinationMissing:
		if err := validateTarget(a.Target); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
		if a.Type == AssertDestinationDoc && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for destination_doc", index)
		}
	case AssertNoticeContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for notice_contains", index)
		}
	case AssertJournalOutcome:
		if a.Run < 1 || a.Run > runs {
			return fmt.Errorf("assertions[%d]: run must be between 1 and %d", index, runs)
		}
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for journal_outcome", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}

	return nil
}

func validateCollectionKey(name string) error {
	db, coll, ok := strings.Cut(name, ".")
	if !ok || db == "" || coll == "" {
		return fmt.Errorf("%q: want db.coll", name)
	}
	return nil
}

func validateTarget(target string) error {
	index, typ, ok := strings.Cut(target, "/")
	if !ok || index == "" || typ == "" {
		return fmt.Errorf("target %q: want index/type", target)
	}
	return nil
}
