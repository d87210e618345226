package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/mongo2elastic/internal/config"
	"github.com/roach88/mongo2elastic/internal/engine"
	"github.com/roach88/mongo2elastic/internal/store"
	"github.com/roach88/mongo2elastic/internal/testutil"
)

// Epoch is the first instant of the step clock every scenario runs on.
var Epoch = time.Date(2018, 1, 2, 18, 43, 12, 0, time.UTC)

// OutcomeRejected marks a run the engine refused to start, such as a sync
// run without an ordering field.
const OutcomeRejected = "rejected"

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool

	// Runs holds one entry per executed run.
	Runs []RunResult

	// Trace is the per-collection results of every run, in order.
	Trace []TraceEvent

	// Errors contains every failed expectation.
	Errors []string
}

// RunResult summarizes one run.
type RunResult struct {
	RunID    string   `json:"run_id,omitempty"`
	Mode     string   `json:"mode"`
	Test     bool     `json:"test,omitempty"`
	Outcome  string   `json:"outcome"`
	Error    string   `json:"error,omitempty"`
	Conflict string   `json:"conflict,omitempty"`
	Notices  []string `json:"notices,omitempty"`
}

// TraceEvent is the final report of one collection within one run.
type TraceEvent struct {
	Run        int    `json:"run"`
	Seq        int64  `json:"seq"`
	Collection string `json:"collection"`
	Target     string `json:"target"`
	Docs       int64  `json:"docs"`
	Total      int64  `json:"total"`
	Status     string `json:"status"`
}

func (r *Result) fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// noticeRecorder collects notices; progress is not part of the trace.
type noticeRecorder struct {
	notices []string
}

func (n *noticeRecorder) Progress(engine.CollectionReport) {}
func (n *noticeRecorder) Done(engine.CollectionReport)     {}
func (n *noticeRecorder) Notice(msg string)                { n.notices = append(n.notices, msg) }

// Run executes a scenario and returns the result.
//
// The scenario's runs share one in-memory source, one in-memory destination
// and one in-memory journal. A returned error means the scenario could not
// be set up; failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg, err := config.Build(&scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("build config: %w", err)
	}

	src := testutil.NewMemorySource()
	for _, name := range sortedKeys(scenario.Source) {
		if err := insert(src, name, scenario.Source[name]); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}

	dst := testutil.NewMemoryDestination()
	for _, target := range sortedKeys(scenario.Destination) {
		index, typ, _ := strings.Cut(target, "/")
		for id, doc := range scenario.Destination[target] {
			normalized, err := normalize(doc)
			if err != nil {
				return nil, fmt.Errorf("destination %s/%s: %w", target, id, err)
			}
			dst.Put(index, typ, id, normalized.(map[string]any))
		}
	}

	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	ids := make([]string, len(scenario.Runs))
	for i := range ids {
		ids[i] = fmt.Sprintf("run-%d", i+1)
	}
	runIDs := engine.NewFixedGenerator(ids...)
	clock := testutil.NewStepClock(Epoch, time.Second)

	result := &Result{Pass: true}

	for i, step := range scenario.Runs {
		for _, name := range sortedKeys(step.Insert) {
			if err := insert(src, name, step.Insert[name]); err != nil {
				return nil, fmt.Errorf("runs[%d].insert: %w", i, err)
			}
		}

		rr, trace := execute(ctx, i+1, step, cfg, src, dst, journal, runIDs, clock)
		result.Runs = append(result.Runs, rr)
		result.Trace = append(result.Trace, trace...)

		if step.Expect != nil {
			checkExpect(result, i, step.Expect, rr, trace)
		}
	}

	env := &assertionEnv{ctx: ctx, dst: dst, journal: journal, result: result}
	for i, a := range scenario.Assertions {
		if err := env.evaluate(a); err != nil {
			result.fail("assertions[%d]: %v", i, err)
		}
	}

	return result, nil
}

func execute(
	ctx context.Context,
	n int,
	step RunStep,
	cfg *config.Config,
	src *testutil.MemorySource,
	dst *testutil.MemoryDestination,
	journal *store.Store,
	runIDs engine.RunIDGenerator,
	clock *testutil.StepClock,
) (RunResult, []TraceEvent) {
	rr := RunResult{Mode: step.Mode, Test: step.Test}

	// validateScenario already checked the mode.
	mode, _ := engine.ParseMode(step.Mode)

	collections, err := cfg.Resolve(ctx, src)
	if err != nil {
		rr.Outcome = OutcomeRejected
		rr.Error = err.Error()
		return rr, nil
	}

	notices := &noticeRecorder{}
	eng, err := engine.New(src, dst, engine.Config{
		Mode:        mode,
		Test:        step.Test,
		Policy:      cfg.Policy,
		Collections: collections,
	},
		engine.WithReporter(notices),
		engine.WithRecorder(journal),
		engine.WithRunIDGenerator(runIDs),
		engine.WithClock(clock.Now),
	)
	if err != nil {
		rr.Outcome = OutcomeRejected
		rr.Error = err.Error()
		return rr, nil
	}

	report, err := eng.Run(ctx)
	rr.RunID = report.RunID
	rr.Outcome = report.Outcome
	rr.Notices = notices.notices
	if err != nil {
		rr.Error = err.Error()
	}
	if report.Conflict != nil {
		rr.Conflict = report.Conflict.Field
	}

	trace := make([]TraceEvent, 0, len(report.Collections))
	for _, c := range report.Collections {
		trace = append(trace, TraceEvent{
			Run:        n,
			Seq:        c.Seq,
			Collection: c.FullName(),
			Target:     c.Target(),
			Docs:       c.Docs,
			Total:      c.Total,
			Status:     c.Status,
		})
	}
	return rr, trace
}

func checkExpect(result *Result, i int, want *ExpectClause, got RunResult, trace []TraceEvent) {
	if got.Outcome != want.Outcome {
		result.fail("runs[%d]: outcome = %q, want %q (error: %s)", i, got.Outcome, want.Outcome, got.Error)
	}
	if got.Conflict != want.Conflict {
		result.fail("runs[%d]: conflict field = %q, want %q", i, got.Conflict, want.Conflict)
	}
	for j, wc := range want.Collections {
		if j >= len(trace) {
			result.fail("runs[%d].collections[%d]: %s was not processed", i, j, wc.Collection)
			continue
		}
		ev := trace[j]
		if ev.Collection != wc.Collection {
			result.fail("runs[%d].collections[%d]: collection = %s, want %s", i, j, ev.Collection, wc.Collection)
			continue
		}
		if ev.Status != wc.Status {
			result.fail("runs[%d].collections[%d]: %s status = %q, want %q", i, j, ev.Collection, ev.Status, wc.Status)
		}
		if wc.Docs != nil && ev.Docs != *wc.Docs {
			result.fail("runs[%d].collections[%d]: %s docs = %d, want %d", i, j, ev.Collection, ev.Docs, *wc.Docs)
		}
	}
}

func insert(src *testutil.MemorySource, name string, docs []map[string]any) error {
	db, coll, _ := strings.Cut(name, ".")
	src.AddCollection(db, coll)
	for k, m := range docs {
		doc, err := toDocument(m)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", name, k, err)
		}
		src.Insert(db, coll, doc)
	}
	return nil
}

// normalize converts a decoded YAML value to what a JSON decoder would
// produce, so it compares equal to documents read back from the destination.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
