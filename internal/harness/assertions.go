package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/mongo2elastic/internal/store"
	"github.com/roach88/mongo2elastic/internal/testutil"
)

// AssertionError describes a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
	if len(e.Trace) > 0 {
		b.WriteString("\ntrace:")
		for _, ev := range e.Trace {
			fmt.Fprintf(&b, "\n  run %d #%d %s -> %s: %d/%d %s",
				ev.Run, ev.Seq, ev.Collection, ev.Target, ev.Docs, ev.Total, ev.Status)
		}
	}
	return b.String()
}

type assertionEnv struct {
	ctx     context.Context
	dst     *testutil.MemoryDestination
	journal *store.Store
	result  *Result
}

func (env *assertionEnv) evaluate(a Assertion) error {
	switch a.Type {
	case AssertDestinationCount:
		return env.assertCount(a)
	case AssertDestinationDoc:
		return env.assertDoc(a)
	case AssertDestinationMissing:
		return env.assertMissing(a)
	case AssertNoticeContains:
		return env.assertNotice(a)
	case AssertJournalOutcome:
		return env.assertJournal(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (env *assertionEnv) docs(target string) map[string]map[string]any {
	index, typ, _ := strings.Cut(target, "/")
	return env.dst.Docs(index, typ)
}

func (env *assertionEnv) assertCount(a Assertion) error {
	got := len(env.docs(a.Target))
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d documents in %s", a.Count, a.Target),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    env.result.Trace,
		}
	}
	return nil
}

func (env *assertionEnv) assertDoc(a Assertion) error {
	doc, ok := env.docs(a.Target)[a.ID]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("document %s in %s", a.ID, a.Target),
			Actual:   "no such document",
			Trace:    env.result.Trace,
		}
	}
	want, err := normalize(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	for _, key := range sortedKeys(want.(map[string]any)) {
		wv := want.(map[string]any)[key]
		gv, present := doc[key]
		if !present {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.ID, key, wv),
				Actual:   fmt.Sprintf("field missing (fields: %s)", strings.Join(sortedKeys(doc), ", ")),
			}
		}
		if !reflect.DeepEqual(gv, wv) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.ID, key, wv),
				Actual:   fmt.Sprintf("%v", gv),
			}
		}
	}
	return nil
}

func (env *assertionEnv) assertMissing(a Assertion) error {
	if _, ok := env.docs(a.Target)[a.ID]; ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("no document %s in %s", a.ID, a.Target),
			Actual:   "document present",
			Trace:    env.result.Trace,
		}
	}
	return nil
}

func (env *assertionEnv) assertNotice(a Assertion) error {
	var all []string
	for _, run := range env.result.Runs {
		for _, n := range run.Notices {
			if strings.Contains(n, a.Text) {
				return nil
			}
			all = append(all, n)
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a notice containing %q", a.Text),
		Actual:   fmt.Sprintf("%q", all),
	}
}

func (env *assertionEnv) assertJournal(a Assertion) error {
	run := env.result.Runs[a.Run-1]
	if run.RunID == "" {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("run %d journaled as %s", a.Run, a.Outcome),
			Actual:   fmt.Sprintf("run %d never started (%s)", a.Run, run.Error),
		}
	}
	got, err := env.journal.ReadRun(env.ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if got.Outcome != a.Outcome {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("run %s outcome %s", run.RunID, a.Outcome),
			Actual:   got.Outcome,
		}
	}
	return nil
}
