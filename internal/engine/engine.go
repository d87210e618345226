package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/mongo2elastic/internal/checkpoint"
	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/mapping"
	"github.com/roach88/mongo2elastic/internal/objectid"
	"github.com/roach88/mongo2elastic/internal/reconcile"
	"github.com/roach88/mongo2elastic/internal/source"
	"github.com/roach88/mongo2elastic/internal/store"
	"github.com/roach88/mongo2elastic/internal/syncerr"
	"github.com/roach88/mongo2elastic/internal/transform"
)

// Mode selects what a run does with the documents it streams.
type Mode string

const (
	// ModeFull re-reads every document and creates or replaces it.
	ModeFull Mode = "full"
	// ModeSync reads only documents after the destination's checkpoint.
	ModeSync Mode = "sync"
	// ModeUpdate re-reads every document and reconciles it with the
	// destination copy.
	ModeUpdate Mode = "update"
)

// ParseMode converts a command-line mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFull, ModeSync, ModeUpdate:
		return m, nil
	}
	return "", syncerr.Configuration("unknown mode %q (want full, sync or update)", s)
}

// DefaultProgressInterval is how many documents pass between progress
// reports.
const DefaultProgressInterval = 100

// Config is everything a run needs besides its collaborators.
type Config struct {
	Mode        Mode
	Test        bool
	Policy      transform.Policy
	Collections []transform.Collection
}

// Validate reports configuration inconsistencies. It performs no I/O.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode == ModeSync {
		if _, err := c.Policy.OrderingField(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(c.Collections))
	for _, coll := range c.Collections {
		if coll.DB == "" || coll.Name == "" {
			return syncerr.Configuration("collection %q: database and collection names are required", coll.FullName())
		}
		if seen[coll.FullName()] {
			return syncerr.Configuration("collection %s configured twice", coll.FullName())
		}
		seen[coll.FullName()] = true
		if coll.TimestampFormat != "" && coll.TimestampField == "" {
			return syncerr.Configuration("collection %s: timestamp_format requires timestamp_field", coll.FullName())
		}
	}
	return nil
}

// Engine runs one replication pass over the configured collections.
//
// Not safe for concurrent use. An Engine is good for one Run.
type Engine struct {
	src source.Source
	dst dest.Destination
	cfg Config

	pipeline   *transform.Pipeline
	resolver   *checkpoint.Resolver
	simulator  *mapping.Simulator
	reconciler *reconcile.Reconciler

	reporter Reporter
	recorder Recorder
	runIDs   RunIDGenerator
	now      func() time.Time
	seq      *Clock
	every    int64

	state State
}

// EngineOption allows configuration of engine collaborators.
type EngineOption func(*Engine)

// WithReporter sets the progress reporter. Default: discard.
func WithReporter(r Reporter) EngineOption {
	return func(e *Engine) {
		e.reporter = r
	}
}

// WithRecorder journals the run. Default: no journal.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock sets the wall clock used for run start and finish times.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithProgressInterval sets how many documents pass between progress
// reports. Use 1 to report every document.
func WithProgressInterval(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.every = int64(n)
		}
	}
}

// New validates cfg and creates an Engine. Configuration errors are
// returned here, before any source or destination call.
func New(src source.Source, dst dest.Destination, cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		src:       src,
		dst:       dst,
		cfg:       cfg,
		pipeline:  transform.NewPipeline(cfg.Policy),
		resolver:  checkpoint.NewResolver(dst, src, cfg.Policy),
		simulator: mapping.NewSimulator(),
		reporter:  nopReporter{},
		runIDs:    UUIDv7Generator{},
		now:       time.Now,
		seq:       NewClock(),
		every:     DefaultProgressInterval,
		state:     StateIdle,
	}
	if cfg.Mode == ModeUpdate {
		e.reconciler = reconcile.New(dst, cfg.Test)
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) transition(to State) {
	if !canTransition(e.state, to) {
		// A bug in the engine, not an operational condition.
		panic(fmt.Sprintf("engine: illegal transition %s -> %s", e.state, to))
	}
	slog.Debug("engine state", "from", e.state.String(), "to", to.String())
	e.state = to
}

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("engine already ran")

// Run processes every configured collection in order. The returned report
// is never nil; on error it holds the collections processed so far.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	if e.state != StateIdle || e.seq.Current() != 0 {
		return &RunReport{Collections: []CollectionReport{}}, ErrAlreadyRun
	}

	report := &RunReport{
		RunID:       e.runIDs.Generate(),
		Mode:        e.cfg.Mode,
		Test:        e.cfg.Test,
		StartedAt:   e.now().UTC(),
		Collections: []CollectionReport{},
	}

	slog.Info("run starting",
		"run_id", report.RunID,
		"mode", string(report.Mode),
		"test", report.Test,
		"collections", len(e.cfg.Collections),
	)

	if e.recorder != nil {
		if err := e.recorder.BeginRun(ctx, store.Run{
			ID:        report.RunID,
			Mode:      string(report.Mode),
			Test:      report.Test,
			Settings:  policySettings(e.cfg.Policy),
			StartedAt: report.StartedAt,
		}); err != nil {
			return e.finish(ctx, report, fmt.Errorf("journal run: %w", err))
		}
	}

	for i, c := range e.cfg.Collections {
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, report, err)
		}
		if i > 0 {
			e.transition(StateIdle)
		}

		cr, err := e.runCollection(ctx, c)
		report.Collections = append(report.Collections, cr)
		e.record(ctx, report.RunID, cr)

		if err != nil {
			var conflict *conflictError
			if errors.As(err, &conflict) {
				report.Conflict = conflict.conflict
			}
			return e.finish(ctx, report, err)
		}
	}

	return e.finish(ctx, report, nil)
}

// finish stamps the outcome, journals it and returns (report, err).
func (e *Engine) finish(ctx context.Context, report *RunReport, err error) (*RunReport, error) {
	report.FinishedAt = e.now().UTC()

	switch {
	case err == nil:
		report.Outcome = store.OutcomeCompleted
		if e.state != StateIdle {
			e.transition(StateRunDone)
		} else {
			e.state = StateRunDone
		}
	case syncerr.IsMappingConflict(err) || syncerr.IsDuplicateField(err):
		report.Outcome = store.OutcomeAborted
		e.state = StateAborted
	default:
		report.Outcome = store.OutcomeFailed
		e.state = StateAborted
	}

	if err != nil {
		slog.Error("run aborted", "run_id", report.RunID, "outcome", report.Outcome, "error", err)
	} else {
		slog.Info("run finished", "run_id", report.RunID, "collections", len(report.Collections))
	}

	if e.recorder != nil {
		finished := report.FinishedAt
		run := store.Run{
			ID:         report.RunID,
			Mode:       string(report.Mode),
			Test:       report.Test,
			StartedAt:  report.StartedAt,
			FinishedAt: &finished,
			Outcome:    report.Outcome,
		}
		if err != nil {
			run.Error = err.Error()
		}
		// A cancelled run still deserves its journal entry.
		if jerr := e.recorder.FinishRun(context.WithoutCancel(ctx), run); jerr != nil {
			slog.Warn("failed to journal run outcome", "run_id", report.RunID, "error", jerr)
		}
	}

	return report, err
}

func (e *Engine) record(ctx context.Context, runID string, cr CollectionReport) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.RecordCollection(context.WithoutCancel(ctx), store.CollectionRun{
		RunID:      runID,
		Seq:        cr.Seq,
		DB:         cr.DB,
		Collection: cr.Collection,
		Index:      cr.Index,
		Type:       cr.Type,
		Docs:       cr.Docs,
		Status:     cr.Status,
	})
	if err != nil {
		slog.Warn("failed to journal collection", "collection", cr.FullName(), "error", err)
	}
}

// runCollection takes one collection from Idle to CollectionDone.
func (e *Engine) runCollection(ctx context.Context, c transform.Collection) (CollectionReport, error) {
	policy := e.cfg.Policy
	cr := CollectionReport{
		Seq:        e.seq.Next(),
		DB:         c.DB,
		Collection: c.Name,
		Index:      policy.IndexName(c),
		Type:       policy.TypeName(c),
	}
	log := slog.With("collection", c.FullName(), "target", cr.Target())

	if err := e.checkSource(ctx, c); err != nil {
		if !syncerr.IsMissingSource(err) {
			cr.Status = StatusFailed
			return cr, err
		}
		log.Warn("skipping collection", "error", err)
		e.reporter.Notice(notFoundNotice(c, err))
		return e.done(cr, StatusSkipped), nil
	}

	var filter *source.Filter
	if e.cfg.Mode == ModeSync {
		e.transition(StateResolvingCheckpoint)
		cp, err := e.resolver.Resolve(ctx, c)
		switch {
		case errors.Is(err, checkpoint.ErrNoResumePoint):
			log.Warn("no resume point", "error", err)
			e.reporter.Notice(nothingToDo(c))
			return e.done(cr, StatusEmpty), nil
		case err != nil:
			cr.Status = StatusFailed
			return cr, fmt.Errorf("%s: resolve checkpoint: %w", c.FullName(), err)
		case cp == nil:
			log.Info("no checkpoint, pulling everything")
		default:
			filter = cp.Filter
			log.Info("resuming",
				"after", filter.String(),
				"checkpoint", cp.Value.Format(time.RFC3339),
				"synthesized", cp.Synthesized,
			)
		}
	}

	total, err := e.src.Count(ctx, c.DB, c.Name, filter)
	if err != nil {
		cr.Status = StatusFailed
		return cr, err
	}
	if total == 0 {
		log.Info("nothing to do")
		e.reporter.Notice(nothingToDo(c))
		return e.done(cr, StatusEmpty), nil
	}
	cr.Total = total

	e.transition(StateStreaming)
	cur, err := e.src.Find(ctx, c.DB, c.Name, filter)
	if err != nil {
		cr.Status = StatusFailed
		return cr, err
	}
	defer cur.Close(context.WithoutCancel(ctx))

	cr.Status = e.progressStatus()
	e.reporter.Progress(cr)

	for cur.Next(ctx) {
		rec := cur.Record()
		id := objectid.String(rec.ID)

		if err := e.pipeline.Apply(c, rec.ID, rec.Doc); err != nil {
			cr.Status = StatusFailed
			return cr, annotate(err, c, id)
		}
		if err := e.handle(ctx, c, cr, id, rec.Doc); err != nil {
			cr.Status = StatusFailed
			return cr, annotate(err, c, id)
		}
		e.transition(StateStreaming)

		cr.Docs++
		if cr.Docs%e.every == 0 {
			e.reporter.Progress(cr)
		}
	}
	if err := cur.Err(); err != nil {
		cr.Status = StatusFailed
		return cr, fmt.Errorf("%s: read source: %w", c.FullName(), err)
	}
	if err := ctx.Err(); err != nil {
		cr.Status = StatusFailed
		return cr, err
	}
	e.reporter.Progress(cr)

	log.Info("collection done", "docs", cr.Docs)
	return e.done(cr, e.finalStatus(cr)), nil
}

// handle routes one transformed document by mode.
func (e *Engine) handle(ctx context.Context, c transform.Collection, cr CollectionReport, id string, doc *document.Document) error {
	switch {
	case e.reconciler != nil:
		e.transition(StateReconciling)
		outcome, err := e.reconciler.Reconcile(ctx, cr.Index, cr.Type, id, doc)
		if err != nil {
			return err
		}
		slog.Debug("reconciled", "id", id, "outcome", outcome.String())
		return nil

	case e.cfg.Test:
		e.transition(StateSimulating)
		origin := mapping.Origin{DB: c.DB, Collection: c.Name}
		if conflict := e.simulator.Check(cr.Index, origin, doc); conflict != nil {
			return &conflictError{conflict: conflict, err: conflict.Err()}
		}
		return nil

	default:
		e.transition(StateWriting)
		if err := e.dst.Index(ctx, cr.Index, cr.Type, id, doc); err != nil {
			return err
		}
		return nil
	}
}

func (e *Engine) progressStatus() string {
	switch {
	case e.reconciler != nil && e.cfg.Test:
		return ProgressCompare
	case e.reconciler != nil:
		return ProgressUpdating
	case e.cfg.Test:
		return ProgressChecking
	default:
		return ProgressIndexing
	}
}

func (e *Engine) finalStatus(cr CollectionReport) string {
	switch {
	case e.reconciler != nil:
		return e.reconciler.Status(cr.Index, cr.Type)
	case e.cfg.Test:
		return StatusOK
	default:
		return StatusIndexed
	}
}

func (e *Engine) done(cr CollectionReport, status string) CollectionReport {
	cr.Status = status
	e.transition(StateCollectionDone)
	e.reporter.Done(cr)
	return cr
}

// checkSource returns a MISSING_SOURCE error when the database or the
// collection does not exist.
func (e *Engine) checkSource(ctx context.Context, c transform.Collection) error {
	ok, err := e.src.HasDatabase(ctx, c.DB)
	if err != nil {
		return err
	}
	if !ok {
		return syncerr.MissingSource(c.DB, "")
	}
	ok, err = e.src.HasCollection(ctx, c.DB, c.Name)
	if err != nil {
		return err
	}
	if !ok {
		return syncerr.MissingSource(c.DB, c.Name)
	}
	return nil
}

func notFoundNotice(c transform.Collection, err error) string {
	var se *syncerr.Error
	if errors.As(err, &se) && se.Collection == c.DB {
		return fmt.Sprintf("[ ! ] Database %q not found.", c.DB)
	}
	return fmt.Sprintf("[ ! ] Collection %q not found.", c.FullName())
}

func nothingToDo(c transform.Collection) string {
	return "[ ! ] Nothing to do for " + c.FullName()
}

// annotate attaches the collection and document to classified errors.
func annotate(err error, c transform.Collection, id string) error {
	var se *syncerr.Error
	if errors.As(err, &se) {
		if se.Collection == "" {
			se.Collection = c.FullName()
		}
		if se.DocID == "" {
			se.DocID = id
		}
		return err
	}
	return fmt.Errorf("%s: document %s: %w", c.FullName(), id, err)
}

// policySettings summarizes the naming policy for the run journal.
func policySettings(p transform.Policy) map[string]string {
	out := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("common_timestamp", p.CommonTimestamp)
	set("field_format", p.FieldFormat.String())
	set("sync_field", p.SyncField)
	set("sync_inc_field", p.SyncIncField())
	set("index_format", p.IndexFormat.String())
	set("type_format", p.TypeFormat.String())
	return out
}

// conflictError carries the simulator's conflict to Run.
type conflictError struct {
	conflict *mapping.Conflict
	err      error
}

func (e *conflictError) Error() string {
	return e.err.Error()
}

func (e *conflictError) Unwrap() error {
	return e.err
}
