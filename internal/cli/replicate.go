package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/mongo2elastic/internal/config"
	"github.com/roach88/mongo2elastic/internal/dest"
	"github.com/roach88/mongo2elastic/internal/engine"
	"github.com/roach88/mongo2elastic/internal/source"
	"github.com/roach88/mongo2elastic/internal/store"
	"github.com/roach88/mongo2elastic/internal/syncerr"
)

// Endpoints are the connected source and destination of a run.
type Endpoints struct {
	Source source.Source
	Dest   dest.Destination

	// Close releases the connections. May be nil.
	Close func(ctx context.Context) error
}

// Connector opens the endpoints a configuration points at.
type Connector func(ctx context.Context, cfg *config.Config) (*Endpoints, error)

// ModeOptions holds flags for the full, sync and update commands.
type ModeOptions struct {
	*RootOptions
	Mode    engine.Mode
	Test    bool
	Journal string

	// Connect allows overriding the endpoints (for testing).
	// If nil, defaults to ConnectEndpoints.
	Connect Connector

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Now allows overriding the run clock (for testing).
	Now func() time.Time
}

var modeHelp = map[engine.Mode]struct{ short, long string }{
	engine.ModeFull: {
		short: "Index every document of the configured collections",
		long: `Index every document of the configured collections, creating or
replacing its destination copy.`,
	},
	engine.ModeSync: {
		short: "Index documents newer than the destination's checkpoint",
		long: `Index only the documents created after the newest document already in
the destination. Requires filter.sync_field or filter.common_timestamp.`,
	},
	engine.ModeUpdate: {
		short: "Reconcile destination copies with their source documents",
		long: `Reconcile every destination copy with its source document. Missing
copies are created and differing fields are merged. With --test, the
command reports how far behind the destination is without writing.`,
	},
}

// NewModeCommand creates the command running one replication mode.
func NewModeCommand(rootOpts *RootOptions, mode engine.Mode) *cobra.Command {
	return newModeCommand(&ModeOptions{RootOptions: rootOpts, Mode: mode})
}

func newModeCommand(opts *ModeOptions) *cobra.Command {
	help := modeHelp[opts.Mode]
	cmd := &cobra.Command{
		Use:   string(opts.Mode) + " <config>",
		Short: help.short,
		Long: help.long + `

The configuration is a YAML file, a CUE file or a directory of CUE files.
M2E_MONGO_URI, M2E_ES_URL, M2E_ES_USER and M2E_ES_PASSWORD override the
connection settings it holds.

Exit codes:
  0 - Run completed (or test passed)
  1 - Run aborted (mapping conflict, duplicate field) or failed
  2 - Command error (invalid configuration, unreachable store, etc.)

Example:
  mongo2elastic ` + string(opts.Mode) + ` ./m2e.yaml
  mongo2elastic ` + string(opts.Mode) + ` --test --journal ./m2e.db ./m2e.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Test, "test", "t", false, "simulate the run without writing to the destination")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite run journal (optional)")

	return cmd
}

// ConnectEndpoints connects to MongoDB and Elasticsearch.
func ConnectEndpoints(ctx context.Context, cfg *config.Config) (*Endpoints, error) {
	es, err := dest.NewElastic(cfg.Elastic)
	if err != nil {
		return nil, err
	}
	mongo, err := source.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	return &Endpoints{Source: mongo, Dest: es, Close: mongo.Close}, nil
}

func runMode(opts *ModeOptions, path string, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions, cmd.ErrOrStderr())
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err, nil)
	}
	formatter.VerboseLog("Loaded %s: %d collection(s), %d selector(s)", path, len(cfg.Collections), len(cfg.Selectors))

	// Mode requirements are checked before connecting.
	if err := (engine.Config{Mode: opts.Mode, Test: opts.Test, Policy: cfg.Policy, Collections: cfg.Collections}).Validate(); err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err, nil)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Warn("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	connect := opts.Connect
	if connect == nil {
		connect = ConnectEndpoints
	}
	ep, err := connect(ctx, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to connect", err, nil)
	}
	if ep.Close != nil {
		defer func() {
			if closeErr := ep.Close(context.WithoutCancel(ctx)); closeErr != nil {
				slog.Error("error closing source", "error", closeErr)
			}
		}()
	}

	collections, err := cfg.Resolve(ctx, ep.Source)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to select collections", err, nil)
	}

	var engOpts []engine.EngineOption
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.Now != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Now))
	}

	var table *TableReporter
	if opts.Format == "text" {
		table = NewTableReporter(cmd.OutOrStdout())
		engOpts = append(engOpts, engine.WithReporter(table))
	}

	if opts.Journal != "" {
		st, err := store.Open(opts.Journal)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to open journal", err, nil)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		engOpts = append(engOpts, engine.WithRecorder(st))
	}

	eng, err := engine.New(ep.Source, ep.Dest, engine.Config{
		Mode:        opts.Mode,
		Test:        opts.Test,
		Policy:      cfg.Policy,
		Collections: collections,
	}, engOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err, nil)
	}

	if table != nil {
		table.Title()
	}
	report, runErr := eng.Run(ctx)
	if table != nil {
		table.Finish()
	}

	if runErr != nil {
		return reportFailure(formatter, report, runErr)
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	if opts.Test {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Test passed successfully.")
	}
	return nil
}

func reportFailure(f *OutputFormatter, report *engine.RunReport, err error) error {
	if report.Conflict != nil {
		if f.Format == "json" {
			_ = f.Error(string(syncerr.CodeMappingConflict), report.Conflict.Describe(), report)
		} else {
			fmt.Fprintln(f.Writer, "Dynamic Mapping test failed:")
			for _, line := range strings.Split(report.Conflict.Describe(), "\n") {
				fmt.Fprintln(f.Writer, "\t"+line)
			}
		}
		return WrapExitError(ExitFailure, "mapping conflict", err)
	}

	message := "run failed"
	switch {
	case errors.Is(err, context.Canceled):
		message = "run interrupted"
	case syncerr.IsDuplicateField(err):
		message = "run aborted"
	}
	var details any
	if f.Format == "json" {
		details = report
	}
	_ = f.Error(errorCode(err), err.Error(), details)
	return WrapExitError(ExitFailure, message, err)
}
