package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/mongo2elastic/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal    string
	Collection string // optional "db.coll"
	Limit      int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled runs",
		Long: `List the runs recorded in a journal, newest first. With --collection,
list the results of one collection across runs instead.

Examples:
  mongo2elastic history --journal ./m2e.db
  mongo2elastic history --journal ./m2e.db --collection app.events --limit 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite run journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Collection, "collection", "", "show one collection (db.coll)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum entries to show (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Journal)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open journal", err, nil)
	}
	defer st.Close()

	if opts.Collection != "" {
		db, coll, ok := strings.Cut(opts.Collection, ".")
		if !ok || db == "" || coll == "" {
			return formatter.Fail(ExitCommandError, "invalid --collection",
				fmt.Errorf("want db.coll, got %q", opts.Collection), nil)
		}
		entries, err := st.CollectionHistory(ctx, db, coll, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to read history", err, nil)
		}
		if formatter.Format == "json" {
			return formatter.Success(entries)
		}
		writeCollectionHistory(formatter.Writer, opts.Collection, entries)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read history", err, nil)
	}
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	writeRuns(formatter.Writer, runs)
	return nil
}

func writeRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in journal.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-6s  %-4s  %-20s  %s\n", "RUN", "MODE", "TEST", "STARTED", "OUTCOME")
	for _, r := range runs {
		test := "no"
		if r.Test {
			test = "yes"
		}
		fmt.Fprintf(w, "%-36s  %-6s  %-4s  %-20s  %s\n",
			r.ID, r.Mode, test, r.StartedAt.UTC().Format(time.RFC3339), r.Outcome)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}

func writeCollectionHistory(w io.Writer, name string, entries []store.CollectionRun) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No history for %s.\n", name)
		return
	}
	fmt.Fprintf(w, "%-36s  %-40s  %10s  %s\n", "RUN", "INDEX/TYPE", "DOCS", "STATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%-36s  %-40s  %10d  %s\n", e.RunID, e.Index+"/"+e.Type, e.Docs, e.Status)
	}
}
