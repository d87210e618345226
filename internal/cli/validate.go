package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mongo2elastic/internal/config"
)

// ValidationResult is the summary of a valid configuration.
type ValidationResult struct {
	Valid       bool               `json:"valid"`
	Source      string             `json:"source"`
	Destination string             `json:"destination"`
	Policy      map[string]string  `json:"policy"`
	Collections []CollectionTarget `json:"collections"`
	Selectors   []string           `json:"selectors"`
}

// CollectionTarget is a configured collection and where it is indexed.
type CollectionTarget struct {
	Collection      string `json:"collection"`
	Index           string `json:"index"`
	Type            string `json:"type"`
	TimestampField  string `json:"timestamp_field,omitempty"`
	TimestampFormat string `json:"timestamp_format,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a configuration without connecting",
		Long: `Load a configuration, resolve its templates and hooks, and print where
each configured collection will be indexed. No connection is made, so
select lines are listed but not expanded.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid configuration", err, nil)
	}

	result := summarize(cfg)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	writeValidation(formatter.Writer, result)
	return nil
}

func summarize(cfg *config.Config) ValidationResult {
	p := cfg.Policy
	result := ValidationResult{
		Valid:       true,
		Source:      cfg.MongoURI,
		Destination: cfg.Elastic.Address(),
		Policy: map[string]string{
			"common_timestamp": p.CommonTimestamp,
			"field_format":     p.FieldFormat.String(),
			"sync_field":       p.SyncField,
			"sync_inc_field":   p.SyncIncField(),
			"index_format":     p.IndexFormat.String(),
			"type_format":      p.TypeFormat.String(),
		},
		Collections: make([]CollectionTarget, 0, len(cfg.Collections)),
		Selectors:   make([]string, 0, len(cfg.Selectors)),
	}
	for _, c := range cfg.Collections {
		result.Collections = append(result.Collections, CollectionTarget{
			Collection:      c.FullName(),
			Index:           p.IndexName(c),
			Type:            p.TypeName(c),
			TimestampField:  c.TimestampField,
			TimestampFormat: c.TimestampFormat,
		})
	}
	for _, s := range cfg.Selectors {
		result.Selectors = append(result.Selectors, s.String())
	}
	return result
}

var policyOrder = []string{"common_timestamp", "field_format", "sync_field", "sync_inc_field", "index_format", "type_format"}

func writeValidation(w io.Writer, r ValidationResult) {
	fmt.Fprintln(w, "✓ Configuration valid")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "source:      %s\n", r.Source)
	fmt.Fprintf(w, "destination: %s\n", r.Destination)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "policy:")
	for _, key := range policyOrder {
		fmt.Fprintf(w, "  %-18s %s\n", key, orDash(r.Policy[key]))
	}

	if len(r.Collections) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "collections:")
		for _, c := range r.Collections {
			line := fmt.Sprintf("  %-30s -> %s/%s", c.Collection, c.Index, c.Type)
			if c.TimestampField != "" {
				line += " (timestamp " + c.TimestampField
				if c.TimestampFormat != "" {
					line += ", format " + c.TimestampFormat
				}
				line += ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(r.Selectors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "selectors:")
		for _, s := range r.Selectors {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
