package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/mongo2elastic/internal/engine"
)

const (
	titleFormat    = "%-9s %-40s %-40s %-20s %20s"
	progressFormat = "[%6s%%] %-40s %-40s %-20s %20s"
)

// TableReporter renders run progress as a fixed-width table. Progress lines
// end in a carriage return so the next update overwrites them; the final
// status of a collection ends the line. Notices are held back until Finish
// so they do not break up the table.
type TableReporter struct {
	mu      sync.Mutex
	w       io.Writer
	pending bool
	notices []string
}

// NewTableReporter creates a reporter writing to w.
func NewTableReporter(w io.Writer) *TableReporter {
	return &TableReporter{w: w}
}

// Title prints the column header and its underline.
func (r *TableReporter) Title() {
	r.mu.Lock()
	defer r.mu.Unlock()
	title := fmt.Sprintf(titleFormat, "%", "DB.COLLECTION", "INDEX/TYPE", "DOCS", "STATUS")
	fmt.Fprintln(r.w, title)
	fmt.Fprintln(r.w, strings.Repeat("=", len(title)))
}

// Progress implements engine.Reporter.
func (r *TableReporter) Progress(c engine.CollectionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.w, progressLine(c)+"\r")
	r.pending = true
}

// Done implements engine.Reporter.
func (r *TableReporter) Done(c engine.CollectionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, progressLine(c))
	r.pending = false
}

// Notice implements engine.Reporter.
func (r *TableReporter) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

// Finish terminates a progress line left open by an aborted collection and
// prints the notices collected during the run.
func (r *TableReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	for _, msg := range r.notices {
		fmt.Fprintln(r.w, msg)
	}
	r.notices = nil
}

func (r *TableReporter) endLine() {
	if r.pending {
		fmt.Fprintln(r.w)
		r.pending = false
	}
}

func progressLine(c engine.CollectionReport) string {
	pct := 0.0
	if c.Total > 0 {
		pct = float64(c.Docs) / float64(c.Total) * 100
	}
	return fmt.Sprintf(progressFormat,
		fmt.Sprintf("%.2f", pct),
		c.FullName(),
		c.Target(),
		fmt.Sprintf("%d/%d", c.Docs, c.Total),
		c.Status,
	)
}
