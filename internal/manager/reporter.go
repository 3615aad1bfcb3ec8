package manager

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/stellarlinkco/vouchvault/internal/evaluation"
)

// Reporter narrates the audit loop on a console.
type Reporter struct {
	out io.Writer

	title   *color.Color
	info    *color.Color
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
	dimmed  *color.Color
	quietly bool
}

// NewReporter writes to out; a nil writer means stdout.
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		out:    out,
		title:  color.New(color.FgCyan, color.Bold),
		info:   color.New(color.FgWhite),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed),
		dimmed: color.New(color.FgHiBlack),
	}
}

// Discard returns a reporter that prints nothing.
func Discard() *Reporter {
	r := NewReporter(io.Discard)
	r.quietly = true
	return r
}

func (r *Reporter) line(c *color.Color, format string, args ...any) {
	if r == nil || r.quietly {
		return
	}
	c.Fprintf(r.out, format+"\n", args...)
}

func (r *Reporter) Banner() {
	r.line(r.title, "\n--- VouchVault: Enterprise Audit Agent ---")
	r.line(r.dimmed, "------------------------------------------")
}

func (r *Reporter) Inputs(invoice, bank string) {
	r.line(r.info, "[Manager] Incoming invoice detected:\n%s", strings.TrimSpace(invoice))
	rows := len(strings.Split(strings.TrimSpace(bank), "\n")) - 1
	if rows < 0 {
		rows = 0
	}
	r.line(r.info, "[Manager] Bank statement fetched (%d transactions found).", rows)
}

func (r *Reporter) Duplicate(id string) {
	r.line(r.warn, "[Memory] Invoice %s has already been processed. Proceeding anyway.", id)
}

func (r *Reporter) Cycle(n int) {
	r.line(r.title, "\n[Analyst] Audit cycle #%d started...", n)
}

func (r *Reporter) Report(text string) {
	r.line(r.info, "[Analyst report]:\n%s", text)
}

func (r *Reporter) Passed() {
	r.line(r.ok, "\n[Manager] Audit verified. Invoice approved.")
}

func (r *Reporter) Discrepancy(v Verdict) {
	r.line(r.warn, "\n[Manager] Discrepancy detected.")
	if v.Discrepancy != "" {
		r.line(r.warn, "  discrepancy: %s", v.Discrepancy)
	}
	if v.Reason != "" {
		r.line(r.warn, "  reason: %s", v.Reason)
	}
}

func (r *Reporter) Hint(hint string) {
	r.line(r.info, "[Manager] Instruction: '%s'", hint)
}

func (r *Reporter) Exhausted() {
	r.line(r.fail, "\n[Manager] Audit failed after multiple attempts. Flagging for human review.")
}

func (r *Reporter) Error(err error) {
	r.line(r.fail, "\n[Manager] Error during analysis: %v", err)
}

func (r *Reporter) Metrics(m *evaluation.AuditMetrics) {
	if m == nil {
		return
	}
	r.line(r.title, "\n[System evaluation metrics]")
	r.line(r.info, "   Duration: %.2fs", m.DurationSeconds())
	r.line(r.info, "   Attempts: %d", m.Attempts)
	r.line(r.info, "   Checks:   %d/3", m.PassedChecks())
	status := r.ok
	if m.Status != "PASS" {
		status = r.fail
	}
	r.line(status, "   Status:   %s", m.Status)
}

// Summary prints the session summary from the evaluator.
func (r *Reporter) Summary(summary map[string]any) {
	if len(summary) == 0 {
		return
	}
	r.line(r.title, "\n[Session summary]")
	for _, k := range []string{"total_audits", "passed", "failed", "pass_rate", "avg_duration"} {
		r.line(r.info, "   %s: %s", k, fmt.Sprint(summary[k]))
	}
}
