package evaluation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/stellarlinkco/vouchvault/internal/memory"
)

// AuditMetrics tracks a single audit. The manager mutates it in place through
// the pointer returned by StartAudit.
type AuditMetrics struct {
	InvoiceID string
	StartTime time.Time
	EndTime   time.Time
	Attempts  int
	Status    string

	// nil means the check was not evaluated.
	TaxCompliant  *bool
	VendorMatched *bool
	AmountMatched *bool
}

// Finish records the terminal status and end time.
func (m *AuditMetrics) Finish(status string, at time.Time) {
	m.Status = status
	m.EndTime = at
}

// DurationSeconds is rounded to two decimals and zero while unfinished.
func (m *AuditMetrics) DurationSeconds() float64 {
	if m.EndTime.IsZero() {
		return 0
	}
	return math.Round(m.EndTime.Sub(m.StartTime).Seconds()*100) / 100
}

func (m *AuditMetrics) PassedChecks() int {
	n := 0
	for _, c := range []*bool{m.TaxCompliant, m.VendorMatched, m.AmountMatched} {
		if c != nil && *c {
			n++
		}
	}
	return n
}

func (m *AuditMetrics) Map() map[string]any {
	return map[string]any{
		"invoice_id":       m.InvoiceID,
		"duration_seconds": m.DurationSeconds(),
		"attempts":         m.Attempts,
		"status":           m.Status,
		"checks_passed":    fmt.Sprintf("%d/3", m.PassedChecks()),
	}
}

// Evaluator aggregates metrics across the audits of one session.
type Evaluator struct {
	mu      sync.Mutex
	history []*AuditMetrics
	now     func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// Now is the evaluator's clock, shared with the manager so durations stay
// consistent under test clocks.
func (e *Evaluator) Now() time.Time {
	return e.now()
}

func (e *Evaluator) StartAudit(invoiceID string) *AuditMetrics {
	m := &AuditMetrics{
		InvoiceID: invoiceID,
		StartTime: e.now(),
		Status:    memory.StatusPending,
	}
	e.mu.Lock()
	e.history = append(e.history, m)
	e.mu.Unlock()
	return m
}

// Summary is empty until an audit has been started.
func (e *Evaluator) Summary() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := len(e.history)
	if total == 0 {
		return map[string]any{}
	}
	passed := 0
	var durations float64
	for _, m := range e.history {
		if m.Status == memory.StatusPass {
			passed++
		}
		durations += m.DurationSeconds()
	}
	return map[string]any{
		"total_audits": total,
		"passed":       passed,
		"failed":       total - passed,
		"pass_rate":    fmt.Sprintf("%.1f%%", float64(passed)/float64(total)*100),
		"avg_duration": fmt.Sprintf("%.2fs", durations/float64(total)),
	}
}

func (e *Evaluator) History() []*AuditMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*AuditMetrics, len(e.history))
	copy(out, e.history)
	return out
}
