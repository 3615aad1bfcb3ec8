package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/evaluation"
	"github.com/stellarlinkco/vouchvault/internal/memory"
	"github.com/stellarlinkco/vouchvault/internal/tools"
)

var (
	ErrEmptyInvoice   = errors.New("invoice data cannot be empty")
	ErrEmptyStatement = errors.New("bank statement data cannot be empty")
)

// Analyst is the conversation the manager drives. *analyst.Agent satisfies it.
type Analyst interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	InjectMessage(ctx context.Context, text string) (string, error)
}

// Recorder keeps long-term audit history. *evidence.Store satisfies it.
type Recorder interface {
	StoreAuditResult(ctx context.Context, contractorID, projectID, status, summary string) bool
}

type Options struct {
	MaxAttempts  int
	TaxRate      float64
	CyclePause   time.Duration
	ContractorID string
	ProjectID    string
}

// OptionsFromConfig maps the audit and ingest sections onto loop options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts:  cfg.Audit.MaxAttempts,
		TaxRate:      cfg.Audit.TaxRate,
		CyclePause:   cfg.CyclePauseDuration(),
		ContractorID: cfg.Ingest.ContractorID,
		ProjectID:    cfg.Ingest.ProjectID,
	}
}

// Outcome is the result of one audit run.
type Outcome struct {
	InvoiceID  string
	Status     string
	Attempts   int
	Verdict    Verdict
	Metrics    *evaluation.AuditMetrics
	Transcript []string
	Err        error
}

// Manager runs the retry loop around the analyst.
type Manager struct {
	analyst   Analyst
	memory    *memory.AuditMemory
	evaluator *evaluation.Evaluator
	recorder  Recorder
	reporter  *Reporter
	opts      Options
}

func New(a Analyst, mem *memory.AuditMemory, eval *evaluation.Evaluator, opts Options) *Manager {
	if mem == nil {
		mem = memory.NewAuditMemory()
	}
	if eval == nil {
		eval = evaluation.NewEvaluator()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.DefaultMaxAttempts
	}
	if opts.TaxRate <= 0 {
		opts.TaxRate = config.DefaultTaxRate
	}
	return &Manager{analyst: a, memory: mem, evaluator: eval, reporter: Discard(), opts: opts}
}

// WithRecorder stores terminal verdicts in long-term history.
func (m *Manager) WithRecorder(r Recorder) *Manager {
	m.recorder = r
	return m
}

func (m *Manager) WithReporter(r *Reporter) *Manager {
	if r != nil {
		m.reporter = r
	}
	return m
}

func (m *Manager) Memory() *memory.AuditMemory { return m.memory }
func (m *Manager) Evaluator() *evaluation.Evaluator { return m.evaluator }

// Run audits one invoice against one bank statement.
func (m *Manager) Run(ctx context.Context, invoice, bank string) (*Outcome, error) {
	if strings.TrimSpace(invoice) == "" {
		return nil, ErrEmptyInvoice
	}
	if strings.TrimSpace(bank) == "" {
		return nil, ErrEmptyStatement
	}

	id := ExtractInvoiceID(invoice)
	if m.memory.HasDuplicate(id) {
		log.Printf("[manager] invoice %s has already been processed", id)
		m.reporter.Duplicate(id)
	}

	m.reporter.Banner()
	metrics := m.evaluator.StartAudit(id)
	parsed := tools.ParseInvoice(invoice)
	m.preCheck(metrics, parsed, bank)
	m.reporter.Inputs(invoice, bank)

	out := &Outcome{InvoiceID: id, Status: memory.StatusPending, Metrics: metrics}
	prompt := AuditPrompt(invoice, bank, m.opts.TaxRate)

	for out.Attempts < m.opts.MaxAttempts {
		out.Attempts++
		metrics.Attempts = out.Attempts
		m.reporter.Cycle(out.Attempts)

		if err := pause(ctx, m.opts.CyclePause); err != nil {
			return m.fail(out, err), nil
		}
		reply, err := m.analyst.Analyze(ctx, prompt)
		if err != nil {
			return m.fail(out, err), nil
		}
		out.Transcript = append(out.Transcript, reply)
		m.reporter.Report(reply)

		out.Verdict = ParseVerdict(reply)
		if out.Verdict.Passed() {
			m.finish(ctx, out, parsed, memory.StatusPass)
			m.reporter.Passed()
			m.reporter.Metrics(metrics)
			return out, nil
		}

		m.reporter.Discrepancy(out.Verdict)
		if out.Attempts >= m.opts.MaxAttempts {
			break
		}
		hint := BuildHint(invoice, bank)
		m.reporter.Hint(hint)
		ack, err := m.analyst.InjectMessage(ctx, RetryMessage(hint))
		if err != nil {
			return m.fail(out, err), nil
		}
		if ack != "" {
			out.Transcript = append(out.Transcript, ack)
		}
	}

	m.finish(ctx, out, parsed, memory.StatusFail)
	m.reporter.Exhausted()
	m.reporter.Metrics(metrics)
	return out, nil
}

func (m *Manager) fail(out *Outcome, err error) *Outcome {
	log.Printf("[manager] audit %s aborted: %v", out.InvoiceID, err)
	out.Status = memory.StatusError
	out.Err = fmt.Errorf("analyze invoice %s: %w", out.InvoiceID, err)
	out.Metrics.Finish(memory.StatusError, m.evaluator.Now())
	m.reporter.Error(err)
	m.reporter.Metrics(out.Metrics)
	return out
}

func (m *Manager) finish(ctx context.Context, out *Outcome, inv tools.Invoice, status string) {
	out.Status = status
	out.Metrics.Finish(status, m.evaluator.Now())
	notes := out.Verdict.Reason
	if notes == "" {
		notes = out.Verdict.Discrepancy
	}
	m.memory.AddRecord(memory.AuditRecord{
		InvoiceID: out.InvoiceID,
		Vendor:    inv.Vendor,
		Amount:    inv.Total,
		Status:    status,
		Notes:     notes,
	})
	if m.recorder == nil {
		return
	}
	summary := fmt.Sprintf("Invoice %s from %s (total %.2f) %s after %d attempt(s).",
		out.InvoiceID, vendorOr(inv.Vendor), inv.Total, status, out.Attempts)
	if notes != "" {
		summary += " " + notes
	}
	if !m.recorder.StoreAuditResult(ctx, m.opts.ContractorID, m.opts.ProjectID, status, summary) {
		log.Printf("[manager] audit history for %s not stored", out.InvoiceID)
	}
}

// preCheck fills the metric flags from the parsed inputs. It never decides
// the verdict.
func (m *Manager) preCheck(metrics *evaluation.AuditMetrics, inv tools.Invoice, bank string) {
	if inv.HasSubtotal && inv.HasTax {
		ok := tools.CalculateTaxCompliance(inv.Subtotal, inv.Tax, m.opts.TaxRate).IsCompliant
		metrics.TaxCompliant = &ok
	}
	if inv.Vendor != "" {
		ok := tools.FuzzyMatchVendor(inv.Vendor, bank).MatchFound
		metrics.VendorMatched = &ok
	}
	if inv.HasTotal {
		records, err := tools.ParseStatement(bank)
		if err != nil {
			log.Printf("[manager] parse bank statement: %v", err)
			return
		}
		_, ok := tools.MatchInvoiceToStatement(inv.Total, records)
		metrics.AmountMatched = &ok
	}
}

func vendorOr(v string) string {
	if v == "" {
		return "unknown vendor"
	}
	return v
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
