package memory

import (
	"strings"
	"sync"
	"time"
)

// Status values carried by audit records and metrics.
const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusError   = "ERROR"
	StatusPending = "PENDING"
)

// AuditRecord is one finished audit. Records are never mutated after AddRecord.
type AuditRecord struct {
	InvoiceID string    `json:"invoice_id"`
	Vendor    string    `json:"vendor"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// AuditMemory is the append-only session memory of audit outcomes.
type AuditMemory struct {
	mu      sync.RWMutex
	records []AuditRecord
}

func NewAuditMemory() *AuditMemory {
	return &AuditMemory{}
}

func (m *AuditMemory) AddRecord(record AuditRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
}

// HasDuplicate reports whether any stored record carries invoiceID exactly.
func (m *AuditMemory) HasDuplicate(invoiceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.InvoiceID == invoiceID {
			return true
		}
	}
	return false
}

// GetByVendor returns records whose vendor contains substr, case-insensitively,
// in insertion order.
func (m *AuditMemory) GetByVendor(substr string) []AuditRecord {
	needle := strings.ToLower(substr)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AuditRecord, 0)
	for _, r := range m.records {
		if strings.Contains(strings.ToLower(r.Vendor), needle) {
			out = append(out, r)
		}
	}
	return out
}

// GetRecent returns the last n records in insertion order.
func (m *AuditMemory) GetRecent(n int) []AuditRecord {
	if n <= 0 {
		return []AuditRecord{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := len(m.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]AuditRecord, len(m.records)-start)
	copy(out, m.records[start:])
	return out
}

func (m *AuditMemory) TotalProcessed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
