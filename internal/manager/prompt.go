package manager

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// UnknownInvoiceID is used when the invoice text carries no INV-<n> marker.
const UnknownInvoiceID = "UNKNOWN"

const fallbackHint = "Check for discounts or partial payments."

var (
	invoiceIDRe   = regexp.MustCompile(`INV-\d+`)
	numberRe      = regexp.MustCompile(`[\d,]+\.?\d*`)
	statusLineRe  = regexp.MustCompile(`(?i)AUDIT STATUS:\s*(PASS|FAIL)(?:ED)?\b`)
	discrepancyRe = regexp.MustCompile(`(?im)^\s*DISCREPANCY:\s*(.+?)\s*$`)
	reasonRe      = regexp.MustCompile(`(?im)^\s*REASON:\s*(.+?)\s*$`)
)

// ExtractInvoiceID returns the first INV-<digits> token.
func ExtractInvoiceID(invoice string) string {
	if id := invoiceIDRe.FindString(invoice); id != "" {
		return id
	}
	return UnknownInvoiceID
}

// AuditPrompt is the cycle prompt sent to the analyst.
func AuditPrompt(invoice, bank string, taxRate float64) string {
	pct := strconv.FormatFloat(math.Round(taxRate*10000)/100, 'f', -1, 64)
	return fmt.Sprintf(`You are the Senior Audit Agent.

YOUR MISSION:
1. Verify that the 'Tax' amount on the invoice is exactly %s%% of the Subtotal using the 'calculate_tax_compliance' tool.
2. Check that the invoice 'Total' appears in the bank statement using the 'match_invoice_to_statement' and 'fuzzy_match_vendor' tools.

CURRENT DATA:
- Invoice:
%s
- Bank Statement:
%s

OUTPUT RULES:
- The first line of your answer must be "AUDIT STATUS: PASS" or "AUDIT STATUS: FAIL".
- If the amounts match exactly and tax is compliant, answer PASS.
- If there is a small difference, check whether it is a tax deduction (TDS) or a discount. If you can explain it, you may PASS; otherwise FAIL.
- On FAIL add a line "DISCREPANCY: <amount or field>" and a line "REASON: <short explanation>".`,
		pct, strings.TrimSpace(invoice), strings.TrimSpace(bank))
}

// RetryMessage wraps a hint into the feedback injected after a failed cycle.
func RetryMessage(hint string) string {
	return fmt.Sprintf("Previous audit failed. %s Re-evaluate and if the difference is valid TDS, you may PASS.", hint)
}

// Verdict is the parsed status header of an analyst reply.
type Verdict struct {
	Status      string // PASS, FAIL or empty when no header was found
	Discrepancy string
	Reason      string
}

func (v Verdict) Passed() bool { return v.Status == "PASS" }

// ParseVerdict reads the first AUDIT STATUS line. A reply without one is not a pass.
func ParseVerdict(reply string) Verdict {
	var v Verdict
	if m := statusLineRe.FindStringSubmatch(reply); m != nil {
		v.Status = strings.ToUpper(m[1])
	}
	if m := discrepancyRe.FindStringSubmatch(reply); m != nil {
		v.Discrepancy = m[1]
	}
	if m := reasonRe.FindStringSubmatch(reply); m != nil {
		v.Reason = m[1]
	}
	return v
}

// BuildHint compares the largest number in each text. It knows nothing about
// which number is the total, so dates or invoice numbers can dominate.
func BuildHint(invoice, bank string) string {
	invMax, ok1 := maxNumber(invoice)
	bankMax, ok2 := maxNumber(bank)
	if !ok1 || !ok2 {
		return fallbackHint
	}
	diff := invMax - bankMax
	if diff < 0 {
		diff = -diff
	}
	if diff > 0 {
		return fmt.Sprintf("The difference is exactly %.2f. Check if this amount corresponds to a tax deduction (TDS) or discount.", diff)
	}
	return fallbackHint
}

func maxNumber(text string) (float64, bool) {
	found := false
	var best float64
	for _, tok := range numberRe.FindAllString(text, -1) {
		tok = strings.ReplaceAll(tok, ",", "")
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}
