package tools

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Invoice holds the fields parsed from a plain-text invoice. The Has* flags
// report which amounts were present.
type Invoice struct {
	Number   string
	Vendor   string
	Date     string
	Subtotal float64
	Tax      float64
	Total    float64

	HasSubtotal bool
	HasTax      bool
	HasTotal    bool
}

var (
	invoiceNumberRe = regexp.MustCompile(`(?i)INVOICE\s*#\s*([A-Za-z0-9-]+)`)
	invoiceVendorRe = regexp.MustCompile(`(?im)^\s*Vendor:\s*(.+?)\s*$`)
	invoiceDateRe   = regexp.MustCompile(`(?im)^\s*Date:\s*(.+?)\s*$`)
	subtotalRe      = regexp.MustCompile(`(?im)^\s*Sub\s*-?total:\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	taxRe           = regexp.MustCompile(`(?im)^\s*Tax(?:\s*\([^)]*\))?:\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	totalRe         = regexp.MustCompile(`(?im)^\s*Total:\s*\$?\s*([\d,]+(?:\.\d+)?)`)
)

func ParseInvoice(text string) Invoice {
	var inv Invoice
	if m := invoiceNumberRe.FindStringSubmatch(text); m != nil {
		inv.Number = m[1]
	}
	if m := invoiceVendorRe.FindStringSubmatch(text); m != nil {
		inv.Vendor = m[1]
	}
	if m := invoiceDateRe.FindStringSubmatch(text); m != nil {
		inv.Date = m[1]
	}
	inv.Subtotal, inv.HasSubtotal = parseAmount(subtotalRe, text)
	inv.Tax, inv.HasTax = parseAmount(taxRe, text)
	inv.Total, inv.HasTotal = parseAmount(totalRe, text)
	return inv
}

func parseAmount(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseStatement reads a bank statement CSV. A header row naming DATE, DESC and
// AMOUNT columns is honoured when present; otherwise columns are positional.
// Rows whose amount does not parse are skipped.
func ParseStatement(text string) ([]StatementRecord, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	dateCol, descCol, amountCol := 0, 1, 2
	var records []StatementRecord
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse statement: %w", err)
		}
		if first {
			first = false
			if d, s, a, ok := headerColumns(row); ok {
				dateCol, descCol, amountCol = d, s, a
				continue
			}
		}
		if amountCol >= len(row) {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[amountCol]), ",", ""), 64)
		if err != nil {
			continue
		}
		rec := StatementRecord{Amount: amount}
		if dateCol < len(row) {
			rec.Date = strings.TrimSpace(row[dateCol])
		}
		if descCol < len(row) {
			rec.Description = strings.TrimSpace(row[descCol])
		}
		records = append(records, rec)
	}
	return records, nil
}

func headerColumns(row []string) (date, desc, amount int, ok bool) {
	date, desc, amount = -1, -1, -1
	for i, col := range row {
		switch strings.ToUpper(strings.TrimSpace(col)) {
		case "DATE":
			date = i
		case "DESC", "DESCRIPTION", "NARRATION":
			desc = i
		case "AMOUNT":
			amount = i
		}
	}
	if amount < 0 {
		return 0, 1, 2, false
	}
	if date < 0 {
		date = len(row)
	}
	if desc < 0 {
		desc = len(row)
	}
	return date, desc, amount, true
}
