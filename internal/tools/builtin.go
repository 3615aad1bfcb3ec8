package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/tool"
)

const (
	TaxComplianceToolName    = "calculate_tax_compliance"
	FuzzyMatchVendorToolName = "fuzzy_match_vendor"
	StatementMatchToolName   = "match_invoice_to_statement"
)

// TaxComplianceTool exposes CalculateTaxCompliance.
type TaxComplianceTool struct {
	// DefaultRate applies when the call omits tax_rate.
	DefaultRate float64
}

func (t *TaxComplianceTool) Name() string { return TaxComplianceToolName }

func (t *TaxComplianceTool) Description() string {
	return "Checks whether the tax on an invoice matches the expected tax rate (GST/VAT compliance). Returns expected tax, difference and MATCH or MISMATCH."
}

func (t *TaxComplianceTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"subtotal":   map[string]interface{}{"type": "number", "description": "The pre-tax amount."},
			"tax_amount": map[string]interface{}{"type": "number", "description": "The tax listed on the invoice."},
			"tax_rate":   map[string]interface{}{"type": "number", "description": "Expected tax rate as a fraction, e.g. 0.18."},
		},
		Required: []string{"subtotal", "tax_amount"},
	}
}

func (t *TaxComplianceTool) Execute(_ context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	subtotal, err := floatParam(params, "subtotal")
	if err != nil {
		return nil, err
	}
	tax, err := floatParam(params, "tax_amount")
	if err != nil {
		return nil, err
	}
	rate := t.DefaultRate
	if rate <= 0 {
		rate = DefaultTaxRate
	}
	if _, ok := params["tax_rate"]; ok {
		if rate, err = floatParam(params, "tax_rate"); err != nil {
			return nil, err
		}
	}
	return jsonResult(CalculateTaxCompliance(subtotal, tax, rate))
}

// FuzzyMatchVendorTool exposes FuzzyMatchVendor.
type FuzzyMatchVendorTool struct{}

func (FuzzyMatchVendorTool) Name() string { return FuzzyMatchVendorToolName }

func (FuzzyMatchVendorTool) Description() string {
	return "Checks whether the invoice vendor name appears in the bank statement text, tolerating case and spelling differences."
}

func (FuzzyMatchVendorTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"invoice_vendor":      map[string]interface{}{"type": "string", "description": "Vendor name from the invoice."},
			"bank_statement_text": map[string]interface{}{"type": "string", "description": "Raw bank statement text."},
		},
		Required: []string{"invoice_vendor", "bank_statement_text"},
	}
}

func (FuzzyMatchVendorTool) Execute(_ context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	vendor, err := stringParam(params, "invoice_vendor")
	if err != nil {
		return nil, err
	}
	statement, err := stringParam(params, "bank_statement_text")
	if err != nil {
		return nil, err
	}
	return jsonResult(FuzzyMatchVendor(vendor, statement))
}

// StatementMatchTool exposes MatchInvoiceToStatement over either structured
// records or raw statement CSV.
type StatementMatchTool struct{}

func (StatementMatchTool) Name() string { return StatementMatchToolName }

func (StatementMatchTool) Description() string {
	return "Finds the first bank statement transaction whose amount exactly equals the invoice amount. Pass either records or statement_csv."
}

func (StatementMatchTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"amount": map[string]interface{}{"type": "number", "description": "Invoice amount to look for."},
			"records": map[string]interface{}{
				"type":        "array",
				"description": "Statement rows.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"date":        map[string]interface{}{"type": "string"},
						"description": map[string]interface{}{"type": "string"},
						"amount":      map[string]interface{}{"type": "number"},
					},
					"required": []interface{}{"amount"},
				},
			},
			"statement_csv": map[string]interface{}{"type": "string", "description": "Raw bank statement CSV."},
		},
		Required: []string{"amount"},
	}
}

type statementMatch struct {
	MatchFound bool             `json:"match_found"`
	Record     *StatementRecord `json:"record,omitempty"`
}

func (StatementMatchTool) Execute(_ context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	amount, err := floatParam(params, "amount")
	if err != nil {
		return nil, err
	}

	var records []StatementRecord
	switch {
	case params["records"] != nil:
		raw, err := json.Marshal(params["records"])
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
	case params["statement_csv"] != nil:
		text, err := stringParam(params, "statement_csv")
		if err != nil {
			return nil, err
		}
		if records, err = ParseStatement(text); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("records or statement_csv is required")
	}

	out := statementMatch{}
	if rec, ok := MatchInvoiceToStatement(amount, records); ok {
		out.MatchFound = true
		out.Record = &rec
	}
	return jsonResult(out)
}

func jsonResult(v any) (*tool.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &tool.ToolResult{Success: true, Output: string(data), Data: v}, nil
}

func textResult(s string) *tool.ToolResult {
	return &tool.ToolResult{Success: true, Output: s}
}

func floatParam(params map[string]interface{}, key string) (float64, error) {
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: not a number: %q", key, v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	switch v := params[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("%s is required", key)
	default:
		return "", fmt.Errorf("%s: expected string, got %T", key, v)
	}
}
