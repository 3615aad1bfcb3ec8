package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/tool"

	"github.com/stellarlinkco/vouchvault/internal/evidence"
)

const (
	KnowledgeBaseToolName     = "consult_knowledge_base"
	ContractorHistoryToolName = "check_contractor_history"
	VerifyComplianceToolName  = "verify_compliance"
)

// EvidenceSearcher is the read side of the evidence store.
type EvidenceSearcher interface {
	SearchSimilarContracts(ctx context.Context, query string, limit int) []evidence.Hit
	SearchVisualsByText(ctx context.Context, query string, limit int) []evidence.Hit
	ContractorHistory(ctx context.Context, contractorID string) []evidence.Hit
}

// KnowledgeBaseTool returns the contract chunks closest to a query.
type KnowledgeBaseTool struct {
	Store EvidenceSearcher
	Limit int
}

func (t *KnowledgeBaseTool) Name() string { return KnowledgeBaseToolName }

func (t *KnowledgeBaseTool) Description() string {
	return "Searches ingested contract documents for clauses relevant to a question, e.g. payment terms or material specifications."
}

func (t *KnowledgeBaseTool) Schema() *tool.JSONSchema {
	return queryParamSchema("query", "What to look for in the contracts.")
}

func (t *KnowledgeBaseTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	query, err := stringParam(params, "query")
	if err != nil {
		return nil, err
	}
	hits := t.Store.SearchSimilarContracts(ctx, query, limitOr(t.Limit))
	if len(hits) == 0 {
		return textResult("No relevant contract clauses found."), nil
	}
	var b strings.Builder
	b.WriteString("Relevant contract clauses:\n")
	for _, h := range hits {
		source := h.String(evidence.PayloadSource)
		if source == "" {
			source = h.String("original_id")
		}
		fmt.Fprintf(&b, "- [%s] %s (score %.2f)\n", source, strings.TrimSpace(h.String(evidence.PayloadText)), h.Score)
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil
}

// ContractorHistoryTool lists past audit outcomes for a contractor.
type ContractorHistoryTool struct {
	Store EvidenceSearcher
}

func (t *ContractorHistoryTool) Name() string { return ContractorHistoryToolName }

func (t *ContractorHistoryTool) Description() string {
	return "Returns past audit results recorded for a contractor, including project, status and summary."
}

func (t *ContractorHistoryTool) Schema() *tool.JSONSchema {
	return queryParamSchema("contractor_id", "Contractor identifier, e.g. C_99.")
}

func (t *ContractorHistoryTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	id, err := stringParam(params, "contractor_id")
	if err != nil {
		return nil, err
	}
	hits := t.Store.ContractorHistory(ctx, id)
	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No audit history found for contractor %s.", id)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Audit history for contractor %s:\n", id)
	for _, h := range hits {
		fmt.Fprintf(&b, "- [%s] project=%s status=%s: %s\n",
			h.String("timestamp"), h.String(evidence.PayloadProjectID), h.String("status"), h.String("summary"))
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil
}

// VerifyComplianceTool finds site photos that match a contract clause.
type VerifyComplianceTool struct {
	Store EvidenceSearcher
	Limit int
}

func (t *VerifyComplianceTool) Name() string { return VerifyComplianceToolName }

func (t *VerifyComplianceTool) Description() string {
	return "Finds site photos that visually match a contract clause, e.g. 'road surface free of cracks'. Use audit_visual_evidence to inspect a returned photo."
}

func (t *VerifyComplianceTool) Schema() *tool.JSONSchema {
	return queryParamSchema("clause_text", "Contract clause or visual requirement.")
}

func (t *VerifyComplianceTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	clause, err := stringParam(params, "clause_text")
	if err != nil {
		return nil, err
	}
	hits := t.Store.SearchVisualsByText(ctx, clause, limitOr(t.Limit))
	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No visual evidence found for '%s'.", clause)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Visual Evidence for '%s':\n", clause)
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s (project %s, score %.2f)\n", h.String(evidence.PayloadSource), h.String(evidence.PayloadProjectID), h.Score)
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil
}

func queryParamSchema(name, description string) *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			name: map[string]interface{}{"type": "string", "description": description},
		},
		Required: []string{name},
	}
}

func limitOr(limit int) int {
	if limit > 0 {
		return limit
	}
	return evidence.DefaultSearchLimit
}
