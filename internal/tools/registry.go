package tools

import (
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"
)

// Deps wires the optional collaborators. Evidence tools are registered when
// Evidence is set; the visual auditor when VisionModel is set.
type Deps struct {
	TaxRate float64

	Evidence    EvidenceSearcher
	SearchLimit int

	VisionModel     model.Model
	VisionModelName string
	MaxTokens       int
	PhotosDir       string
}

// NewRegistry builds the tool registry the analyst and the MCP bridge share.
func NewRegistry(deps Deps) (*tool.Registry, error) {
	registry := tool.NewRegistry()
	list := []tool.Tool{
		&TaxComplianceTool{DefaultRate: deps.TaxRate},
		FuzzyMatchVendorTool{},
		StatementMatchTool{},
	}
	if deps.Evidence != nil {
		list = append(list,
			&KnowledgeBaseTool{Store: deps.Evidence, Limit: deps.SearchLimit},
			&ContractorHistoryTool{Store: deps.Evidence},
			&VerifyComplianceTool{Store: deps.Evidence, Limit: deps.SearchLimit},
		)
	}
	if deps.VisionModel != nil {
		list = append(list, &VisualEvidenceTool{
			Model:     deps.VisionModel,
			ModelName: deps.VisionModelName,
			MaxTokens: deps.MaxTokens,
			PhotosDir: deps.PhotosDir,
		})
	}
	for _, t := range list {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	return registry, nil
}
