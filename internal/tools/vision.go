package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"

	"github.com/stellarlinkco/vouchvault/internal/embed"
)

const VisualEvidenceToolName = "audit_visual_evidence"

const visualAuditPrompt = `You are a civil works field auditor. Inspect the attached site photo against this contract clause:

%q

Reply with COMPLIANT, NON-COMPLIANT or INCONCLUSIVE on the first line, then a short justification that names what is visible in the photo.`

// VisualEvidenceTool asks a vision-capable model whether a site photo
// satisfies a clause. Photos are resolved inside PhotosDir only.
type VisualEvidenceTool struct {
	Model     model.Model
	ModelName string
	MaxTokens int
	PhotosDir string
}

func (t *VisualEvidenceTool) Name() string { return VisualEvidenceToolName }

func (t *VisualEvidenceTool) Description() string {
	return "Inspects one site photo with a vision model and judges whether it complies with a contract clause. image_source is a file name from the site photos directory."
}

func (t *VisualEvidenceTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"clause_text":  map[string]interface{}{"type": "string", "description": "Contract clause to verify."},
			"image_source": map[string]interface{}{"type": "string", "description": "Photo file name, e.g. site_photo_01.jpg."},
		},
		Required: []string{"clause_text", "image_source"},
	}
}

func (t *VisualEvidenceTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	clause, err := stringParam(params, "clause_text")
	if err != nil {
		return nil, err
	}
	source, err := stringParam(params, "image_source")
	if err != nil {
		return nil, err
	}
	name := filepath.Base(strings.TrimSpace(source))
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("image_source is empty")
	}

	data, err := os.ReadFile(filepath.Join(t.PhotosDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image %q not found in site photos", name)
		}
		return nil, fmt.Errorf("read image %s: %w", name, err)
	}

	resp, err := t.Model.Complete(ctx, model.Request{
		Model:     t.ModelName,
		MaxTokens: t.MaxTokens,
		Messages: []model.Message{{
			Role: "user",
			ContentBlocks: []model.ContentBlock{
				{Type: model.ContentBlockText, Text: fmt.Sprintf(visualAuditPrompt, clause)},
				{Type: model.ContentBlockImage, MediaType: embed.ImageMediaType(name, data), Data: base64.StdEncoding.EncodeToString(data)},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("vision model: %w", err)
	}
	text := strings.TrimSpace(resp.Message.TextContent())
	return textResult(fmt.Sprintf("VLM Analysis for '%s':\n%s", name, text)), nil
}
