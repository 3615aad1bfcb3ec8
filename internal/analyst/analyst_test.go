package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/tools"
)

// scriptedModel replays responses in order and records every request.
type scriptedModel struct {
	replies  []model.Message
	err      error
	requests []model.Request
}

func (s *scriptedModel) Complete(_ context.Context, req model.Request) (*model.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &model.Response{Message: model.Message{Role: "assistant", Content: "done"}}, nil
	}
	msg := s.replies[0]
	s.replies = s.replies[1:]
	return &model.Response{Message: msg}, nil
}

func (s *scriptedModel) CompleteStream(ctx context.Context, req model.Request, cb model.StreamHandler) error {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return err
	}
	return cb(model.StreamResult{Final: true, Response: resp})
}

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(tools.Deps{TaxRate: 0.18})
	require.NoError(t, err)
	return reg
}

func toolCall(id, name string, args map[string]any) model.Message {
	return model.Message{Role: "assistant", ToolCalls: []model.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

func newAgent(t *testing.T, m model.Model, opts Options) *Agent {
	t.Helper()
	if opts.Workspace == "" {
		opts.Workspace = t.TempDir()
	}
	a, err := New(m, newRegistry(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAnalyzePlainText(t *testing.T) {
	m := &scriptedModel{replies: []model.Message{{Role: "assistant", Content: "  AUDIT STATUS: PASS  "}}}
	a := newAgent(t, m, Options{})

	out, err := a.Analyze(context.Background(), "audit this")
	require.NoError(t, err)
	assert.Equal(t, "AUDIT STATUS: PASS", out)

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	assert.Equal(t, SystemPrompt, req.System)
	assert.Len(t, req.Tools, 3)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "audit this", req.Messages[0].Content)
}

func TestAnalyzeToolRoundTrip(t *testing.T) {
	m := &scriptedModel{replies: []model.Message{
		toolCall("call_1", tools.TaxComplianceToolName, map[string]any{"subtotal": 1000.0, "tax_amount": 180.0}),
		{Role: "assistant", Content: "AUDIT STATUS: PASS\nTax matches."},
	}}
	a := newAgent(t, m, Options{})

	out, err := a.Analyze(context.Background(), "check tax")
	require.NoError(t, err)
	assert.Equal(t, "AUDIT STATUS: PASS\nTax matches.", out)
	assert.Equal(t, 1, a.ToolRuns())

	require.Len(t, m.requests, 2)
	second := m.requests[1].Messages
	require.Len(t, second, 3)
	toolMsg := second[2]
	assert.Equal(t, "tool", toolMsg.Role)
	require.Len(t, toolMsg.ToolCalls, 1)
	assert.Equal(t, "call_1", toolMsg.ToolCalls[0].ID)

	var result tools.TaxResult
	require.NoError(t, json.Unmarshal([]byte(toolMsg.ToolCalls[0].Result), &result))
	assert.True(t, result.IsCompliant)
}

func TestToolErrorsGoBackToModel(t *testing.T) {
	m := &scriptedModel{replies: []model.Message{
		toolCall("call_1", tools.TaxComplianceToolName, map[string]any{"subtotal": 1000.0}),
		toolCall("call_2", "no_such_tool", map[string]any{"q": "x"}),
		{Role: "assistant", Content: "gave up"},
	}}
	a := newAgent(t, m, Options{})

	out, err := a.Analyze(context.Background(), "check tax")
	require.NoError(t, err)
	assert.Equal(t, "gave up", out)

	for _, idx := range []int{1, 2} {
		msgs := m.requests[idx].Messages
		res := msgs[len(msgs)-1].ToolCalls[0].Result
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(res), &payload), res)
		assert.NotEmpty(t, payload["error"])
	}
}

func TestBuiltinToolsAreNotOffered(t *testing.T) {
	m := &scriptedModel{}
	a, err := New(m, nil, Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Analyze(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, m.requests, 1)
	assert.Empty(t, m.requests[0].Tools)
}

func TestToolLoopLimit(t *testing.T) {
	var replies []model.Message
	for i := 0; i < 5; i++ {
		replies = append(replies, toolCall("c", tools.FuzzyMatchVendorToolName, map[string]any{
			"invoice_vendor": "Acme", "bank_statement_text": "Acme",
		}))
	}
	m := &scriptedModel{replies: replies}
	a := newAgent(t, m, Options{MaxToolIterations: 2})

	_, err := a.Analyze(context.Background(), "loop")
	assert.ErrorIs(t, err, ErrToolLoop)
	assert.Len(t, m.requests, 3)
}

func TestInjectMessageSharesHistory(t *testing.T) {
	m := &scriptedModel{replies: []model.Message{
		{Role: "assistant", Content: "AUDIT STATUS: FAIL"},
		{Role: "assistant", Content: "AUDIT STATUS: PASS"},
	}}
	a := newAgent(t, m, Options{})
	ctx := context.Background()

	_, err := a.Analyze(ctx, "first")
	require.NoError(t, err)
	out, err := a.InjectMessage(ctx, "hint")
	require.NoError(t, err)
	assert.Equal(t, "AUDIT STATUS: PASS", out)

	msgs := m.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "AUDIT STATUS: FAIL", msgs[1].Content)
	assert.Equal(t, "hint", msgs[2].Content)
}

func TestModelError(t *testing.T) {
	a := newAgent(t, &scriptedModel{err: errors.New("rate limited")}, Options{})
	_, err := a.Analyze(context.Background(), "x")
	assert.ErrorContains(t, err, "rate limited")

	_, err = New(nil, nil, Options{Workspace: t.TempDir()})
	assert.Error(t, err)
}

func TestModelErrorDropsUnansweredTurn(t *testing.T) {
	m := &scriptedModel{err: errors.New("overloaded")}
	a := newAgent(t, m, Options{})
	ctx := context.Background()
	before := a.SessionID()

	_, err := a.Analyze(ctx, "first question")
	require.Error(t, err)
	assert.NotEqual(t, before, a.SessionID())

	m.err = nil
	m.replies = []model.Message{{Role: "assistant", Content: "answer"}}
	out, err := a.Analyze(ctx, "second question")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	last := m.requests[len(m.requests)-1].Messages
	require.Len(t, last, 1)
	assert.Equal(t, "second question", last[0].Content)
}

func TestSchemaMap(t *testing.T) {
	assert.Equal(t, map[string]any{"type": "object"}, SchemaMap(nil))
	got := SchemaMap(&tool.JSONSchema{
		Type:       "object",
		Properties: map[string]interface{}{"q": map[string]interface{}{"type": "string"}},
		Required:   []string{"q"},
	})
	assert.Equal(t, []string{"q"}, got["required"])
	assert.Contains(t, got, "properties")
}

func TestDefaultFactory(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	_, err := DefaultFactory(ctx, cfg, cfg.Agent.Model)
	assert.ErrorContains(t, err, "api key")

	cfg.Provider.APIKey = "sk-test"
	cfg.Provider.Type = "bogus"
	_, err = DefaultFactory(ctx, cfg, cfg.Agent.Model)
	assert.ErrorContains(t, err, "unknown provider")

	cfg.Provider.Type = "anthropic"
	m, err := DefaultFactory(ctx, cfg, cfg.Agent.Model)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestVisionHelpers(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, cfg.Agent.Model, VisionModelName(cfg))
	cfg.Agent.VisionModel = "vlm"
	assert.Equal(t, "vlm", VisionModelName(cfg))

	assert.True(t, VisionSupported(cfg))
	cfg.Provider.Type = "openai"
	assert.False(t, VisionSupported(cfg))
}
