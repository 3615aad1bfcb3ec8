package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/vouchvault/internal/tools"
)

func newServer(t *testing.T) *server.MCPServer {
	t.Helper()
	reg, err := tools.NewRegistry(tools.Deps{TaxRate: 0.18})
	require.NoError(t, err)
	s, err := New(reg, "test")
	require.NoError(t, err)
	return s
}

// call sends one JSON-RPC request and decodes the result object.
func call(t *testing.T, s *server.MCPServer, method string, params any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)
	resp := s.HandleMessage(context.Background(), raw)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var envelope struct {
		Result map[string]any `json:"result"`
		Error  map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.Nil(t, envelope.Error, string(data))
	return envelope.Result
}

func initialize(t *testing.T, s *server.MCPServer) {
	call(t, s, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
		"capabilities":    map[string]any{},
	})
}

func TestListTools(t *testing.T) {
	s := newServer(t)
	initialize(t, s)
	res := call(t, s, "tools/list", map[string]any{})

	list, ok := res["tools"].([]any)
	require.True(t, ok)
	names := map[string]map[string]any{}
	for _, item := range list {
		m := item.(map[string]any)
		names[m["name"].(string)] = m
	}
	require.Contains(t, names, tools.TaxComplianceToolName)
	assert.Contains(t, names, tools.FuzzyMatchVendorToolName)
	assert.Contains(t, names, tools.StatementMatchToolName)

	schema := names[tools.TaxComplianceToolName]["inputSchema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []any{"subtotal", "tax_amount"}, schema["required"])
}

func TestCallTool(t *testing.T) {
	s := newServer(t)
	initialize(t, s)
	res := call(t, s, "tools/call", map[string]any{
		"name":      tools.TaxComplianceToolName,
		"arguments": map[string]any{"subtotal": 1000, "tax_amount": 180},
	})
	assert.NotEqual(t, true, res["isError"])
	content := res["content"].([]any)
	require.Len(t, content, 1)
	text := content[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, `"status":"MATCH"`)
}

func TestCallToolValidationError(t *testing.T) {
	s := newServer(t)
	initialize(t, s)
	res := call(t, s, "tools/call", map[string]any{
		"name":      tools.TaxComplianceToolName,
		"arguments": map[string]any{"subtotal": 1000},
	})
	assert.Equal(t, true, res["isError"])
}
