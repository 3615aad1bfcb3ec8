// Package mcpserver exposes the audit tool registry over the Model Context
// Protocol so other agents can call the same tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stellarlinkco/vouchvault/internal/analyst"
)

const Name = "vouchvault"

// Registry is the subset of *tool.Registry the bridge needs.
type Registry interface {
	List() []tool.Tool
	Execute(ctx context.Context, name string, params map[string]interface{}) (*tool.ToolResult, error)
}

// New registers every tool in reg on a fresh MCP server.
func New(reg Registry, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(Name, version, server.WithToolCapabilities(false))
	for _, t := range reg.List() {
		schema, err := json.Marshal(analyst.SchemaMap(t.Schema()))
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", t.Name(), err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), handler(reg, t.Name()))
	}
	return s, nil
}

func handler(reg Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		res, err := reg.Execute(ctx, name, args)
		if err != nil {
			log.Printf("[mcp] tool %s failed: %v", name, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res == nil {
			return mcp.NewToolResultText(""), nil
		}
		if !res.Success && res.Error != nil {
			return mcp.NewToolResultError(res.Error.Error()), nil
		}
		return mcp.NewToolResultText(res.Output), nil
	}
}

// Serve speaks MCP over in/out until ctx ends or in is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	if err := server.NewStdioServer(s).Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}
