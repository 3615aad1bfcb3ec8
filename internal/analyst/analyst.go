package analyst

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cexll/agentsdk-go/pkg/agent"
	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/google/uuid"
)

// SystemPrompt frames the model as the audit analyst.
const SystemPrompt = `You are a meticulous financial and civic auditor.
You reconcile invoices against bank statements and verify contractor work against contract clauses.
Use the available tools for every arithmetic, matching, contract or evidence question instead of guessing.
When asked for a verdict, begin your answer with a line of the form "AUDIT STATUS: PASS" or "AUDIT STATUS: FAIL".`

// ErrToolLoop is returned when the model keeps requesting tools past the
// iteration limit.
var ErrToolLoop = errors.New("tool iteration limit reached")

// ToolSource lists the tools offered to the model. *tool.Registry satisfies it.
type ToolSource interface {
	List() []tool.Tool
}

type Options struct {
	System string
	// Workspace is the runtime project root. Defaults to a directory under
	// the system temp dir.
	Workspace         string
	MaxToolIterations int
}

// Agent holds one persistent conversation with the model. The session
// history and the tool loop live in an agentsdk-go runtime.
type Agent struct {
	rt       *api.Runtime
	mu       sync.Mutex
	session  string
	toolRuns atomic.Int64
}

func New(m model.Model, tools ToolSource, opts Options) (*Agent, error) {
	if m == nil {
		return nil, errors.New("analyst: model is nil")
	}
	if opts.System == "" {
		opts.System = SystemPrompt
	}
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = 8
	}
	if opts.Workspace == "" {
		opts.Workspace = filepath.Join(os.TempDir(), "vouchvault-workspace")
	}
	if err := os.MkdirAll(opts.Workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	a := &Agent{session: newSessionID()}
	rulesEnabled := false
	rt, err := api.New(context.Background(), api.Options{
		EntryPoint:   api.EntryPointCLI,
		ProjectRoot:  opts.Workspace,
		Model:        m,
		SystemPrompt: opts.System,
		RulesEnabled: &rulesEnabled,
		// One model call per tool round plus the final answer.
		MaxIterations:       opts.MaxToolIterations + 1,
		Tools:               a.track(tools),
		EnabledBuiltinTools: []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	a.rt = rt
	return a, nil
}

// Analyze sends a fresh prompt into the conversation and returns the final
// text once every requested tool has been answered.
func (a *Agent) Analyze(ctx context.Context, prompt string) (string, error) {
	return a.send(ctx, prompt)
}

// InjectMessage adds feedback to the same conversation, used for retry hints.
func (a *Agent) InjectMessage(ctx context.Context, text string) (string, error) {
	return a.send(ctx, text)
}

// SessionID names the conversation the next message goes to.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// ToolRuns reports how many tool calls were dispatched.
func (a *Agent) ToolRuns() int {
	return int(a.toolRuns.Load())
}

func (a *Agent) Close() error {
	return a.rt.Close()
}

func (a *Agent) send(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.rt.Run(ctx, api.Request{Prompt: text, SessionID: a.session})
	if err != nil {
		// The runtime keeps the unanswered turn, so continue in a clean session.
		a.session = newSessionID()
		log.Printf("[analyst] run failed, starting session %s: %v", a.session, err)
		if errors.Is(err, agent.ErrMaxIterations) {
			return "", ErrToolLoop
		}
		return "", fmt.Errorf("model completion: %w", err)
	}
	if resp == nil || resp.Result == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Result.Output), nil
}

func (a *Agent) track(tools ToolSource) []tool.Tool {
	if tools == nil {
		return nil
	}
	list := tools.List()
	out := make([]tool.Tool, 0, len(list))
	for _, impl := range list {
		if impl == nil {
			continue
		}
		out = append(out, trackedTool{Tool: impl, runs: &a.toolRuns})
	}
	return out
}

// trackedTool counts executions and surfaces failed results as errors so the
// runtime reports them to the model as {"error": ...}.
type trackedTool struct {
	tool.Tool
	runs *atomic.Int64
}

func (t trackedTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	t.runs.Add(1)
	res, err := t.Tool.Execute(ctx, params)
	if err == nil && res != nil && !res.Success && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		log.Printf("[analyst] tool %s failed: %v", t.Name(), err)
	}
	return res, err
}

func newSessionID() string {
	return "audit-" + uuid.NewString()
}

// SchemaMap flattens a tool schema into the JSON object form providers expect.
func SchemaMap(schema *tool.JSONSchema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	payload := map[string]any{"type": "object"}
	if schema.Type != "" {
		payload["type"] = schema.Type
	}
	if len(schema.Properties) > 0 {
		payload["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		payload["required"] = append([]string(nil), schema.Required...)
	}
	return payload
}
