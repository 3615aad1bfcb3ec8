package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/tools"
)

type stubModel struct {
	replies []model.Message
	err     error
	calls   int
}

func (s *stubModel) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &model.Response{Message: model.Message{Role: "assistant", Content: "AUDIT STATUS: PASS"}}, nil
	}
	msg := s.replies[0]
	s.replies = s.replies[1:]
	return &model.Response{Message: msg}, nil
}

func (s *stubModel) CompleteStream(ctx context.Context, req model.Request, cb model.StreamHandler) error {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return err
	}
	return cb(model.StreamResult{Final: true, Response: resp})
}

func testOptions(t *testing.T, m model.Model) (Options, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "sk-test-key-123456"
	cfg.Audit.CyclePause = "0s"
	cfg.VectorStore.Backend = "sqlite"
	cfg.VectorStore.DBPath = filepath.Join(t.TempDir(), "evidence.db")
	cfg.Ingest.DataDir = t.TempDir()
	cfg.Agent.Workspace = t.TempDir()
	t.Setenv("VOUCHVAULT_CONFIG", filepath.Join(t.TempDir(), "config.json"))

	var stdout, stderr bytes.Buffer
	opts := Options{
		LoadConfig: func() (*config.Config, error) { return cfg, nil },
		ModelFactory: func(context.Context, *config.Config, string) (model.Model, error) {
			if m == nil {
				return nil, errors.New("api key not set")
			}
			return m, nil
		},
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	return opts, &stdout, &stderr
}

func execute(opts Options, args ...string) error {
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestReadInput(t *testing.T) {
	got, err := readInput("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	path := filepath.Join(t.TempDir(), "inv.txt")
	require.NoError(t, os.WriteFile(path, []byte("INV-1"), 0644))
	got, err = readInput(path, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", got)

	missing := filepath.Join(t.TempDir(), "nope.txt")
	_, err = readInput(missing, "")
	assert.EqualError(t, err, "file not found: "+missing)
}

func TestReadInputPermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file modes are not enforced here")
	}
	path := filepath.Join(t.TempDir(), "locked.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0000))
	_, err := readInput(path, "")
	assert.EqualError(t, err, "permission denied: "+path)
}

func TestAuditWithSimulatedData(t *testing.T) {
	m := &stubModel{replies: []model.Message{
		{Role: "assistant", Content: "AUDIT STATUS: FAIL\nDISCREPANCY: 30.00"},
		{Role: "assistant", Content: "Noted."},
		{Role: "assistant", Content: "AUDIT STATUS: PASS\n30.00 is TDS."},
	}}
	opts, stdout, _ := testOptions(t, m)

	require.NoError(t, execute(opts))
	out := stdout.String()
	assert.Contains(t, out, "Audit cycle #1")
	assert.Contains(t, out, "Audit cycle #2")
	assert.Contains(t, out, "Audit verified")
	assert.Contains(t, out, "[Session summary]")
	assert.Contains(t, out, "total_audits: 1")
	assert.Contains(t, out, "pass_rate: 100.0%")
	assert.Equal(t, 3, m.calls)
}

func TestAuditMissingFile(t *testing.T) {
	opts, _, _ := testOptions(t, &stubModel{})
	missing := filepath.Join(t.TempDir(), "invoice.txt")
	err := execute(opts, "--invoice_path", missing)
	assert.EqualError(t, err, "file not found: "+missing)
}

func TestAuditFromFiles(t *testing.T) {
	dir := t.TempDir()
	inv := filepath.Join(dir, "inv.txt")
	bank := filepath.Join(dir, "bank.csv")
	require.NoError(t, os.WriteFile(inv, []byte("INV-42\nVendor: Acme\nTotal: 100.00"), 0644))
	require.NoError(t, os.WriteFile(bank, []byte("DATE,DESC,AMOUNT\n2025-01-01,Acme,-100.00\n"), 0644))

	opts, stdout, _ := testOptions(t, &stubModel{})
	require.NoError(t, execute(opts, "--invoice_path", inv, "--bank_csv", bank))
	assert.Contains(t, stdout.String(), "INV-42")
}

func TestAuditModelError(t *testing.T) {
	opts, _, _ := testOptions(t, &stubModel{err: errors.New("overloaded")})
	err := execute(opts)
	assert.ErrorContains(t, err, "overloaded")
}

func TestAuditRequiresModel(t *testing.T) {
	opts, _, _ := testOptions(t, nil)
	err := execute(opts)
	assert.ErrorContains(t, err, "api key")
}

func TestAskSingleMessage(t *testing.T) {
	m := &stubModel{replies: []model.Message{
		{Role: "assistant", ToolCalls: []model.ToolCall{{ID: "t1", Name: tools.TaxComplianceToolName, Arguments: map[string]any{"subtotal": 100.0, "tax_amount": 18.0}}}},
		{Role: "assistant", Content: "Tax is compliant."},
	}}
	opts, stdout, _ := testOptions(t, m)
	require.NoError(t, execute(opts, "ask", "-m", "is 18 on 100 compliant?"))
	assert.Equal(t, "Tax is compliant.\n", stdout.String())
}

func TestAskREPL(t *testing.T) {
	opts, stdout, _ := testOptions(t, &stubModel{})
	opts.Stdin = strings.NewReader("hello\n\nexit\nignored\n")
	require.NoError(t, execute(opts, "ask"))
	assert.Equal(t, 1, strings.Count(stdout.String(), "AUDIT STATUS: PASS"))
}

func TestSetupAndStatus(t *testing.T) {
	opts, stdout, _ := testOptions(t, nil)
	require.NoError(t, execute(opts, "setup", "--write-config"))
	assert.Contains(t, stdout.String(), `Collection "civic_audit_evidence" ready (contract_text=384, site_visuals=512, cosine)`)
	assert.Contains(t, stdout.String(), "Config written:")

	stdout.Reset()
	require.NoError(t, execute(opts, "status"))
	out := stdout.String()
	assert.Contains(t, out, "Provider: anthropic (default)")
	assert.Contains(t, out, "API Key: sk-t...3456")
	assert.Contains(t, out, "Vector store: sqlite connected")
}

func TestIngestEmptyDataDir(t *testing.T) {
	opts, stdout, _ := testOptions(t, nil)
	require.NoError(t, execute(opts, "ingest"))
	assert.Contains(t, stdout.String(), "Ingestion complete: contracts=0 chunks=0 photos=0 skipped=0 failed=0")
}

func TestIngestBadSchedule(t *testing.T) {
	opts, _, _ := testOptions(t, nil)
	err := execute(opts, "ingest", "--schedule", "sometimes")
	assert.ErrorContains(t, err, "parse schedule")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "not set", maskKey(""))
	assert.Equal(t, "set", maskKey("short"))
	assert.Equal(t, "sk-a...wxyz", maskKey("sk-abcdefwxyz"))
}

func TestBuildAppWithoutModel(t *testing.T) {
	opts, _, _ := testOptions(t, nil)
	opts = opts.withDefaults()
	cfg, _ := opts.LoadConfig()
	a, err := buildApp(context.Background(), opts, cfg, false)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.agent)
	names := map[string]bool{}
	for _, tl := range a.registry.List() {
		names[tl.Name()] = true
	}
	assert.True(t, names[tools.KnowledgeBaseToolName])
	assert.False(t, names[tools.VisualEvidenceToolName])
}
