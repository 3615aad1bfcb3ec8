package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/vouchvault/internal/analyst"
	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/embed"
	"github.com/stellarlinkco/vouchvault/internal/evaluation"
	"github.com/stellarlinkco/vouchvault/internal/evidence"
	"github.com/stellarlinkco/vouchvault/internal/manager"
	"github.com/stellarlinkco/vouchvault/internal/memory"
	"github.com/stellarlinkco/vouchvault/internal/tools"
)

const version = "0.3.0"

// StoreOpener connects the evidence store. evidence.Open is the default.
type StoreOpener func(ctx context.Context, cfg *config.Config, text embed.TextEmbedder, image embed.ImageEmbedder) (*evidence.Store, error)

// Options carries the injectable dependencies of every command.
type Options struct {
	LoadConfig   func() (*config.Config, error)
	ModelFactory analyst.Factory
	OpenStore    StoreOpener
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

func (o Options) withDefaults() Options {
	if o.LoadConfig == nil {
		o.LoadConfig = config.LoadConfig
	}
	if o.ModelFactory == nil {
		o.ModelFactory = analyst.DefaultFactory
	}
	if o.OpenStore == nil {
		o.OpenStore = evidence.Open
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(Options{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(opts Options) *cobra.Command {
	opts = opts.withDefaults()
	var invoicePath, bankPath string

	root := &cobra.Command{
		Use:           "vouchvault",
		Short:         "vouchvault - autonomous invoice and civic works audit agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), opts, invoicePath, bankPath)
		},
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetIn(opts.Stdin)
	root.Flags().StringVar(&invoicePath, "invoice_path", "", "Path to the invoice text file")
	root.Flags().StringVar(&bankPath, "bank_csv", "", "Path to the bank statement CSV file")

	root.AddCommand(
		newSetupCmd(opts),
		newIngestCmd(opts),
		newAskCmd(opts),
		newMCPCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// readInput returns fallback when path is empty.
func readInput(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return string(data), nil
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("file not found: %s", path)
	case errors.Is(err, fs.ErrPermission):
		return "", fmt.Errorf("permission denied: %s", path)
	default:
		return "", fmt.Errorf("read %s: %w", path, err)
	}
}

func runAudit(ctx context.Context, opts Options, invoicePath, bankPath string) error {
	invoice, err := readInput(invoicePath, sampleInvoice)
	if err != nil {
		return err
	}
	bank, err := readInput(bankPath, sampleBankStatement)
	if err != nil {
		return err
	}

	cfg, err := opts.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := buildApp(ctx, opts, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	reporter := manager.NewReporter(opts.Stdout)
	mgr := manager.New(a.agent, memory.NewAuditMemory(), evaluation.NewEvaluator(), manager.OptionsFromConfig(cfg)).
		WithReporter(reporter)
	if a.store.Available() {
		mgr.WithRecorder(a.store)
	}

	out, err := mgr.Run(ctx, invoice, bank)
	if err != nil {
		return err
	}
	reporter.Summary(mgr.Evaluator().Summary())
	if out.Err != nil {
		return out.Err
	}
	return nil
}

// app is the wired set of collaborators shared by the commands.
type app struct {
	cfg      *config.Config
	store    *evidence.Store
	registry *tool.Registry
	model    model.Model
	agent    *analyst.Agent
}

func (a *app) Close() {
	if a.agent != nil {
		if err := a.agent.Close(); err != nil {
			log.Printf("[main] close analyst: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		log.Printf("[main] close evidence store: %v", err)
	}
}

// buildApp opens the store, builds the models and registers the tools. When
// requireModel is false a missing API key only disables the model-backed parts.
func buildApp(ctx context.Context, opts Options, cfg *config.Config, requireModel bool) (*app, error) {
	text, image := embed.FromConfig(cfg.Embedding.Text, cfg.Embedding.Image)
	store, err := opts.OpenStore(ctx, cfg, text, image)
	if err != nil {
		return nil, fmt.Errorf("open evidence store: %w", err)
	}
	if store.Available() {
		if err := store.EnsureCollection(ctx, false); err != nil {
			log.Printf("[main] warning: %v", err)
		}
	}
	a := &app{cfg: cfg, store: store}

	m, err := opts.ModelFactory(ctx, cfg, cfg.Agent.Model)
	if err != nil {
		if requireModel {
			_ = store.Close()
			return nil, err
		}
		log.Printf("[main] model unavailable: %v", err)
	}
	a.model = m

	deps := tools.Deps{
		TaxRate:     cfg.Audit.TaxRate,
		Evidence:    store,
		SearchLimit: evidence.DefaultSearchLimit,
		MaxTokens:   cfg.Agent.MaxTokens,
		PhotosDir:   cfg.PhotosDir(),
	}
	if m != nil && analyst.VisionSupported(cfg) {
		deps.VisionModel, deps.VisionModelName = visionModel(ctx, opts, cfg, m)
	}
	reg, err := tools.NewRegistry(deps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.registry = reg

	if m != nil {
		agent, err := analyst.New(m, reg, analyst.Options{
			Workspace:         cfg.Agent.Workspace,
			MaxToolIterations: cfg.Agent.MaxToolIterations,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.agent = agent
	}
	return a, nil
}

func visionModel(ctx context.Context, opts Options, cfg *config.Config, fallback model.Model) (model.Model, string) {
	name := analyst.VisionModelName(cfg)
	if name == cfg.Agent.Model {
		return fallback, name
	}
	vm, err := opts.ModelFactory(ctx, cfg, name)
	if err != nil {
		log.Printf("[main] vision model %s unavailable, using %s: %v", name, cfg.Agent.Model, err)
		return fallback, cfg.Agent.Model
	}
	return vm, name
}
