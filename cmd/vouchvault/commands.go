package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/embed"
	"github.com/stellarlinkco/vouchvault/internal/evidence"
	"github.com/stellarlinkco/vouchvault/internal/ingest"
	"github.com/stellarlinkco/vouchvault/internal/mcpserver"
)

func newSetupCmd(opts Options) *cobra.Command {
	var keep, writeConfig bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the evidence collection (drops an existing one unless --keep)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if writeConfig {
				if err := config.SaveConfig(cfg); err != nil {
					return err
				}
				fmt.Fprintf(opts.Stdout, "Config written: %s\n", config.ConfigPath())
			}
			text, image := embed.FromConfig(cfg.Embedding.Text, cfg.Embedding.Image)
			store, err := opts.OpenStore(cmd.Context(), cfg, text, image)
			if err != nil {
				return fmt.Errorf("open evidence store: %w", err)
			}
			defer store.Close()

			if err := store.EnsureCollection(cmd.Context(), !keep); err != nil {
				return err
			}
			fmt.Fprintf(opts.Stdout, "Collection %q ready (%s=%d, %s=%d, cosine)\n",
				cfg.VectorStore.Collection,
				evidence.VectorContractText, cfg.Embedding.Text.Dimension,
				evidence.VectorSiteVisuals, cfg.Embedding.Image.Dimension)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep an existing collection")
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Save the effective config to the config path")
	return cmd
}

func newIngestCmd(opts Options) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index contract PDFs and site photos from the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if schedule == "" {
				schedule = cfg.Ingest.Schedule
			}
			ctx := cmd.Context()
			text, image := embed.FromConfig(cfg.Embedding.Text, cfg.Embedding.Image)
			store, err := opts.OpenStore(ctx, cfg, text, image)
			if err != nil {
				return fmt.Errorf("open evidence store: %w", err)
			}
			defer store.Close()
			if !store.Available() {
				return fmt.Errorf("vector store unavailable; start it or set vectorStore.backend to sqlite")
			}
			if err := store.EnsureCollection(ctx, false); err != nil {
				return err
			}

			svc := ingest.NewService(store, cfg)
			rep := svc.Run(ctx)
			fmt.Fprintf(opts.Stdout, "Ingestion complete: %s\n", rep)
			for _, e := range rep.Errors {
				fmt.Fprintf(opts.Stderr, "  failed: %s\n", e)
			}
			if schedule == "" {
				return nil
			}

			sched, err := ingest.NewScheduler(svc, schedule)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.Stdout, "Re-ingesting on schedule %q (Ctrl+C to stop)\n", schedule)
			return sched.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression for repeated ingestion")
	return cmd
}

func newAskCmd(opts Options) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask the analyst a question, once with -m or in a REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, opts, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if message != "" {
				reply, err := a.agent.Analyze(ctx, message)
				if err != nil {
					return fmt.Errorf("analyst error: %w", err)
				}
				fmt.Fprintln(opts.Stdout, reply)
				return nil
			}
			return repl(ctx, opts, a)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Single question to send")
	return cmd
}

func repl(ctx context.Context, opts Options, a *app) error {
	fmt.Fprintln(opts.Stdout, "vouchvault analyst (type 'exit' to quit)")
	scanner := bufio.NewScanner(opts.Stdin)
	for {
		fmt.Fprint(opts.Stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		reply, err := a.agent.Analyze(ctx, input)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Fprintln(opts.Stdout, reply)
	}
	return scanner.Err()
}

func newMCPCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the audit tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, opts, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcpserver.New(a.registry, version)
			if err != nil {
				return err
			}
			return mcpserver.Serve(ctx, srv, opts.Stdin, opts.Stdout)
		},
	}
}

func newStatusCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vouchvault configuration and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Stdout
			cfg, err := opts.LoadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config: error (%v)\n", err)
				return nil
			}

			fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
			fmt.Fprintf(out, "Provider: %s\n", providerDisplay(cfg.Provider.Type))
			fmt.Fprintf(out, "Model: %s\n", cfg.Agent.Model)
			fmt.Fprintf(out, "Vision model: %s\n", cfg.Agent.VisionModel)
			fmt.Fprintf(out, "API Key: %s\n", maskKey(cfg.Provider.APIKey))
			fmt.Fprintf(out, "Audit: maxAttempts=%d taxRate=%.2f cyclePause=%s\n",
				cfg.Audit.MaxAttempts, cfg.Audit.TaxRate, cfg.CyclePauseDuration())
			fmt.Fprintf(out, "Data dir: %s\n", cfg.Ingest.DataDir)

			text, image := embed.FromConfig(cfg.Embedding.Text, cfg.Embedding.Image)
			store, err := opts.OpenStore(cmd.Context(), cfg, text, image)
			if err != nil {
				fmt.Fprintf(out, "Vector store: error (%v)\n", err)
				return nil
			}
			defer store.Close()
			state := "unavailable"
			if store.Available() {
				state = "connected"
			}
			fmt.Fprintf(out, "Vector store: %s %s (collection %s)\n", cfg.VectorStore.Backend, state, cfg.VectorStore.Collection)
			return nil
		},
	}
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}
