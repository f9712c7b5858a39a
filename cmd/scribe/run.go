package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/agent/core"
	"github.com/thinhkhuat/scribe/internal/agent/telemetry"
	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/provider"
	"github.com/thinhkhuat/scribe/internal/research"
)

// runCMD executes one research task end to end and prints the report,
// without the server, Postgres or Redis.
func runCMD() *cobra.Command {
	var cfgPath string
	var language, tone, output string
	var maxSections int
	var guidelines []string

	var run = &cobra.Command{
		Use:   "run [query]",
		Short: "Execute a single research run and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if cfg.General.RunTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.General.RunTimeout)
				defer cancel()
			}

			logger := log.New(os.Stderr, "[RUN] ", log.LstdFlags)
			tel := telemetry.NewTelemetry(cfg.Telemetry)
			defer tel.Shutdown()

			registry, err := provider.NewRegistry(cfg.Providers)
			if err != nil {
				return err
			}
			controller := provider.NewController(registry, cfg.Providers, nil)
			controller.SetObserver(tel.ProviderObserver())

			var cache *research.Cache
			if cfg.Research.CacheEnabled {
				if cache, err = research.NewCache(); err != nil {
					return err
				}
			}
			var fetcher *research.Fetcher
			if cfg.Research.FetchEnabled {
				fetcher = research.NewFetcher(cfg.Research)
			}
			researcher := core.NewSectionResearcher(controller, cache, fetcher, cfg.Research, logger)

			orch, err := core.NewOrchestrator(cfg, controller, researcher, tel, logger,
				core.WithEmitter(&core.LogEmitter{Logger: logger}),
				core.WithTranslator(core.NewTranslatorAgent(controller, logger)),
			)
			if err != nil {
				return err
			}

			task := draft.ResearchTask{
				Query:       strings.Join(args, " "),
				Language:    language,
				Tone:        tone,
				MaxSections: maxSections,
				Guidelines:  guidelines,
			}
			d, artifact, err := orch.Run(ctx, task)
			if err != nil {
				return fmt.Errorf("run %s: %w", d.RunID, err)
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(artifact.DocumentText), 0o644); err != nil {
					return err
				}
				logger.Printf("report written to %s", output)
				return nil
			}
			fmt.Println(artifact.DocumentText)
			return nil
		},
	}
	run.Flags().StringVar(&language, "language", "en", "target language")
	run.Flags().StringVar(&tone, "tone", "neutral", "writing tone")
	run.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	run.Flags().IntVar(&maxSections, "max-sections", 0, "maximum section count (0 uses config)")
	run.Flags().StringArrayVar(&guidelines, "guideline", nil, "free-text guideline (repeatable)")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return run
}
