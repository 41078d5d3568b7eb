package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mailrake/mailrake/pkg/browser"
	"github.com/mailrake/mailrake/pkg/config"
	"github.com/mailrake/mailrake/pkg/llm"
	"github.com/mailrake/mailrake/pkg/outlook"
	"github.com/mailrake/mailrake/pkg/pipeline"
	"github.com/mailrake/mailrake/pkg/reliability"
	"github.com/mailrake/mailrake/pkg/steps"
	"github.com/mailrake/mailrake/pkg/store"
	"github.com/mailrake/mailrake/pkg/watcher"
)

// Filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Backends are linked by the embedding build: the open core ships the
// browser automation and completion interfaces only. A build that wants
// the corresponding runner sets these before Execute.
var (
	newLauncher  func(cfg *config.Config, log *zerolog.Logger) (browser.Launcher, error)
	newCompleter func(cfg *config.Config, log *zerolog.Logger) (llm.Completer, error)
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "mailrake",
		Short:   "Harvest email threads from a live webmail UI into a local message store",
		Version: fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := reliability.NewRegistry()
	st, err := store.New(cfg.RawDir, cfg.ProcessedDir, log, registry)
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)
	running := 0

	if cfg.RunnerEnabled(config.RunnerWatcher) {
		if newLauncher == nil {
			return errors.New("watcher runner enabled but this build has no browser automation backend")
		}
		launcher, err := newLauncher(cfg, log)
		if err != nil {
			return fmt.Errorf("browser backend: %w", err)
		}

		people := outlook.NewPersonExtractor(log, registry)
		images := outlook.NewImageExtractor(log, registry)
		extractor := outlook.NewExtractor(people, images, log, registry)
		pages := outlook.NewPageHelper(log, registry, cfg.InboxURL)
		mover := outlook.NewMover(log, registry, cfg.ProcessedFolder)

		w := watcher.New(launcher, pages, extractor, mover, st, log, watcher.Options{
			SessionBudget: cfg.SessionBudget(),
		})
		running++
		go func() { errCh <- w.Run(ctx) }()
		log.Info().Msg("Watcher runner enabled")
	}

	if cfg.RunnerEnabled(config.RunnerPipeline) {
		if newCompleter == nil {
			return errors.New("pipeline runner enabled but this build has no completion backend")
		}
		completer, err := newCompleter(cfg, log)
		if err != nil {
			return fmt.Errorf("completion backend: %w", err)
		}

		engine := steps.NewEngine(log)
		runner := pipeline.NewRunner(st, engine, llm.NewResilient(completer, registry, log), log, pipeline.Options{
			ScanInterval: cfg.PipelineInterval(),
			Workers:      cfg.PipelineWorkers,
		})
		running += 2
		go func() { errCh <- engine.Run(ctx) }()
		go func() { errCh <- runner.Run(ctx) }()
		log.Info().Msg("Pipeline runner enabled")
	}

	if running == 0 {
		return errors.New("no runners enabled")
	}

	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func setupLogger(level string) (*zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
	return &logger, nil
}
