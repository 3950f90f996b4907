package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/a-schmidtlab/caption-translator/internal/config"
	"github.com/a-schmidtlab/caption-translator/internal/service"
	"github.com/a-schmidtlab/caption-translator/pkg/log"
)

var (
	flagOutput string
	flagSample int
	flagDryRun bool
	flagWatch  bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caption-translator [input-file]",
		Short: "Translate tabular caption datasets between languages",
		Long: `caption-translator reads an xlsx or csv dataset, translates the
text columns of the configured source language and writes a copy with
the translated columns filled in. Runs are deduplicated, batched,
rate-limited and checkpointed, so an interrupted run resumes where it
left off.

Configuration comes from environment variables (a .env file in the
working directory is honored).`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file path (default: derived from input)")
	cmd.Flags().IntVar(&flagSample, "sample", 0, "translate at most N texts, for a quick quality check")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "build the work set and report estimates without calling the backend")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "watch WATCH_DIRS for new datasets instead of translating one file")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	log.InitLogger(log.ParseLevel(cfg.LogLevel))

	runner, err := service.NewRunner(*cfg)
	if err != nil {
		return err
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flagWatch {
		if len(args) > 0 {
			return fmt.Errorf("--watch takes no input file argument")
		}
		err := service.NewWatcher(*cfg, runner).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if len(args) == 0 {
		return fmt.Errorf("an input file is required (or use --watch)")
	}

	summary, err := runner.Run(ctx, args[0], service.RunOptions{
		OutputPath: flagOutput,
		SampleSize: flagSample,
		DryRun:     flagDryRun,
	})
	if err != nil {
		return err
	}

	fmt.Println(service.FormatSummary(summary))
	return nil
}
