package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/config"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
)

var (
	cfg *config.Config
	gov *config.Governance
)

var rootCmd = &cobra.Command{
	Use:           "indicator-pipeline",
	Short:         "Lineage-tracked ingestion and feature pipeline for SDG indicators",
	Long:          "Ingests raw indicator drops into an append-only provenance ledger, cleans and imputes them, and derives year-over-year and risk features.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return pipeline.NewError(pipeline.KindConfiguration, "load config", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return pipeline.NewError(pipeline.KindConfiguration, "init logger", err)
		}

		g, err := config.LoadGovernance(cfg.Governance.Path)
		if err != nil {
			return err
		}
		gov = g
		zap.L().Debug("governance loaded",
			zap.String("source", gov.Source()),
			zap.Strings("countries", gov.Countries()),
			zap.Strings("indicators", gov.Indicators()),
		)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(pipeline.ExitCode(err))
	}
}

func printError(w io.Writer, err error) {
	kind := pipeline.KindOf(err)
	if kind == pipeline.KindUnknown {
		red.Fprintf(w, "error: %v\n", err) //nolint:errcheck
		return
	}
	red.Fprintf(w, "error [%s]: %v\n", kind, err) //nolint:errcheck
	if kind == pipeline.KindConfiguration {
		fmt.Fprintln(w, "Check config.yaml, INDICATOR_* environment variables, and the governance file.")
	}
}
