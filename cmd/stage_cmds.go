package main

import (
	"context"

	"github.com/spf13/cobra"
)

// stageCommand builds a command that runs one pipeline stage and flushes
// run metrics afterwards.
func stageCommand(use, short string, pick func(*stages) func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, flush := newRecorder()
			defer flush()

			s := &stages{out: cmd.OutOrStdout(), rec: rec, log: runLogger(use)}
			s.log.Info("stage starting")
			return pick(s)(cmd.Context())
		},
	}
}

var ingestCmd = stageCommand("ingest",
	"Discover raw drops, archive them, stage interim snapshots, and record provenance",
	func(s *stages) func(context.Context) error { return s.ingest })

var cleanCmd = stageCommand("clean",
	"Merge interim snapshots, impute missing targets, and write the cleaned dataset",
	func(s *stages) func(context.Context) error { return s.clean })

var featuresCmd = stageCommand("features",
	"Derive year-over-year change and risk level from the cleaned dataset",
	func(s *stages) func(context.Context) error { return s.features })

var insightsCmd = stageCommand("insights",
	"Summarize growth and high-risk indicators from the feature table",
	func(s *stages) func(context.Context) error { return s.insights })

var exportCmd = stageCommand("export",
	"Write the dashboard-ready subset of the feature table",
	func(s *stages) func(context.Context) error { return s.export })

func init() {
	rootCmd.AddCommand(ingestCmd, cleanCmd, featuresCmd, insightsCmd, exportCmd)
}
