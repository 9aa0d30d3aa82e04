package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, clean, features, insights, and export in order",
	Long:  "Runs every stage sequentially and stops at the first failing stage. Outputs of earlier stages are left in place.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, flush := newRecorder()
		defer flush()

		s := &stages{out: cmd.OutOrStdout(), rec: rec, log: runLogger("run")}
		runner := pipeline.NewRunner(s.steps()...)
		s.log.Info("pipeline starting", zap.Strings("steps", runner.Steps()))

		results, err := runner.Run(cmd.Context())
		printStepResults(cmd.OutOrStdout(), results)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
