package main

import (
	"context"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/archive"
	"github.com/sells-group/indicator-pipeline/internal/clean"
	"github.com/sells-group/indicator-pipeline/internal/features"
	"github.com/sells-group/indicator-pipeline/internal/ingest"
	"github.com/sells-group/indicator-pipeline/internal/metrics"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/report"
)

// stages holds what every stage command needs: where to print and where
// to count.
type stages struct {
	out io.Writer
	rec *metrics.Recorder
	log *zap.Logger
}

func (s *stages) ingest(ctx context.Context) error {
	l, closeLedger := openLedger(ctx)
	defer closeLedger()

	engine := ingest.NewEngine(ingest.Options{
		DropDir:        cfg.Paths.Drop,
		InterimDir:     cfg.Paths.Interim,
		SeedSample:     cfg.Ingest.SeedSample,
		RecordFailures: cfg.Ingest.RecordFailures,
	}, archive.NewStore(cfg.Paths.Archive), l,
		ingest.WithGovernance(gov),
		ingest.WithMetrics(s.rec),
	)

	rep, err := engine.Run(ctx)
	if rep != nil {
		printIngestReport(s.out, rep)
	}
	if err != nil {
		return err
	}
	s.log.Info("ingest finished",
		zap.Int("discovered", rep.Discovered),
		zap.Int("ingested", len(rep.Ingested)),
		zap.Int("failed", len(rep.Failed)),
	)
	return nil
}

func (s *stages) clean(ctx context.Context) error {
	res, err := clean.Run(ctx, clean.Options{
		InterimDir: cfg.Paths.Interim,
		Output:     cfg.Paths.Cleaned,
	}, s.rec)
	if err != nil {
		return err
	}
	printCleanResult(s.out, res)
	return nil
}

func (s *stages) features(ctx context.Context) error {
	opts := features.Options{
		Cleaned:      cfg.Paths.Cleaned,
		Features:     cfg.Paths.Features,
		FeaturesLong: cfg.Paths.FeaturesLong,
	}
	res, err := features.Run(ctx, opts, s.rec)
	if err != nil {
		return err
	}
	printFeatureResult(s.out, res, opts)
	return nil
}

func (s *stages) insights(ctx context.Context) error {
	return s.report(ctx, filepath.Join(cfg.Paths.Reports, "insights"), report.Insights{})
}

func (s *stages) export(ctx context.Context) error {
	return s.report(ctx, cfg.Paths.Reports, report.Dashboard{})
}

func (s *stages) report(ctx context.Context, dir string, c report.Consumer) error {
	written, err := report.Run(ctx, cfg.Paths.Features, dir, c)
	if err != nil {
		return err
	}
	printWritten(s.out, written)
	return nil
}

// steps returns the end-to-end pipeline in execution order.
func (s *stages) steps() []pipeline.Step {
	return []pipeline.Step{
		{Name: "ingest", Run: s.ingest},
		{Name: "clean", Run: s.clean},
		{Name: "features", Run: s.features},
		{Name: "insights", Run: s.insights},
		{Name: "export", Run: s.export},
	}
}
