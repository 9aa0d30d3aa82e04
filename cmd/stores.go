package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/config"
	"github.com/sells-group/indicator-pipeline/internal/db"
	"github.com/sells-group/indicator-pipeline/internal/ledger"
	"github.com/sells-group/indicator-pipeline/internal/metrics"
)

// openMirror opens the configured ledger mirror, or returns nil when none
// is configured. The mirror's schema is migrated before it is returned.
func openMirror(ctx context.Context, lc config.LedgerConfig) (ledger.Mirror, error) {
	var m ledger.Mirror
	switch lc.Mirror {
	case "":
		return nil, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(lc.SQLitePath), 0o755); err != nil {
			return nil, eris.Wrapf(err, "ledger: create sqlite dir for %s", lc.SQLitePath)
		}
		s, err := ledger.NewSQLite(lc.SQLitePath)
		if err != nil {
			return nil, err
		}
		m = s
	case "postgres":
		if lc.DatabaseURL == "" {
			return nil, eris.New("ledger: postgres mirror requires ledger.database_url")
		}
		pool, err := db.Connect(ctx, lc.DatabaseURL, lc.Pool)
		if err != nil {
			return nil, err
		}
		m = ledger.NewPostgres(pool, pool.Close)
	default:
		return nil, eris.Errorf("ledger: unknown mirror %q", lc.Mirror)
	}

	if err := m.Migrate(ctx); err != nil {
		_ = m.Close()
		return nil, eris.Wrapf(err, "ledger: migrate %s mirror", lc.Mirror)
	}
	return m, nil
}

// openLedger returns the ledger the ingestion engine appends to: the CSV
// file, teed to the mirror when one is configured. The mirror is synced
// from the file first. A mirror that cannot be
// opened is logged and skipped because the CSV file stays authoritative.
func openLedger(ctx context.Context) (ledger.Ledger, func()) {
	primary := ledger.NewCSV(cfg.Paths.Ledger)

	mirror, err := openMirror(ctx, cfg.Ledger)
	if err != nil {
		zap.L().Warn("ledger mirror unavailable, continuing with csv only",
			zap.String("mirror", cfg.Ledger.Mirror),
			zap.Error(err),
		)
		return primary, func() {}
	}
	if mirror == nil {
		return primary, func() {}
	}

	// Catch the mirror up before teeing so it never misses history written
	// while it was disabled.
	res, err := ledger.Sync(ctx, primary, mirror)
	if err != nil {
		zap.L().Warn("ledger mirror catch-up failed", zap.String("mirror", cfg.Ledger.Mirror), zap.Error(err))
	} else if res.Copied > 0 {
		zap.L().Info("ledger mirror caught up", zap.String("mirror", cfg.Ledger.Mirror), zap.Int64("copied", res.Copied))
	}

	closer := func() {
		if err := mirror.Close(); err != nil {
			zap.L().Warn("close ledger mirror", zap.Error(err))
		}
	}
	return ledger.NewTee(primary, mirror), closer
}

// newRecorder returns a metrics recorder and a flush func that writes the
// textfile export when one is configured.
func newRecorder() (*metrics.Recorder, func()) {
	rec := metrics.New()
	return rec, func() {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			zap.L().Warn("write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}
}

// runLogger tags a command's log lines with a fresh run id.
func runLogger(command string) *zap.Logger {
	return zap.L().With(
		zap.String("command", command),
		zap.String("run_id", uuid.NewString()),
	)
}
