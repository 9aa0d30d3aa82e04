package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/indicator-pipeline/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Governance GovernanceConfig `yaml:"governance" mapstructure:"governance"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates every filesystem artifact the pipeline reads or writes.
// Empty entries are derived from Root.
type PathsConfig struct {
	Root         string `yaml:"root" mapstructure:"root"`
	Drop         string `yaml:"drop" mapstructure:"drop"`
	Archive      string `yaml:"archive" mapstructure:"archive"`
	Interim      string `yaml:"interim" mapstructure:"interim"`
	Ledger       string `yaml:"ledger" mapstructure:"ledger"`
	Cleaned      string `yaml:"cleaned" mapstructure:"cleaned"`
	Features     string `yaml:"features" mapstructure:"features"`
	FeaturesLong string `yaml:"features_long" mapstructure:"features_long"`
	Reports      string `yaml:"reports" mapstructure:"reports"`
}

// IngestConfig configures the ingestion engine.
type IngestConfig struct {
	SeedSample     bool `yaml:"seed_sample" mapstructure:"seed_sample"`
	RecordFailures bool `yaml:"record_failures" mapstructure:"record_failures"`
}

// LedgerConfig selects an optional ledger mirror. The CSV file is always written.
type LedgerConfig struct {
	Mirror      string        `yaml:"mirror" mapstructure:"mirror"` // "", "sqlite", "postgres"
	SQLitePath  string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// MetricsConfig configures run metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// GovernanceConfig points at the governance YAML document.
type GovernanceConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INDICATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.root", "data")
	v.SetDefault("paths.drop", "")
	v.SetDefault("paths.archive", "")
	v.SetDefault("paths.interim", "")
	v.SetDefault("paths.ledger", "")
	v.SetDefault("paths.cleaned", "")
	v.SetDefault("paths.features", "")
	v.SetDefault("paths.features_long", "")
	v.SetDefault("paths.reports", "outputs")
	v.SetDefault("ingest.seed_sample", true)
	v.SetDefault("ingest.record_failures", true)
	v.SetDefault("ledger.mirror", "")
	v.SetDefault("ledger.sqlite_path", "")
	v.SetDefault("ledger.database_url", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("governance.path", "governance.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "logs/ingestion.log")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.Paths = cfg.Paths.Resolve()
	if cfg.Ledger.SQLitePath == "" {
		cfg.Ledger.SQLitePath = filepath.Join(filepath.Dir(cfg.Paths.Ledger), "provenance.db")
	}

	switch cfg.Ledger.Mirror {
	case "", "sqlite", "postgres":
	default:
		return nil, eris.Errorf("config: unknown ledger mirror %q (valid: sqlite, postgres)", cfg.Ledger.Mirror)
	}

	return &cfg, nil
}

// Resolve fills unset paths from Root using the standard data layout.
func (p PathsConfig) Resolve() PathsConfig {
	if p.Root == "" {
		p.Root = "data"
	}
	def := func(v *string, parts ...string) {
		if *v == "" {
			*v = filepath.Join(append([]string{p.Root}, parts...)...)
		}
	}
	def(&p.Drop, "raw", "placeholders")
	def(&p.Archive, "raw", "archive")
	def(&p.Interim, "interim")
	def(&p.Ledger, "provenance", "provenance.csv")
	def(&p.Cleaned, "processed", "cleaned.csv")
	def(&p.Features, "processed", "fe", "features.csv")
	def(&p.FeaturesLong, "processed", "fe", "features_long.csv")
	if p.Reports == "" {
		p.Reports = "outputs"
	}
	return p
}

// InitLogger initializes the global zap logger. When cfg.File is set, log
// lines go to stderr and are appended to the file.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return eris.Wrapf(err, "config: create log dir for %s", cfg.File)
		}
		zapCfg.OutputPaths = []string{"stderr", cfg.File}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
