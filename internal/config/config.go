package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (PICTOPDF_PIPELINE_CAP, ...).
const EnvPrefix = "PICTOPDF"

// DefaultCap is the size threshold shared by assembly and splitting.
const DefaultCap int64 = 12 << 20

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// PipelineConfig controls normalization, assembly and splitting.
type PipelineConfig struct {
	OutputDir  string
	WorkDir    string
	Extension  string
	Cap        int64
	Profile    string // "none"|"medium"|"minimum"
	MaxWidth   int
	MaxHeight  int
	PageWidth  float64
	PageHeight float64
	Margin     float64
	StaleAfter time.Duration
}

// CounterConfig selects where the document sequence counter is persisted.
type CounterConfig struct {
	Backend  string // "file"|"redis"|"memory"
	File     string
	RedisURL string
	RedisKey string
}

// CatalogConfig points at the SQLite catalog of produced documents. Empty disables it.
type CatalogConfig struct {
	Path string
}

// StorageConfig enables publishing finalized documents to S3 when Bucket is set.
type StorageConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// MetricsConfig controls the Prometheus textfile export written after each run.
type MetricsConfig struct {
	TextfilePath string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Pipeline PipelineConfig
	Counter  CounterConfig
	Catalog  CatalogConfig
	Storage  StorageConfig
	Metrics  MetricsConfig
}

// Load reads the optional YAML file at path, then applies PICTOPDF_* environment
// overrides on top of the defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return decode(v), fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := decode(v)
	capBytes, err := ParseByteSize(v.GetString("pipeline.cap"))
	if err != nil {
		return cfg, fmt.Errorf("pipeline.cap: %w", err)
	}
	cfg.Pipeline.Cap = capBytes
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", devDefaultPretty())
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 10)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("axiom.send", false)
	v.SetDefault("axiom.api_key", "")
	v.SetDefault("axiom.org_id", "")
	v.SetDefault("axiom.dataset", "dev")
	v.SetDefault("axiom.flush_interval", "10s")

	v.SetDefault("pipeline.output_dir", "output")
	v.SetDefault("pipeline.work_dir", filepath.Join(os.TempDir(), "pictopdf"))
	v.SetDefault("pipeline.extension", ".pdf")
	v.SetDefault("pipeline.cap", "12MiB")
	v.SetDefault("pipeline.profile", "medium")
	v.SetDefault("pipeline.max_width", 1200)
	v.SetDefault("pipeline.max_height", 1600)
	v.SetDefault("pipeline.page_width", 595.0)
	v.SetDefault("pipeline.page_height", 842.0)
	v.SetDefault("pipeline.margin", 20.0)
	v.SetDefault("pipeline.stale_after", "1h")

	v.SetDefault("counter.backend", "file")
	v.SetDefault("counter.file", "")
	v.SetDefault("counter.redis_url", "redis://localhost:6379")
	v.SetDefault("counter.redis_key", "pictopdf:sequence")

	v.SetDefault("catalog.path", "")

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "documents/")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")

	v.SetDefault("metrics.textfile_path", "")
}

func decode(v *viper.Viper) Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      v.GetString("logging.level"),
		Pretty:     v.GetBool("logging.pretty"),
		File:       v.GetString("logging.file"),
		MaxSizeMB:  v.GetInt("logging.max_size_mb"),
		MaxBackups: v.GetInt("logging.max_backups"),
		MaxAgeDays: v.GetInt("logging.max_age_days"),
		Compress:   v.GetBool("logging.compress"),
	}

	cfg.Axiom = AxiomConfig{
		Send:          v.GetBool("axiom.send"),
		APIKey:        v.GetString("axiom.api_key"),
		OrgID:         v.GetString("axiom.org_id"),
		Dataset:       v.GetString("axiom.dataset") + "_pictopdf",
		FlushInterval: v.GetDuration("axiom.flush_interval"),
	}
	if cfg.Axiom.FlushInterval <= 0 {
		cfg.Axiom.FlushInterval = 10 * time.Second
	}

	cfg.Pipeline = PipelineConfig{
		OutputDir:  v.GetString("pipeline.output_dir"),
		WorkDir:    v.GetString("pipeline.work_dir"),
		Extension:  v.GetString("pipeline.extension"),
		Cap:        DefaultCap,
		Profile:    strings.ToLower(v.GetString("pipeline.profile")),
		MaxWidth:   v.GetInt("pipeline.max_width"),
		MaxHeight:  v.GetInt("pipeline.max_height"),
		PageWidth:  v.GetFloat64("pipeline.page_width"),
		PageHeight: v.GetFloat64("pipeline.page_height"),
		Margin:     v.GetFloat64("pipeline.margin"),
		StaleAfter: v.GetDuration("pipeline.stale_after"),
	}
	if !strings.HasPrefix(cfg.Pipeline.Extension, ".") {
		cfg.Pipeline.Extension = "." + cfg.Pipeline.Extension
	}

	cfg.Counter = CounterConfig{
		Backend:  strings.ToLower(v.GetString("counter.backend")),
		File:     v.GetString("counter.file"),
		RedisURL: v.GetString("counter.redis_url"),
		RedisKey: v.GetString("counter.redis_key"),
	}
	if cfg.Counter.File == "" {
		cfg.Counter.File = filepath.Join(cfg.Pipeline.OutputDir, ".sequence.json")
	}

	cfg.Catalog = CatalogConfig{Path: v.GetString("catalog.path")}

	cfg.Storage = StorageConfig{
		Bucket:          v.GetString("storage.bucket"),
		Prefix:          v.GetString("storage.prefix"),
		Region:          v.GetString("storage.region"),
		Endpoint:        v.GetString("storage.endpoint"),
		AccessKeyID:     v.GetString("storage.access_key_id"),
		SecretAccessKey: v.GetString("storage.secret_access_key"),
	}

	cfg.Metrics = MetricsConfig{TextfilePath: v.GetString("metrics.textfile_path")}
	return cfg
}

func devDefaultPretty() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "dev" || env == "development" || env == "local"
}
