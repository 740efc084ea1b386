// Package config loads mislaka settings from defaults, an optional YAML file
// and MISLAKA_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mislaka/internal/format"
	"mislaka/internal/report"
	"mislaka/internal/storage"
)

const envPrefix = "MISLAKA"

type Config struct {
	Locale         string        `mapstructure:"locale"`
	CurrencySymbol string        `mapstructure:"currency_symbol"`
	DictionaryFile string        `mapstructure:"dictionary_file"`
	Summary        SummaryConfig `mapstructure:"summary"`
	Import         ImportConfig  `mapstructure:"import"`
	Storage        StorageConfig `mapstructure:"storage"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
	Server         ServerConfig  `mapstructure:"server"`
	Log            LogConfig     `mapstructure:"log"`
}

type SummaryConfig struct {
	MaxValues int    `mapstructure:"max_values"`
	Delimiter string `mapstructure:"delimiter"`
	Ellipsis  string `mapstructure:"ellipsis"`
}

type ImportConfig struct {
	// Workers bounds concurrent documents; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
}

// StorageConfig selects the client store. An empty Kind disables
// persistence.
type StorageConfig struct {
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend    string        `mapstructure:"backend"`
	Tags       string        `mapstructure:"tags"` // comma-separated k:v
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Locale:         format.DefaultLocale,
		CurrencySymbol: format.DefaultCurrencySymbol,
		Summary: SummaryConfig{
			MaxValues: report.DefaultMaxValues,
			Delimiter: report.DefaultDelimiter,
			Ellipsis:  report.DefaultEllipsis,
		},
		Metrics: MetricsConfig{Backend: "none", FlushEvery: 60 * time.Second},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  256 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// keys lists every setting so each can be overridden from the environment
// even when no file mentions it.
var keys = []string{
	"locale",
	"currency_symbol",
	"dictionary_file",
	"summary.max_values",
	"summary.delimiter",
	"summary.ellipsis",
	"import.workers",
	"storage.kind",
	"storage.dsn",
	"metrics.backend",
	"metrics.tags",
	"metrics.flush_every",
	"server.addr",
	"server.shutdown_timeout",
	"server.max_upload_bytes",
	"log.level",
}

// Load reads path (optional; empty means defaults and environment only).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("locale", d.Locale)
	v.SetDefault("currency_symbol", d.CurrencySymbol)
	v.SetDefault("dictionary_file", d.DictionaryFile)
	v.SetDefault("summary.max_values", d.Summary.MaxValues)
	v.SetDefault("summary.delimiter", d.Summary.Delimiter)
	v.SetDefault("summary.ellipsis", d.Summary.Ellipsis)
	v.SetDefault("import.workers", d.Import.Workers)
	v.SetDefault("storage.kind", d.Storage.Kind)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.tags", d.Metrics.Tags)
	v.SetDefault("metrics.flush_every", d.Metrics.FlushEvery)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("log.level", d.Log.Level)
}

// Validate checks cross-field rules that defaults cannot guarantee.
func (c *Config) Validate() error {
	var errs []error
	if c.Summary.MaxValues <= 0 {
		errs = append(errs, fmt.Errorf("summary.max_values must be positive, got %d", c.Summary.MaxValues))
	}
	if c.Import.Workers < 0 {
		errs = append(errs, fmt.Errorf("import.workers must not be negative, got %d", c.Import.Workers))
	}
	if c.Storage.Kind != "" && c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("storage.dsn is required when storage.kind=%s", c.Storage.Kind))
	}
	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Errorf("metrics.backend must be none or datadog, got %q", c.Metrics.Backend))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// SummaryOptions maps the summary block onto report options.
func (c *Config) SummaryOptions() report.SummaryOptions {
	return report.SummaryOptions{
		MaxValues: c.Summary.MaxValues,
		Delimiter: c.Summary.Delimiter,
		Ellipsis:  c.Summary.Ellipsis,
	}
}

func (c *Config) FormatOptions() format.Options {
	return format.Options{Locale: c.Locale, CurrencySymbol: c.CurrencySymbol}
}

func (c *Config) StorageConfig() storage.Config {
	return storage.Config{Kind: c.Storage.Kind, DSN: c.Storage.DSN}
}
