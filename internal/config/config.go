package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aclis/ehrsynth/internal/domain/scenario"
	"github.com/aclis/ehrsynth/internal/platform/blobstore"
	"github.com/aclis/ehrsynth/internal/platform/middleware"
	"github.com/aclis/ehrsynth/internal/platform/sandbox"
)

// DefaultOutput is the artifact written by a bare invocation.
const DefaultOutput = "synthetic_aclis_records.json"

type Config struct {
	Output   string `mapstructure:"output"`
	Format   string `mapstructure:"format"`
	Seed     int64  `mapstructure:"seed"`
	Filler   int    `mapstructure:"filler"`
	Scenario string `mapstructure:"scenario"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	S3Region          string `mapstructure:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3PathStyle       bool   `mapstructure:"s3_path_style"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`

	// MetricsFile, when set, receives the run's metrics in the Prometheus
	// text format for a node_exporter textfile collector.
	MetricsFile string `mapstructure:"metrics_file"`

	Addr           string  `mapstructure:"addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_burst"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"output":        "output",
	"format":        "format",
	"seed":          "seed",
	"filler":        "filler",
	"scenario":      "scenario",
	"env":           "env",
	"log-level":     "log_level",
	"s3-region":     "s3_region",
	"s3-endpoint":   "s3_endpoint",
	"s3-path-style": "s3_path_style",
	"metrics-file":  "metrics_file",
	"addr":          "addr",
	"rate-limit":    "rate_limit",
	"rate-burst":    "rate_burst",
}

// RegisterFlags declares the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", DefaultOutput, "output path or s3://bucket/key")
	fs.String("format", string(sandbox.FormatJSON), "artifact format: json or ndjson")
	fs.Int64("seed", 0, "random seed (0 picks one from the clock)")
	fs.Int("filler", 0, "random filler patients added after the fixed roster")
	fs.String("scenario", "nsclc", "showcase scenario name (empty skips the showcase)")
	fs.String("env", "production", "environment: development or production")
	fs.String("log-level", "info", "log level")
	fs.String("s3-region", "", "S3 region")
	fs.String("s3-endpoint", "", "S3-compatible endpoint URL, e.g. a MinIO server")
	fs.Bool("s3-path-style", false, "use path-style S3 addressing")
	fs.String("metrics-file", "", "write run metrics to this .prom file")
	fs.String("addr", ":8080", "preview server listen address")
	fs.Float64("rate-limit", 5, "preview requests per second per client (0 disables)")
	fs.Int("rate-burst", 10, "preview request burst per client")
}

// Load merges defaults, an optional config file, and flags set on the
// command line, in increasing order of precedence. Environment variables
// are not consulted.
func Load(flags *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("format", string(sandbox.FormatJSON))
	v.SetDefault("seed", 0)
	v.SetDefault("filler", 0)
	v.SetDefault("scenario", "nsclc")
	v.SetDefault("env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("s3_path_style", false)
	v.SetDefault("addr", ":8080")
	v.SetDefault("rate_limit", 5)
	v.SetDefault("rate_burst", 10)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects settings that would fail partway through a run.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("env must be \"development\" or \"production\", got %q", c.Env)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := sandbox.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.Filler < 0 {
		return fmt.Errorf("filler must not be negative, got %d", c.Filler)
	}
	if c.Scenario != "" {
		if _, err := scenario.Lookup(c.Scenario); err != nil {
			return err
		}
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	if blobstore.IsS3URL(c.Output) {
		if _, _, err := blobstore.ParseS3URL(c.Output); err != nil {
			return err
		}
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate_limit and rate_burst must not be negative")
	}
	return nil
}

// Level returns the configured log level. Validate guarantees it parses.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// OutputFormat returns the validated artifact format.
func (c *Config) OutputFormat() sandbox.Format {
	return sandbox.Format(c.Format)
}

// SeedConfig returns the corpus shape for a generate run.
func (c *Config) SeedConfig() sandbox.SeedConfig {
	sc := sandbox.DefaultSeedConfig()
	sc.Seed = c.Seed
	sc.Scenario = c.Scenario
	sc.Filler = c.Filler
	return sc
}

// S3Options returns the object storage settings.
func (c *Config) S3Options() blobstore.S3Options {
	return blobstore.S3Options{
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		PathStyle:       c.S3PathStyle,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	}
}

// RateLimit returns the preview server's per-client limit.
func (c *Config) RateLimit() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RequestsPerSecond: c.RateLimitRPS, Burst: c.RateLimitBurst}
}
