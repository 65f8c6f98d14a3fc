// Package config loads service configuration from defaults, an optional YAML
// file and IMAGE_SERVICE_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
)

// EnvPrefix is prepended to upper-cased keys with dots replaced by
// underscores, e.g. IMAGE_SERVICE_PROCESSING_MAX_WIDTH.
const EnvPrefix = "IMAGE_SERVICE"

// Admission modes for submitting transforms to a full pool.
const (
	AdmissionBlock  = "block"
	AdmissionReject = "reject"
)

// Config holds all configuration for the service
type Config struct {
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace" yaml:"workspace"`
	Pool       PoolConfig       `mapstructure:"pool" yaml:"pool"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`

	settings map[string]interface{}
}

// ProcessingConfig holds image transform settings
type ProcessingConfig struct {
	MaxWidth         int           `mapstructure:"max_width" yaml:"max_width"`
	MaxHeight        int           `mapstructure:"max_height" yaml:"max_height"`
	Quality          int           `mapstructure:"quality" yaml:"quality"`
	ThumbnailSize    int           `mapstructure:"thumbnail_size" yaml:"thumbnail_size"`
	ThumbnailFormat  string        `mapstructure:"thumbnail_format" yaml:"thumbnail_format"`
	ThumbnailQuality int           `mapstructure:"thumbnail_quality" yaml:"thumbnail_quality"`
	OutputFormat     string        `mapstructure:"output_format" yaml:"output_format"`
	MaxFileSize      int64         `mapstructure:"max_file_size" yaml:"max_file_size"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	EnableEXIF       bool          `mapstructure:"enable_exif" yaml:"enable_exif"`
}

// WorkspaceConfig holds output layout settings
type WorkspaceConfig struct {
	Root          string `mapstructure:"root" yaml:"root"`
	Subpath       string `mapstructure:"subpath" yaml:"subpath"`
	SequenceBase  int    `mapstructure:"sequence_base" yaml:"sequence_base"`
	SequenceWidth int    `mapstructure:"sequence_width" yaml:"sequence_width"`
	Overwrite     bool   `mapstructure:"overwrite" yaml:"overwrite"`
	CopyOriginal  bool   `mapstructure:"copy_original" yaml:"copy_original"`
	SaveManifest  bool   `mapstructure:"save_manifest" yaml:"save_manifest"`
	// SweepSchedule is a cron expression for removing stale temp files in
	// long-running modes. Empty disables the sweep.
	SweepSchedule string        `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
	TempMaxAge    time.Duration `mapstructure:"temp_max_age" yaml:"temp_max_age"`
}

// PoolConfig holds worker pool sizing
type PoolConfig struct {
	Workers   int    `mapstructure:"workers" yaml:"workers"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
	Admission string `mapstructure:"admission" yaml:"admission"`
}

// WatchConfig holds hot folder settings
type WatchConfig struct {
	Debounce      time.Duration `mapstructure:"debounce" yaml:"debounce"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int           `mapstructure:"burst" yaml:"burst"`
}

// MetricsConfig holds the Prometheus endpoint address; empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func setDefaults(v *viper.Viper) {
	// Processing defaults
	v.SetDefault("processing.max_width", 2048)
	v.SetDefault("processing.max_height", 2048)
	v.SetDefault("processing.quality", 85)
	v.SetDefault("processing.thumbnail_size", 200)
	v.SetDefault("processing.thumbnail_format", "jpeg")
	v.SetDefault("processing.thumbnail_quality", 85)
	v.SetDefault("processing.output_format", "webp")
	v.SetDefault("processing.max_file_size", 50*1024*1024)
	v.SetDefault("processing.timeout", "60s")
	v.SetDefault("processing.enable_exif", true)

	// Workspace defaults
	v.SetDefault("workspace.root", "workspace_X")
	v.SetDefault("workspace.subpath", "PlanoraAgent")
	v.SetDefault("workspace.sequence_base", 1)
	v.SetDefault("workspace.sequence_width", 3)
	v.SetDefault("workspace.overwrite", false)
	v.SetDefault("workspace.copy_original", false)
	v.SetDefault("workspace.save_manifest", false)
	v.SetDefault("workspace.sweep_schedule", "@every 10m")
	v.SetDefault("workspace.temp_max_age", "5m")

	// Pool defaults; zero means derive from the CPU count
	v.SetDefault("pool.workers", 0)
	v.SetDefault("pool.queue_size", 0)
	v.SetDefault("pool.admission", AdmissionBlock)

	v.SetDefault("watch.debounce", "500ms")
	v.SetDefault("watch.rate_per_second", 2.0)
	v.SetDefault("watch.burst", 4)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads configuration. configPath may be empty; a named file that does
// not exist is an error. Unknown keys in the file are rejected.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("config file %s not readable", configPath))
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("failed to read config %s", configPath))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidOption, "failed to unmarshal config")
	}
	cfg.settings = v.AllSettings()
	return &cfg, nil
}

// Settings returns the merged key/value view the config was decoded from,
// suitable for dumping.
func (c *Config) Settings() map[string]interface{} {
	if c.settings == nil {
		return map[string]interface{}{}
	}
	return c.settings
}

// Validate checks every field and returns the first violation.
func (c *Config) Validate() error {
	p := c.Processing
	if p.MaxWidth <= 0 || p.MaxHeight <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidBounds, "processing max size %dx%d must be positive", p.MaxWidth, p.MaxHeight)
	}
	if p.ThumbnailSize <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidBounds, "processing.thumbnail_size %d must be positive", p.ThumbnailSize)
	}
	qualities := []struct {
		key   string
		value int
	}{
		{"processing.quality", p.Quality},
		{"processing.thumbnail_quality", p.ThumbnailQuality},
	}
	for _, q := range qualities {
		if err := imaging.ValidateQuality(q.value); err != nil {
			return apperrors.Newf(apperrors.ErrInvalidQuality, "%s %d out of range [%d,%d]", q.key, q.value, imaging.MinQuality, imaging.MaxQuality)
		}
	}
	if _, err := imaging.ParseFormat(p.OutputFormat); err != nil {
		return apperrors.Newf(apperrors.ErrInvalidOption, "processing.output_format %q is not supported", p.OutputFormat)
	}
	if _, err := imaging.ParseFormat(p.ThumbnailFormat); err != nil {
		return apperrors.Newf(apperrors.ErrInvalidOption, "processing.thumbnail_format %q is not supported", p.ThumbnailFormat)
	}
	if p.MaxFileSize <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "processing.max_file_size must be positive")
	}
	if p.Timeout < 0 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "processing.timeout must not be negative")
	}

	w := c.Workspace
	if strings.TrimSpace(w.Root) == "" {
		return apperrors.Newf(apperrors.ErrInvalidOption, "workspace.root is required")
	}
	if w.SequenceBase < 0 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "workspace.sequence_base must not be negative")
	}
	if w.SequenceWidth < 1 || w.SequenceWidth > 12 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "workspace.sequence_width %d out of range [1,12]", w.SequenceWidth)
	}
	if w.SweepSchedule != "" {
		if _, err := cron.ParseStandard(w.SweepSchedule); err != nil {
			return apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("workspace.sweep_schedule %q is invalid", w.SweepSchedule))
		}
	}
	if w.TempMaxAge < 0 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "workspace.temp_max_age must not be negative")
	}

	if c.Pool.Workers < 0 || c.Pool.QueueSize < 0 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "pool sizes must not be negative")
	}
	switch c.Pool.Admission {
	case AdmissionBlock, AdmissionReject:
	default:
		return apperrors.Newf(apperrors.ErrInvalidOption, "pool.admission %q must be %s or %s", c.Pool.Admission, AdmissionBlock, AdmissionReject)
	}

	if c.Watch.Debounce < 0 || c.Watch.RatePerSecond < 0 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "watch settings must not be negative")
	}
	if c.Watch.RatePerSecond > 0 && c.Watch.Burst < 1 {
		return apperrors.Newf(apperrors.ErrInvalidOption, "watch.burst must be at least 1 when a rate is set")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("log.level %q is invalid", c.Log.Level))
	}
	return nil
}
