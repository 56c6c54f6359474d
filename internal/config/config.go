// Package config loads uirun settings from uirun.yaml, UIRUN_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/roach88/uirun/internal/engine"
)

// EnvPrefix prefixes environment overrides: timing.timeout is read from
// UIRUN_TIMING_TIMEOUT.
const EnvPrefix = "UIRUN"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "uirun"

// Drivers.
const (
	DriverChrome = "chrome"
	DriverHTTP   = "http"
)

// Config is the complete uirun configuration.
type Config struct {
	// BaseURL resolves relative navigate steps.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`

	// Driver selects the page implementation.
	Driver string `mapstructure:"driver" validate:"oneof=chrome http"`

	// FixturesDir holds fixture files. Empty disables fixtures.
	FixturesDir string `mapstructure:"fixtures_dir"`

	// Workers bounds how many scenarios run at once.
	Workers int `mapstructure:"workers" validate:"gte=1,lte=64"`

	// Rate limits scenario starts per second. Zero means unlimited.
	Rate float64 `mapstructure:"rate" validate:"gte=0"`

	Timing  TimingConfig  `mapstructure:"timing"`
	Browser BrowserConfig `mapstructure:"browser"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

// TimingConfig is the default wait for steps and conditions.
type TimingConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Poll    time.Duration `mapstructure:"poll" validate:"gt=0"`
	MaxPoll time.Duration `mapstructure:"max_poll" validate:"gtefield=Poll"`
}

// BrowserConfig configures the chrome driver.
type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	ExecPath  string `mapstructure:"exec_path"`
	Width     int    `mapstructure:"width" validate:"gte=0"`
	Height    int    `mapstructure:"height" validate:"gte=0"`
	NoSandbox bool   `mapstructure:"no_sandbox"`
	UserAgent string `mapstructure:"user_agent"`
}

// StoreConfig configures run history.
type StoreConfig struct {
	// Path is the SQLite database. Empty disables history.
	Path string `mapstructure:"path"`

	// Keep is how many runs per scenario survive pruning. Zero keeps all.
	Keep int `mapstructure:"keep" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`

	// File, when set, receives logs through a rotating writer instead of
	// stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// EngineTiming converts the timing section.
func (c *Config) EngineTiming() engine.Timing {
	return engine.Timing{Timeout: c.Timing.Timeout, Poll: c.Timing.Poll, MaxPoll: c.Timing.MaxPoll}
}

// SetDefaults registers every key with its default. Keys unknown to viper
// are not read from the environment, so every key must appear here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("driver", DriverChrome)
	v.SetDefault("fixtures_dir", "fixtures")
	v.SetDefault("workers", 1)
	v.SetDefault("rate", 0.0)

	v.SetDefault("timing.timeout", engine.DefaultTimeout)
	v.SetDefault("timing.poll", engine.DefaultPoll)
	v.SetDefault("timing.max_poll", engine.DefaultMaxPoll)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 800)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", "")

	v.SetDefault("store.path", ".uirun/history.db")
	v.SetDefault("store.keep", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// NewViper returns a viper instance with defaults and environment lookup
// configured.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the result. An explicit
// path must exist; without one, a missing ./uirun.yaml is not an error.
//
// Relative fixtures_dir, store.path and log.file values from a file are
// resolved against the file's directory.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultFile)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		cfg.resolvePaths(v, filepath.Dir(used))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths anchors relative paths that came from the config file.
func (c *Config) resolvePaths(v *viper.Viper, dir string) {
	for key, p := range map[string]*string{
		"fixtures_dir": &c.FixturesDir,
		"store.path":   &c.Store.Path,
		"log.file":     &c.Log.File,
	} {
		if *p == "" || filepath.IsAbs(*p) || !v.InConfig(key) {
			continue
		}
		*p = filepath.Join(dir, *p)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return val
}

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs[i] = fmt.Sprintf("%s: %v violates %s", key, fe.Value(), rule)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
