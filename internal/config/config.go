// Package config loads the conmux configuration from a YAML file and
// CONMUX_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Colour modes accepted in the configuration.
const (
	ColourAuto   = "auto"
	ColourAlways = "always"
	ColourNever  = "never"
)

// Config is the full settings surface of the conmux command.
type Config struct {
	// Prefix heads timestamped lines and error-block headers.
	Prefix string `mapstructure:"prefix"`
	// Log is the mirror file path; empty disables logging.
	Log string `mapstructure:"log"`
	// LogStderr mirrors error output into the log as well.
	LogStderr bool `mapstructure:"log_stderr"`
	// StderrHeader opens error blocks with a delimiter and timestamp.
	StderrHeader bool `mapstructure:"stderr_header"`
	// BatchInterval is the error-batching quiet period.
	BatchInterval time.Duration `mapstructure:"batch_interval"`
	// Colour is one of auto, always, never.
	Colour string `mapstructure:"colour"`
	// UserMode hides everything not explicitly marked user-directed.
	UserMode bool `mapstructure:"user_mode"`
	// AnnounceLog prints one line naming the log file on startup.
	AnnounceLog bool `mapstructure:"announce_log"`
	// Highlights maps words to palette colour names, highlighted in all
	// output. An empty name picks the default highlight colour.
	Highlights map[string]string `mapstructure:"highlights"`

	// PTY runs the child command on a pseudo-terminal instead of pipes.
	PTY bool `mapstructure:"pty"`
	// Stats emits periodic status lines about the child process.
	Stats bool `mapstructure:"stats"`
	// StatsInterval is the sampling period for those lines.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	// Listen enables the live follow server on the given host:port.
	Listen string `mapstructure:"listen"`
}

// Load reads configuration from path, or from conmux.yaml in the current
// directory when path is empty. A missing default file is fine; the
// result then carries defaults and environment overrides only.
// Environment variables use the CONMUX_ prefix, for example
// CONMUX_LOG_STDERR=false.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("conmux")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if file := v.ConfigFileUsed(); file != "" {
		hl, err := loadHighlights(file)
		if err != nil {
			return nil, err
		}
		cfg.Highlights = hl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadHighlights reads the highlight table straight from the config file.
// Viper lowercases map keys while merging, and highlight words match
// case-sensitively, so the merged copy would never hit words like FATAL.
func loadHighlights(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw struct {
		Highlights map[string]string `yaml:"highlights"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return raw.Highlights, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("prefix", "conmux")
	v.SetDefault("log", "")
	v.SetDefault("log_stderr", true)
	v.SetDefault("stderr_header", true)
	v.SetDefault("batch_interval", 20*time.Millisecond)
	v.SetDefault("colour", ColourAuto)
	v.SetDefault("user_mode", false)
	v.SetDefault("announce_log", false)
	v.SetDefault("pty", false)
	v.SetDefault("stats", false)
	v.SetDefault("stats_interval", 2*time.Second)
	v.SetDefault("listen", "")
}

// Validate rejects settings no component can act on. Load calls it;
// callers that mutate the config afterwards should call it again.
func (c *Config) Validate() error {
	switch c.Colour {
	case ColourAuto, ColourAlways, ColourNever:
	default:
		return fmt.Errorf("invalid colour mode %q (must be auto, always, or never)", c.Colour)
	}
	if c.BatchInterval <= 0 {
		return fmt.Errorf("batch_interval must be positive, got %s", c.BatchInterval)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive, got %s", c.StatsInterval)
	}
	return nil
}

// ColourEnabled resolves the colour mode against the actual output
// device.
func (c *Config) ColourEnabled() bool {
	switch c.Colour {
	case ColourAlways:
		return true
	case ColourNever:
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
