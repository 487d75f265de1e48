package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/fwslurp/internal/catalog"
	slurphttp "github.com/ligustah/fwslurp/internal/http"
	"github.com/ligustah/fwslurp/internal/progress"
	"github.com/ligustah/fwslurp/internal/report"
)

// MaxBlockSize bounds the read buffer allocated per transfer attempt.
const MaxBlockSize = 16 << 20

// Retry strategies.
const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Config defines configuration for the fwslurp CLI.
type Config struct {
	Catalog     string        `yaml:"catalog"`
	Destination string        `yaml:"destination"`
	Report      ReportConfig  `yaml:"report"`
	History     string        `yaml:"history"`
	Progress    bool          `yaml:"progress"`
	Sections    []string      `yaml:"sections"`
	EntryDelay  time.Duration `yaml:"entry_delay"`
	BlockSize   int64         `yaml:"block_size"`
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	Log         LogConfig     `yaml:"log"`
	Retry       RetryConfig   `yaml:"retry"`
}

// ReportConfig selects where and how the run report is written.
type ReportConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	Strategy string        `yaml:"strategy"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Progress:   true,
		EntryDelay: 5 * time.Second,
		BlockSize:  1024,
		Timeout:    30 * time.Second,
		UserAgent:  "fwslurp",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    5 * time.Second,
			Strategy: StrategyFixed,
			MaxDelay: time.Minute,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	Catalog     string          `yaml:"catalog"`
	Destination string          `yaml:"destination"`
	Report      ReportConfig    `yaml:"report"`
	History     string          `yaml:"history"`
	Progress    *bool           `yaml:"progress"`
	Sections    []string        `yaml:"sections"`
	EntryDelay  string          `yaml:"entry_delay"`
	BlockSize   string          `yaml:"block_size"`
	MaxFailures *int            `yaml:"max_failures"`
	Timeout     string          `yaml:"timeout"`
	UserAgent   string          `yaml:"user_agent"`
	Log         LogConfig       `yaml:"log"`
	Retry       yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Delay    string `yaml:"delay"`
	Strategy string `yaml:"strategy"`
	MaxDelay string `yaml:"max_delay"`
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	cfg = cfg.Merge(Config{
		Catalog:     yc.Catalog,
		Destination: yc.Destination,
		Report:      yc.Report,
		History:     yc.History,
		Sections:    yc.Sections,
		UserAgent:   yc.UserAgent,
		Log:         yc.Log,
		Retry: RetryConfig{
			Attempts: yc.Retry.Attempts,
			Strategy: yc.Retry.Strategy,
		},
	})

	if yc.Progress != nil {
		cfg.Progress = *yc.Progress
	}
	if yc.MaxFailures != nil {
		cfg.MaxFailures = *yc.MaxFailures
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"entry_delay", yc.EntryDelay, &cfg.EntryDelay},
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"retry.delay", yc.Retry.Delay, &cfg.Retry.Delay},
		{"retry.max_delay", yc.Retry.MaxDelay, &cfg.Retry.MaxDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if yc.BlockSize != "" {
		size, err := progress.ParseBytes(yc.BlockSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse block_size: %w", err)
		}
		cfg.BlockSize = size
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the FWSLURP_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"FWSLURP_CATALOG":        &c.Catalog,
		"FWSLURP_DESTINATION":    &c.Destination,
		"FWSLURP_REPORT":         &c.Report.Path,
		"FWSLURP_REPORT_FORMAT":  &c.Report.Format,
		"FWSLURP_HISTORY":        &c.History,
		"FWSLURP_USER_AGENT":     &c.UserAgent,
		"FWSLURP_LOG_LEVEL":      &c.Log.Level,
		"FWSLURP_LOG_FORMAT":     &c.Log.Format,
		"FWSLURP_RETRY_STRATEGY": &c.Retry.Strategy,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("FWSLURP_SECTIONS"); v != "" {
		c.Sections = splitList(v)
	}
	if v := os.Getenv("FWSLURP_PROGRESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse FWSLURP_PROGRESS: %w", err)
		}
		c.Progress = b
	}

	ints := map[string]*int{
		"FWSLURP_MAX_FAILURES":   &c.MaxFailures,
		"FWSLURP_RETRY_ATTEMPTS": &c.Retry.Attempts,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"FWSLURP_ENTRY_DELAY":     &c.EntryDelay,
		"FWSLURP_TIMEOUT":         &c.Timeout,
		"FWSLURP_RETRY_DELAY":     &c.Retry.Delay,
		"FWSLURP_RETRY_MAX_DELAY": &c.Retry.MaxDelay,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("FWSLURP_BLOCK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse FWSLURP_BLOCK_SIZE: %w", err)
		}
		c.BlockSize = size
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that every set value is usable. Which fields are
// required depends on the command and is checked there.
func (c *Config) Validate() error {
	var errs []error

	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("config: retry.attempts must be at least 1"))
	}
	if c.Retry.Delay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("config: retry delays must not be negative"))
	}
	switch c.Retry.Strategy {
	case StrategyFixed, StrategyExponential:
	default:
		errs = append(errs, fmt.Errorf("config: unknown retry.strategy %q", c.Retry.Strategy))
	}
	if c.EntryDelay < 0 {
		errs = append(errs, errors.New("config: entry_delay must not be negative"))
	}
	if c.BlockSize <= 0 || c.BlockSize > MaxBlockSize {
		errs = append(errs, fmt.Errorf("config: block_size must be between 1 and %s", progress.FormatBytes(MaxBlockSize)))
	}
	if c.MaxFailures < 0 {
		errs = append(errs, errors.New("config: max_failures must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("config: timeout must not be negative"))
	}
	if _, err := c.SectionList(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if _, err := c.ReportFormat(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Catalog != "" {
		c.Catalog = override.Catalog
	}
	if override.Destination != "" {
		c.Destination = override.Destination
	}
	if override.Report.Path != "" {
		c.Report.Path = override.Report.Path
	}
	if override.Report.Format != "" {
		c.Report.Format = override.Report.Format
	}
	if override.History != "" {
		c.History = override.History
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if len(override.Sections) > 0 {
		c.Sections = override.Sections
	}
	if override.EntryDelay != 0 {
		c.EntryDelay = override.EntryDelay
	}
	if override.BlockSize != 0 {
		c.BlockSize = override.BlockSize
	}
	if override.MaxFailures != 0 {
		c.MaxFailures = override.MaxFailures
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	if override.Retry.Strategy != "" {
		c.Retry.Strategy = override.Retry.Strategy
	}
	if override.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = override.Retry.MaxDelay
	}
	return c
}

// SectionList parses the configured sections. An empty list selects every
// section.
func (c *Config) SectionList() ([]catalog.Section, error) {
	var sections []catalog.Section
	for _, name := range c.Sections {
		s, err := catalog.ParseSection(name)
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, nil
}

// ReportFormat returns the configured report format, falling back to the
// report path's extension.
func (c *Config) ReportFormat() (report.Format, error) {
	if c.Report.Format != "" {
		return report.ParseFormat(c.Report.Format)
	}
	return report.FormatFromPath(c.Report.Path), nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	return level, nil
}

// RetryPolicy builds the HTTP retry policy.
func (c *Config) RetryPolicy() slurphttp.RetryPolicy {
	var backoff slurphttp.Backoff = slurphttp.FixedBackoff{Delay: c.Retry.Delay}
	if c.Retry.Strategy == StrategyExponential {
		backoff = slurphttp.ExponentialBackoff{Initial: c.Retry.Delay, Max: c.Retry.MaxDelay}
	}
	return slurphttp.RetryPolicy{Attempts: c.Retry.Attempts, Backoff: backoff}
}

// HTTPOptions builds the HTTP client options.
func (c *Config) HTTPOptions(logger *slog.Logger) slurphttp.Options {
	opts := slurphttp.DefaultOptions()
	opts.Retry = c.RetryPolicy()
	opts.BlockSize = int(c.BlockSize)
	opts.Timeout = c.Timeout
	opts.Logger = logger
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	return opts
}
