package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ligustah/fwslurp/internal/catalog"
	"github.com/ligustah/fwslurp/internal/config"
	"github.com/ligustah/fwslurp/internal/history"
	slurphttp "github.com/ligustah/fwslurp/internal/http"
	"github.com/ligustah/fwslurp/internal/progress"
	"github.com/ligustah/fwslurp/internal/storage"
)

// app holds what every command shares: streams, global flags and the
// resolved configuration.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string

	flags commandFlags

	cfg config.Config
	log *slog.Logger
}

// commandFlags backs the per-command flags. Only flags the user set
// override the configuration.
type commandFlags struct {
	catalog       string
	dest          string
	report        string
	format        string
	history       string
	sections      []string
	retryAttempts int
	retryDelay    time.Duration
	retryStrategy string
	retryMaxDelay time.Duration
	entryDelay    time.Duration
	blockSize     string
	timeout       time.Duration
	maxFailures   int
	progress      bool
}

func (a *app) addCatalogFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.flags.catalog, "catalog", "", "Catalog file path or http(s) URL")
}

func (a *app) addDestFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.flags.dest, "dest", "", "Destination directory or bucket URL")
}

func (a *app) addSectionFlag(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&a.flags.sections, "section", nil, "Only process these sections (Retail, Testkit, GEX, DECR)")
}

func (a *app) addTransferFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&a.flags.retryAttempts, "retry-attempts", 0, "Attempts per entry (default 3)")
	f.DurationVar(&a.flags.retryDelay, "retry-delay", 0, "Wait between attempts (default 5s)")
	f.StringVar(&a.flags.retryStrategy, "retry-strategy", "", "Retry strategy: fixed or exponential")
	f.DurationVar(&a.flags.retryMaxDelay, "retry-max-delay", 0, "Cap for exponential retry waits")
	f.DurationVar(&a.flags.entryDelay, "entry-delay", 0, "Pause between entries (default 5s)")
	f.StringVar(&a.flags.blockSize, "block-size", "", "Read block size, e.g. 1KiB or 64KB")
	f.DurationVar(&a.flags.timeout, "timeout", 0, "Wait for response headers (default 30s)")
	f.IntVar(&a.flags.maxFailures, "max-failures", 0, "Failed entries tolerated before exiting non-zero")
	f.BoolVar(&a.flags.progress, "progress", true, "Show per-entry progress (--progress=false to disable)")
}

func (a *app) addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.flags.report, "report", "", "Write the run report to this file (default stdout)")
	cmd.Flags().StringVar(&a.flags.format, "format", "", "Report format: text, json, csv, html, yaml")
	a.addHistoryFlag(cmd)
}

func (a *app) addHistoryFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.flags.history, "history", "", "Run history database")
}

// setup resolves configuration (defaults, file, environment, flags) and
// builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(a.configPath); err != nil {
			return exitWith(ExitInvalidArgs, err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return exitWith(ExitInvalidArgs, err)
	}
	if err := a.applyFlags(cmd, &cfg); err != nil {
		return exitWith(ExitInvalidArgs, err)
	}
	if err := cfg.Validate(); err != nil {
		return exitWith(ExitInvalidArgs, err)
	}

	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(a.stderr, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(a.stderr, opts)
	}

	a.cfg = cfg
	a.log = slog.New(handler)
	return nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	set := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(name)
		}
		return f != nil && f.Changed
	}

	if set("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = a.logFormat
	}

	*cfg = cfg.Merge(config.Config{
		Catalog:     a.flags.catalog,
		Destination: a.flags.dest,
		Report:      config.ReportConfig{Path: a.flags.report, Format: a.flags.format},
		History:     a.flags.history,
		Sections:    a.flags.sections,
		Timeout:     a.flags.timeout,
		Retry: config.RetryConfig{
			Attempts: a.flags.retryAttempts,
			Delay:    a.flags.retryDelay,
			Strategy: a.flags.retryStrategy,
			MaxDelay: a.flags.retryMaxDelay,
		},
	})

	// Zero is meaningful for these, so they bypass Merge.
	if set("entry-delay") {
		cfg.EntryDelay = a.flags.entryDelay
	}
	if set("retry-delay") {
		cfg.Retry.Delay = a.flags.retryDelay
	}
	if set("retry-max-delay") {
		cfg.Retry.MaxDelay = a.flags.retryMaxDelay
	}
	if set("max-failures") {
		cfg.MaxFailures = a.flags.maxFailures
	}
	if set("progress") {
		cfg.Progress = a.flags.progress
	}
	if set("block-size") {
		size, err := progress.ParseBytes(a.flags.blockSize)
		if err != nil {
			return err
		}
		cfg.BlockSize = size
	}
	return nil
}

func (a *app) require(values map[string]string) error {
	for flag, v := range values {
		if v == "" {
			return exitf(ExitInvalidArgs, "--%s is required", flag)
		}
	}
	return nil
}

func (a *app) httpClient() *slurphttp.Client {
	return slurphttp.NewClient(a.cfg.HTTPOptions(a.log))
}

// loadEntries reads, parses and filters the catalog.
func (a *app) loadEntries(ctx context.Context, client *slurphttp.Client) ([]catalog.Entry, error) {
	markup, err := catalog.Load(ctx, a.cfg.Catalog, client)
	if err != nil {
		return nil, exitWith(ExitCatalogNotAccess, err)
	}

	entries, err := catalog.Parse(markup)
	if err != nil {
		var cse *catalog.CatalogStructureError
		if errors.As(err, &cse) {
			return nil, exitWith(ExitCatalogStructure, err)
		}
		return nil, exitWith(ExitGeneralError, err)
	}

	sections, _ := a.cfg.SectionList()
	filtered := catalog.Filter(entries, sections)
	a.log.Debug("catalog loaded", "source", a.cfg.Catalog, "entries", len(entries), "selected", len(filtered))
	return filtered, nil
}

func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(ctx, a.cfg.Destination)
	if err != nil {
		return nil, exitWith(ExitStorageError, err)
	}
	return store, nil
}

func (a *app) openHistory() (*history.Store, error) {
	if a.cfg.History == "" {
		return nil, exitf(ExitInvalidArgs, "--history is required")
	}
	h, err := history.Open(a.cfg.History)
	if err != nil {
		return nil, exitWith(ExitGeneralError, err)
	}
	return h, nil
}
