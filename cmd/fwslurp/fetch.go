package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ligustah/fwslurp/internal/catalog"
	"github.com/ligustah/fwslurp/internal/downloader"
	slurphttp "github.com/ligustah/fwslurp/internal/http"
	"github.com/ligustah/fwslurp/internal/progress"
	"github.com/ligustah/fwslurp/internal/report"
	"github.com/ligustah/fwslurp/internal/storage"
)

func (a *app) fetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download every catalog entry and report the outcome",
		Long: `Download every firmware listed in the catalog, one entry at a time.

Each payload is stored as <Section_Dir>/<version>/PS3UPDAT.PUP with the
published checksum next to it in md5.txt. Failed transfers leave nothing
behind. The run report goes to stdout unless --report names a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFetch(cmd.Context())
		},
	}
	a.addCatalogFlag(cmd)
	a.addDestFlag(cmd)
	a.addSectionFlag(cmd)
	a.addTransferFlags(cmd)
	a.addReportFlags(cmd)
	return cmd
}

func (a *app) runFetch(ctx context.Context) error {
	if err := a.require(map[string]string{"catalog": a.cfg.Catalog, "dest": a.cfg.Destination}); err != nil {
		return err
	}

	client := a.httpClient()
	entries, err := a.loadEntries(ctx, client)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	return a.download(ctx, client, store, entries)
}

// download runs entries through the pipeline, then writes the report and
// the history record. A cancelled run still gets both.
func (a *app) download(ctx context.Context, client *slurphttp.Client, store *storage.Store, entries []catalog.Entry) error {
	var reporter *progress.Reporter
	if a.cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			Output: a.stderr,
			Bars:   isTerminal(a.stderr),
			Total:  len(entries),
		})
	}

	// The downloader treats a zero delay as unset.
	delay := a.cfg.EntryDelay
	if delay == 0 {
		delay = -1
	}

	d := downloader.New(client, downloader.FromStorage(store), downloader.Options{
		EntryDelay: delay,
		Logger:     a.log,
		Progress:   reporter,
		Source:     a.cfg.Catalog,
	})
	rep, runErr := d.Run(ctx, entries)

	if reporter != nil {
		reporter.Summary()
	}
	if err := a.writeReport(rep); err != nil {
		return exitWith(ExitGeneralError, err)
	}
	if err := a.saveHistory(context.WithoutCancel(ctx), rep); err != nil {
		return exitWith(ExitGeneralError, err)
	}

	if runErr != nil {
		return exitf(ExitGeneralError, "run %s interrupted: %w", rep.RunID, runErr)
	}

	s := rep.Summary()
	if s.Failed > a.cfg.MaxFailures {
		return exitf(ExitTooManyFailures, "%d of %d entries failed", s.Failed, s.Total)
	}
	return nil
}

// isTerminal reports whether w is an interactive terminal. Bars are only
// drawn there; elsewhere the reporter just prints the run summary.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) writeReport(rep *report.Report) error {
	format, err := a.cfg.ReportFormat()
	if err != nil {
		return err
	}

	if a.cfg.Report.Path == "" {
		return rep.Render(a.stdout, format)
	}

	if err := os.MkdirAll(filepath.Dir(a.cfg.Report.Path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(a.cfg.Report.Path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := rep.Render(f, format); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	a.log.Info("report written", "path", a.cfg.Report.Path, "format", string(format))
	return nil
}

func (a *app) saveHistory(ctx context.Context, rep *report.Report) error {
	if a.cfg.History == "" {
		return nil
	}
	h, err := a.openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.Save(ctx, rep); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
