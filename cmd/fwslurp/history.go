package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ligustah/fwslurp/internal/history"
	"github.com/ligustah/fwslurp/internal/report"
)

func (a *app) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect previous runs recorded with --history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistoryList(cmd.Context(), limit)
		},
	}
	a.addHistoryFlag(list)
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs (0 lists all)")

	show := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Render the report of a recorded run (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return a.runHistoryShow(cmd.Context(), id)
		},
	}
	a.addHistoryFlag(show)
	show.Flags().StringVar(&a.flags.format, "format", "", "Report format: text, json, csv, html, yaml")

	diff := &cobra.Command{
		Use:   "diff [old-run new-run]",
		Short: "Show entries whose status changed between two runs (default: latest two)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 run ids, received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistoryDiff(cmd.Context(), args)
		},
	}
	a.addHistoryFlag(diff)

	cmd.AddCommand(list, show, diff)
	return cmd
}

func (a *app) runHistoryList(ctx context.Context, limit int) error {
	h, err := a.openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	runs, err := h.List(ctx, limit)
	if err != nil {
		return exitWith(ExitGeneralError, err)
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tTOTAL\tSUCCESS\tFAILURE\tCATALOG")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), duration,
			r.Summary.Total, r.Summary.Succeeded, r.Summary.Failed, r.Source)
	}
	return tw.Flush()
}

func (a *app) runHistoryShow(ctx context.Context, id string) error {
	h, err := a.openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	rep, err := loadRun(ctx, h, id)
	if err != nil {
		return err
	}

	format, err := a.cfg.ReportFormat()
	if err != nil {
		return exitWith(ExitInvalidArgs, err)
	}
	return rep.Render(a.stdout, format)
}

func (a *app) runHistoryDiff(ctx context.Context, args []string) error {
	h, err := a.openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	var ids []string
	if len(args) == 2 {
		ids = args
	} else {
		runs, err := h.List(ctx, 2)
		if err != nil {
			return exitWith(ExitGeneralError, err)
		}
		if len(runs) < 2 {
			return exitf(ExitGeneralError, "need two recorded runs to diff, have %d", len(runs))
		}
		ids = []string{runs[1].ID, runs[0].ID}
	}

	prev, err := loadRun(ctx, h, ids[0])
	if err != nil {
		return err
	}
	cur, err := loadRun(ctx, h, ids[1])
	if err != nil {
		return err
	}

	changes := report.Diff(prev, cur)
	fmt.Fprintf(a.stdout, "%s -> %s: %d changed\n", prev.RunID, cur.RunID, len(changes))
	for _, c := range changes {
		fmt.Fprintf(a.stdout, "  %s: %s -> %s\n", c.Key, statusOrAbsent(c.Before), statusOrAbsent(c.After))
	}
	return nil
}

func loadRun(ctx context.Context, h *history.Store, id string) (*report.Report, error) {
	var (
		rep *report.Report
		err error
	)
	if id == "" {
		rep, err = h.Latest(ctx)
	} else {
		rep, err = h.Load(ctx, id)
	}
	if errors.Is(err, history.ErrNotFound) {
		return nil, exitWith(ExitInvalidArgs, err)
	}
	if err != nil {
		return nil, exitWith(ExitGeneralError, err)
	}
	return rep, nil
}

func statusOrAbsent(s report.Status) string {
	if s == "" {
		return "absent"
	}
	return string(s)
}
