package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) fixCommand() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Re-download catalog entries that are missing or incomplete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFix(cmd.Context(), verify)
		},
	}
	a.addCatalogFlag(cmd)
	a.addDestFlag(cmd)
	a.addSectionFlag(cmd)
	a.addTransferFlags(cmd)
	a.addReportFlags(cmd)
	cmd.Flags().BoolVar(&verify, "verify", false, "Also re-download payloads whose MD5 does not match the sidecar")
	return cmd
}

func (a *app) runFix(ctx context.Context, verify bool) error {
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

	incomplete, err := a.inspect(ctx, store, entries, verify, false)
	if err != nil {
		return err
	}
	if len(incomplete) == 0 {
		fmt.Fprintf(a.stderr, "[fwslurp] All %d entries are stored, nothing to fix\n", len(entries))
		return nil
	}

	fmt.Fprintf(a.stderr, "[fwslurp] Fixing %d of %d entries\n", len(incomplete), len(entries))
	return a.download(ctx, client, store, incomplete)
}
