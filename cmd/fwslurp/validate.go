package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ligustah/fwslurp/internal/catalog"
	"github.com/ligustah/fwslurp/internal/progress"
	"github.com/ligustah/fwslurp/internal/storage"
)

func (a *app) validateCommand() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every catalog entry is stored with its sidecar",
		Long: `Check that every catalog entry has a payload and a checksum sidecar in the
destination. Nothing is downloaded.

With --verify each payload is read back and its MD5 compared against the
sidecar.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd.Context(), verify)
		},
	}
	a.addCatalogFlag(cmd)
	a.addDestFlag(cmd)
	a.addSectionFlag(cmd)
	cmd.Flags().BoolVar(&verify, "verify", false, "Hash payloads and compare against the sidecar")
	return cmd
}

func (a *app) runValidate(ctx context.Context, verify bool) error {
	if err := a.require(map[string]string{"catalog": a.cfg.Catalog, "dest": a.cfg.Destination}); err != nil {
		return err
	}

	entries, err := a.loadEntries(ctx, a.httpClient())
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	missing, err := a.inspect(ctx, store, entries, verify, true)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Entries: %d\n", len(entries))
	if len(missing) == 0 {
		fmt.Fprintln(a.stdout, "Status: VALID")
		return nil
	}

	fmt.Fprintln(a.stdout, "Status: INVALID")
	fmt.Fprintf(a.stdout, "Incomplete entries: %d\n", len(missing))
	return exitWith(ExitValidationFailed, nil)
}

// inspect returns the entries that are not completely stored. With print
// set, each problem is listed on stdout.
func (a *app) inspect(ctx context.Context, store *storage.Store, entries []catalog.Entry, verify, print bool) ([]catalog.Entry, error) {
	var incomplete []catalog.Entry
	for _, e := range entries {
		in, err := store.Inspect(ctx, e, verify)
		if err != nil {
			return nil, exitWith(ExitStorageError, err)
		}
		if in.Complete() {
			a.log.Debug("entry complete", "key", e.Key(), "size", progress.FormatBytes(in.PayloadSize))
			continue
		}

		incomplete = append(incomplete, e)
		if print {
			fmt.Fprintf(a.stdout, "  - %s: %s\n", e.Key(), problem(in))
		}
	}
	return incomplete, nil
}

func problem(in storage.Inspection) string {
	switch {
	case !in.HasPayload && !in.HasChecksum:
		return "missing"
	case !in.HasPayload:
		return "payload missing"
	case !in.HasChecksum:
		return "checksum sidecar missing"
	default:
		return fmt.Sprintf("checksum mismatch (sidecar %s)", in.StoredChecksum)
	}
}
