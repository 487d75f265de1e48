package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligustah/fwslurp/internal/catalog"
)

// deleteCommand removes stored entries. By default it prompts for
// confirmation unless --force is specified.
func (a *app) deleteCommand() *cobra.Command {
	var (
		versions []string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove stored firmware entries and their sidecars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDelete(cmd.Context(), versions, force)
		},
	}
	a.addDestFlag(cmd)
	a.addSectionFlag(cmd)
	cmd.Flags().StringSliceVar(&versions, "version", nil, "Firmware versions to delete (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")
	return cmd
}

func (a *app) runDelete(ctx context.Context, versions []string, force bool) error {
	if err := a.require(map[string]string{"dest": a.cfg.Destination}); err != nil {
		return err
	}
	sections, _ := a.cfg.SectionList()
	if len(sections) == 0 || len(versions) == 0 {
		return exitf(ExitInvalidArgs, "--section and --version are required")
	}

	var targets []catalog.Entry
	for _, s := range sections {
		for _, v := range versions {
			if v == "." || v == ".." || strings.ContainsAny(v, "/\\\x00") {
				return exitf(ExitInvalidArgs, "invalid version %q", v)
			}
			targets = append(targets, catalog.Entry{Section: s, Version: v})
		}
	}

	if !force {
		keys := make([]string, len(targets))
		for i, e := range targets {
			keys[i] = e.Key()
		}
		fmt.Fprintf(a.stdout, "Delete %s from %s? [y/N]: ", strings.Join(keys, ", "), a.cfg.Destination)
		response, _ := bufio.NewReader(a.stdin).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(a.stderr, "Cancelled")
			return nil
		}
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, e := range targets {
		if err := store.Remove(ctx, e); err != nil {
			return exitWith(ExitStorageError, err)
		}
		a.log.Info("entry deleted", "key", e.Key(), "destination", a.cfg.Destination)
		fmt.Fprintf(a.stderr, "[fwslurp] Deleted: %s\n", e.Key())
	}
	return nil
}
