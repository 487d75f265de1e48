package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/fwslurp/internal/catalog"
)

func (a *app) parseCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse the catalog and print its entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runParse(cmd.Context(), output)
		},
	}
	a.addCatalogFlag(cmd)
	a.addSectionFlag(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")
	return cmd
}

func (a *app) runParse(ctx context.Context, output string) error {
	if err := a.require(map[string]string{"catalog": a.cfg.Catalog}); err != nil {
		return err
	}

	entries, err := a.loadEntries(ctx, a.httpClient())
	if err != nil {
		return err
	}

	if entries == nil {
		entries = []catalog.Entry{}
	}

	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml", "yml":
		enc := yaml.NewEncoder(a.stdout)
		defer enc.Close()
		return enc.Encode(entries)
	case "text", "":
		tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SECTION\tVERSION\tSIZE\tURL\tCHECKSUM")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Section, e.Version, e.Size, e.URL, e.Checksum)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%d entries\n", len(entries))
		return nil
	default:
		return exitf(ExitInvalidArgs, "unknown output format %q", output)
	}
}
