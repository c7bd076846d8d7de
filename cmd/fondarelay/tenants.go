package main

import (
	"fmt"
	"text/tabwriter"

	"fondarelay/internal/config"

	"github.com/spf13/cobra"
)

func newTenantsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Tenant administration commands",
	}

	cmd.AddCommand(newTenantsImportCmd(opts))
	cmd.AddCommand(newTenantsListCmd(opts))
	return cmd
}

func newTenantsImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create or update tenants from a YAML file",
		Long:  "Upserts every tenant in FILE by slug. Tenants not listed in FILE are left unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tenants, err := config.LoadTenantsFile(args[0], a.cfg.DefaultTimeout, a.cfg.DefaultMaxItems)
			if err != nil {
				return fmt.Errorf("load tenants: %w", err)
			}
			if err := a.importTenants(ctx, tenants); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tenant(s)\n", len(tenants))
			return nil
		},
	}
}

func newTenantsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tenants, err := a.db.ListTenants(ctx)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tURL\tMAX ITEMS\tUPSTREAM")
			for _, t := range tenants {
				upstream := "-"
				if t.HasUpstreamRelay() {
					upstream = t.UpstreamRelayURL
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", t.Slug, t.Name, t.URL, t.MaxItems, upstream)
			}
			return w.Flush()
		},
	}
}
