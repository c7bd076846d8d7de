package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(opts *rootOptions) *cobra.Command {
	var slug string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe a tenant server and retry its queued messages when it answers",
		Long: "Ping skips tenants already known to be working. Otherwise it sends the synthetic test\n" +
			"payload and, when the server answers, retries every message queued for it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, opts, slug)
		},
	}

	cmd.Flags().StringVarP(&slug, "tenant", "t", "", "tenant slug to ping")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runPing(cmd *cobra.Command, opts *rootOptions, slug string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.reconciler.Ping(ctx, slug)
	if err != nil {
		return fmt.Errorf("ping %s: %w", slug, err)
	}

	if result.AlreadyWorking {
		fmt.Fprintf(out, "%s: already working\n", result.Tenant)
		return nil
	}
	fmt.Fprintf(out, "%s: %s, %d queued message(s) delivered\n", result.Tenant, result.Status, result.Sent)
	return nil
}
