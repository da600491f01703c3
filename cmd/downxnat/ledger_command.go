package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"downxnat/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the download ledger (DATABASE_URL)",
	}

	var projectID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the downloaded subjects of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			store, err := ledger.Open(cmd.Context(), ctx.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No subjects recorded for %s\n", projectID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderLedger(entries))
			return nil
		},
	}
	list.Flags().StringVar(&projectID, "project-id", "", "Project ID on XNAT")
	_ = list.MarkFlagRequired("project-id")

	cmd.AddCommand(list)
	return cmd
}
