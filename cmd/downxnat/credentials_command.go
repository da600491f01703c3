package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"downxnat/internal/credentials"
)

func newCredentialsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the XNAT credentials stored in the system keyring",
	}

	var username string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored username and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = ctx.cfg.Username
			}
			cache := credentials.NewCache(ctx.cfg.KeyringService)
			if err := cache.Reset(username); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed stored credentials from keyring service %q\n", cache.Service)
			return nil
		},
	}
	reset.Flags().StringVarP(&username, "username", "u", "", "XNAT username whose password is removed")

	cmd.AddCommand(reset)
	return cmd
}
