package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"downxnat/internal/config"
)

type commandContext struct {
	envFile string
	debug   bool
	cfg     *config.Config
}

func (c *commandContext) setup() error {
	level := log.InfoLevel
	if c.debug || os.Getenv("DEBUG") == "1" {
		level = log.DebugLevel
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)

	var files []string
	if c.envFile != "" {
		files = append(files, c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "downxnat",
		Short:         "Download subject scans and clinical data from XNAT",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", "", "Environment file to load (default .env)")
	rootCmd.PersistentFlags().BoolVar(&ctx.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newConsumeCommand(ctx))
	rootCmd.AddCommand(newCredentialsCommand(ctx))
	rootCmd.AddCommand(newLedgerCommand(ctx))

	return rootCmd
}
