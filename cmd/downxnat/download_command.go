package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"downxnat/internal/batch"
	"downxnat/pkg/graceful"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var (
		projectID       string
		directory       string
		username        string
		scanType        string
		resetCreds      bool
		subjects        []string
		continueOnError bool
		verbose         bool
		progress        bool
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download every subject of a project",
		Long: `Download the image sessions and clinical data of every subject in an XNAT
project. Each subject gets its own directory under --directory holding the
unpacked scans and a clinical_data.json file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := expandPath(directory)
			if err != nil {
				return err
			}
			runCtx, cancel := graceful.Context(cmd.Context())
			defer cancel()

			client, err := ctx.openSession(runCtx, sessionOptions{username: username, scanType: scanType, reset: resetCreds})
			if err != nil {
				return err
			}
			defer func() {
				if err := client.Close(context.Background()); err != nil {
					log.Debugf("Failed to close XNAT session: %v", err)
				}
			}()

			out, err := ctx.openOutputs(runCtx)
			if err != nil {
				return err
			}
			defer out.close()

			runner := &batch.Runner{
				Source:          batch.XNATSource{Client: client},
				Subjects:        subjects,
				Verbose:         verbose,
				Hooks:           out.hooks,
				Metrics:         out.metrics,
				ContinueOnError: continueOnError,
			}
			if progress {
				runner.Progress = func(msg string) { fmt.Fprintln(cmd.ErrOrStderr(), msg) }
			}

			summary, runErr := runner.Run(runCtx, projectID, dir)
			out.writeMetrics(ctx.cfg.MetricsFile)
			if len(summary.Completed)+len(summary.Failed) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID on XNAT")
	cmd.Flags().StringVarP(&directory, "directory", "d", "", "Directory to save scan files to")
	cmd.Flags().StringVarP(&username, "username", "u", "", "XNAT username (default: XNAT_USERNAME or the cached username)")
	cmd.Flags().StringVar(&scanType, "scan-type", "ALL", "Scan type to download")
	cmd.Flags().BoolVar(&resetCreds, "reset-credentials", false, "Forget the stored credentials and ask again")
	cmd.Flags().StringSliceVar(&subjects, "subject", nil, "Only download these subject labels (repeatable)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep going after a subject fails")
	cmd.Flags().BoolVar(&verbose, "verbose", true, "Log each downloaded experiment and subject")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print a line before each experiment")
	_ = cmd.MarkFlagRequired("project-id")
	_ = cmd.MarkFlagRequired("directory")

	return cmd
}
