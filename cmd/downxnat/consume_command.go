package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"downxnat/internal/batch"
	"downxnat/internal/service"
	"downxnat/pkg/graceful"
	"downxnat/pkg/kafkaclient"
)

func newConsumeCommand(ctx *commandContext) *cobra.Command {
	var (
		directory string
		username  string
		scanType  string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Download subjects requested on a Kafka topic",
		Long: `Read {"project": ..., "subject": ...} requests from KAFKA_REQUEST_TOPIC and
download each subject into --directory. A request is committed once its
subject was written; the first failure stops the consumer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if err := cfg.ValidateConsumer(); err != nil {
				return err
			}
			dir, err := expandPath(directory)
			if err != nil {
				return err
			}
			runCtx, cancel := graceful.Context(cmd.Context())
			defer cancel()

			client, err := ctx.openSession(runCtx, sessionOptions{username: username, scanType: scanType})
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

			log.Printf("Connecting to Kafka brokers: %v on topic: %s with group ID: %s", cfg.Kafka.Brokers, cfg.Kafka.RequestTopic, cfg.Kafka.GroupID)
			consumer, err := kafkaclient.NewKafkaConsumer(cfg.Kafka.RequestTopic, cfg.Kafka.GroupID, cfg.Kafka.Brokers)
			if err != nil {
				return err
			}
			consumer.StartConsuming(runCtx)
			defer consumer.Stop()

			source := batch.XNATSource{Client: client}
			handled, err := service.NewIterator(consumer).Process(runCtx, func(reqCtx context.Context, req service.Request) error {
				runner := &batch.Runner{
					Source:   source,
					Subjects: []string{req.Subject},
					Verbose:  verbose,
					Hooks:    out.hooks,
					Metrics:  out.metrics,
				}
				_, err := runner.Run(reqCtx, req.Project, dir)
				out.writeMetrics(cfg.MetricsFile)
				return err
			})
			log.Printf("Handled %d download requests", handled)
			if err != nil {
				return err
			}
			return consumer.Err()
		},
	}

	cmd.Flags().StringVarP(&directory, "directory", "d", "", "Directory to save scan files to")
	cmd.Flags().StringVarP(&username, "username", "u", "", "XNAT username (default: XNAT_USERNAME or the cached username)")
	cmd.Flags().StringVar(&scanType, "scan-type", "ALL", "Scan type to download")
	cmd.Flags().BoolVar(&verbose, "verbose", true, "Log each downloaded experiment and subject")
	_ = cmd.MarkFlagRequired("directory")

	return cmd
}
