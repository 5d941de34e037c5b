package main

import (
	"errors"

	"github.com/spf13/cobra"

	"appeals/internal/platform/kafka"
	"appeals/internal/platform/postgres"
	auditpostgres "appeals/pkg/platform/audit/store/postgres"
	"appeals/pkg/platform/audit/worker"
)

// outboxCommand drains pending audit rows to Kafka once and exits. Useful
// after an outage when the serve relay was disabled.
func outboxCommand() *cobra.Command {
	var createTopic bool
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Relay pending audit events to Kafka and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := commonRun()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" || !cfg.Kafka.Enabled() {
				return errors.New("APPEALS_DATABASE_URL and APPEALS_KAFKA_BROKERS are required")
			}
			ctx := cmd.Context()

			db, err := postgres.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				return err
			}
			defer producer.Close()
			if createTopic {
				if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
					return err
				}
			}

			relay := worker.NewRelay(auditpostgres.New(db), producer,
				worker.WithBatchSize(cfg.Kafka.BatchSize),
				worker.WithLogger(log),
			)
			n, err := relay.Drain(ctx)
			if err != nil {
				return err
			}
			log.Info("outbox drained", "published", n, "topic", cfg.Kafka.Topic)
			return nil
		},
	}
	cmd.Flags().BoolVar(&createTopic, "create-topic", false, "create the topic if it does not exist")
	return cmd
}
