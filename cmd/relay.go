package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recruit-pipeline/infrastructure"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Only relay committed outbox events to RabbitMQ",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close(logger)

		if c.rabbit == nil {
			logger.Warn("rabbitmq is disabled, events go to the in-process hub which has no clients in relay mode")
		}

		infrastructure.NewOutboxRelay(c.store, c.publisher(), cfg.Outbox, logger.Named("outbox")).Run(ctx)
		return nil
	},
}
