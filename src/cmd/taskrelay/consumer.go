package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"taskrelay/src/broker"
	"taskrelay/src/handlers"
	"taskrelay/src/shutdown"
	"taskrelay/src/tasks"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Consume the registered topics and dispatch records to their handlers",
	RunE:  runConsumer,
}

func init() {
	rootCmd.AddCommand(consumerCmd)
}

func runConsumer(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap("consumer")
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	cfg := rt.cfg
	if err := errors.Join(cfg.Kafka.Validate(), cfg.Database.Validate(), cfg.TaskQueue.Validate()); err != nil {
		return rt.fail(ctx, err)
	}

	manager, err := rt.openManager(cfg.Database)
	if err != nil {
		return rt.fail(ctx, err)
	}
	defer rt.closeManager(manager)

	coordinator := shutdown.New()
	err = shutdown.Run(ctx, coordinator, func(ctx context.Context) error {
		redisClient, err := tasks.NewRedisClient(ctx, cfg.TaskQueue)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		dispatcher := tasks.NewRedisDispatcher(redisClient, cfg.TaskQueue.Queue, rt.log)
		registry, err := handlers.Default(dispatcher, manager, rt.log)
		if err != nil {
			return err
		}

		consumer := broker.NewConsumer(
			broker.NewKafkaDialer(cfg.Kafka),
			registry,
			rt.reporter,
			rt.log,
			broker.WithHandlerTimeout(cfg.Consumer.HandlerTimeout),
		)
		rt.serveMetrics(ctx)
		return consumer.Run(ctx)
	})
	if sig := coordinator.Signal(); sig != nil {
		rt.log.Info("Shutdown signal received", "signal", sig.String())
	}
	if err != nil && !interrupted(coordinator, err) {
		return rt.fail(ctx, err)
	}
	return nil
}
