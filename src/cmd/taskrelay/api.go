package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"taskrelay/src/api"
	"taskrelay/src/broker"
	"taskrelay/src/shutdown"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API",
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap("api")
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	cfg := rt.cfg
	if err := errors.Join(cfg.Kafka.Validate(), cfg.Database.Validate()); err != nil {
		return rt.fail(ctx, err)
	}

	manager, err := rt.openManager(cfg.Database)
	if err != nil {
		return rt.fail(ctx, err)
	}
	defer rt.closeManager(manager)

	producer := broker.NewProducer(broker.NewKafkaDialer(cfg.Kafka), rt.reporter, rt.log)
	handlers := api.NewHandlers(cfg.App.Environment, producer, manager, rt.log)
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddress,
		Handler:           api.NewRouter(handlers, rt.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	err = shutdown.Run(ctx, shutdown.New(), func(ctx context.Context) error {
		return serve(ctx, srv, rt.log)
	})
	if err != nil {
		return rt.fail(ctx, err)
	}
	return nil
}
