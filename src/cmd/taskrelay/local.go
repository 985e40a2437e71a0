package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"taskrelay/src/api"
	"taskrelay/src/broker"
	"taskrelay/src/contracts"
	"taskrelay/src/handlers"
	"taskrelay/src/models"
	"taskrelay/src/shutdown"
	"taskrelay/src/tasks"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run the API and the consumer in one process on an in-memory broker",
	Long: `Local mode needs no broker and no task queue. Published messages go
through an in-memory broker, tasks run inline and the database defaults to a
SQLite file, so the whole flow can be exercised on one machine.`,
	RunE: runLocal,
}

func init() {
	localCmd.Flags().String("db", "sqlite:///taskrelay-local.db", "database URI used when DATABASE_URL is unset")
	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap("local")
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	settings := rt.cfg.Database
	if uri, _ := settings.URI(); uri == "" {
		settings.Testing = false
		settings.DatabaseURL, _ = cmd.Flags().GetString("db")
	}

	manager, err := rt.openManager(settings)
	if err != nil {
		return rt.fail(ctx, err)
	}
	defer rt.closeManager(manager)
	if err := manager.Apply(ctx, models.Schema); err != nil {
		return rt.fail(ctx, err)
	}

	memory := broker.NewMemoryBroker()
	defer memory.Close()

	simple := tasks.SimpleTask(rt.log)
	inline := tasks.DispatcherFunc(func(ctx context.Context, task string, payload []byte) error {
		if task != contracts.TaskSimple {
			return errors.New("unknown task " + task)
		}
		return simple(ctx, payload)
	})
	registry, err := handlers.Default(inline, manager, rt.log)
	if err != nil {
		return rt.fail(ctx, err)
	}

	consumer := broker.NewConsumer(memory, registry, rt.reporter, rt.log,
		broker.WithHandlerTimeout(rt.cfg.Consumer.HandlerTimeout))
	producer := broker.NewProducer(memory, rt.reporter, rt.log)
	srv := &http.Server{
		Addr:              rt.cfg.App.HTTPAddress,
		Handler:           api.NewRouter(api.NewHandlers(rt.cfg.App.Environment, producer, manager, rt.log), rt.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	err = shutdown.Run(ctx, shutdown.New(), func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		errs := make(chan error, 2)
		go func() { errs <- consumer.Run(ctx) }()
		go func() { errs <- serve(ctx, srv, rt.log) }()

		// whichever stops first takes the other down with it
		first := <-errs
		cancel()
		return errors.Join(first, <-errs)
	})
	if err != nil {
		return rt.fail(ctx, err)
	}
	return nil
}
