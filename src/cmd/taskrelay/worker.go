package main

import (
	"context"

	"github.com/spf13/cobra"

	"taskrelay/src/contracts"
	"taskrelay/src/shutdown"
	"taskrelay/src/tasks"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background tasks from the task queue",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap("worker")
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	if err := rt.cfg.TaskQueue.Validate(); err != nil {
		return rt.fail(ctx, err)
	}

	coordinator := shutdown.New()
	err = shutdown.Run(ctx, coordinator, func(ctx context.Context) error {
		client, err := tasks.NewRedisClient(ctx, rt.cfg.TaskQueue)
		if err != nil {
			return err
		}
		defer client.Close()

		worker := tasks.NewWorker(client, rt.cfg.TaskQueue.Queue, map[string]tasks.TaskFunc{
			contracts.TaskSimple: tasks.SimpleTask(rt.log),
		}, rt.reporter, rt.log)
		rt.serveMetrics(ctx)
		return worker.Run(ctx)
	})
	if err != nil && !interrupted(coordinator, err) {
		return rt.fail(ctx, err)
	}
	return nil
}
