// Package main is the taskrelay binary. Each service runs as a subcommand:
// the web API, the broker consumer, the task worker, a local all-in-one mode
// and a one-shot publisher.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskrelay",
	Short: "taskrelay - web API, broker consumer and task worker",
	Long: `taskrelay relays messages between a Kafka-compatible broker, a Redis
task queue and a relational database.

Configuration is read from .env, the YAML file named by CONFIG_FILE and the
environment, in increasing order of precedence.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
