package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"taskrelay/src/broker"
	"taskrelay/src/contracts"
	"taskrelay/src/errtrack"
	"taskrelay/src/jsoncodec"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish one JSON message to a topic",
	Example: `  taskrelay send --topic Sample.Topic --data '{"message":"hello"}'
  taskrelay send --topic Sample.Persist --data '{"name":"from-cli"}'`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().String("topic", contracts.TopicSample, "topic to publish to")
	sendCmd.Flags().String("data", `{"message":"hello"}`, "JSON payload")
	sendCmd.Flags().String("key", "", "record key (default: a new ULID)")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, _ []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	data, _ := cmd.Flags().GetString("data")
	key, _ := cmd.Flags().GetString("key")

	if !jsoncodec.Valid([]byte(data)) {
		return fmt.Errorf("--data is not valid JSON")
	}
	if key == "" {
		key = broker.NewKey()
	}

	rt, err := bootstrap("send")
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	if err := rt.cfg.Kafka.Validate(); err != nil {
		return rt.fail(ctx, err)
	}

	// publishing never fails loudly, so collect what it swallowed
	recorder := errtrack.NewRecorder(4)
	producer := broker.NewProducer(broker.NewKafkaDialer(rt.cfg.Kafka), recorder, rt.log)
	producer.Publish(ctx, topic, json.RawMessage(data), key)

	if reports := recorder.Reports(); len(reports) > 0 {
		for _, r := range reports {
			rt.reporter.Capture(ctx, r.Err, r.Tags)
		}
		return fmt.Errorf("failed to publish to %s: %w", topic, reports[0].Err)
	}
	rt.log.Info("Message sent", "topic", topic, "key", key)
	return nil
}
