package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"taskrelay/src/config"
)

// KafkaDialer dials Kafka or Redpanda through franz-go.
type KafkaDialer struct {
	settings config.Kafka
	extra    []kgo.Opt
}

// NewKafkaDialer creates a dialer for settings. extra options are appended
// to every client.
func NewKafkaDialer(settings config.Kafka, extra ...kgo.Opt) *KafkaDialer {
	return &KafkaDialer{settings: settings, extra: extra}
}

// clientOptions returns the connection options shared by consumers and producers.
func clientOptions(s config.Kafka) ([]kgo.Opt, error) {
	seeds := s.BootstrapServers()
	if len(seeds) == 0 {
		return nil, errors.New("at least one broker address is required")
	}
	opts := []kgo.Opt{kgo.SeedBrokers(seeds...)}

	protocol := strings.ToUpper(s.SecurityProtocol)
	switch protocol {
	case "", "PLAINTEXT", "SASL_PLAINTEXT":
	case "SSL", "SASL_SSL":
		tlsCfg, err := tlsConfig(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	default:
		return nil, fmt.Errorf("unsupported security protocol %q", s.SecurityProtocol)
	}

	if strings.HasPrefix(protocol, "SASL_") {
		mechanism, err := saslMechanism(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mechanism))
	}
	return opts, nil
}

func tlsConfig(s config.Kafka) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.CertKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func saslMechanism(s config.Kafka) (sasl.Mechanism, error) {
	switch strings.ToUpper(s.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: s.Username, Pass: s.Password}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return scram.Auth{User: s.Username, Pass: s.Password}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return scram.Auth{User: s.Username, Pass: s.Password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", s.Mechanism)
	}
}

// consumerOptions adds subscription and group tuning to the client options.
func consumerOptions(s config.Kafka, topics []string) ([]kgo.Opt, error) {
	opts, err := clientOptions(s)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	opts = append(opts, kgo.ConsumeTopics(topics...))
	if s.ConsumerTimeoutMs > 0 {
		opts = append(opts, kgo.FetchMaxWait(time.Duration(s.ConsumerTimeoutMs)*time.Millisecond))
	}
	if s.GroupID != "" {
		opts = append(opts, kgo.ConsumerGroup(s.GroupID))
		if s.SessionTimeoutMs > 0 {
			opts = append(opts, kgo.SessionTimeout(time.Duration(s.SessionTimeoutMs)*time.Millisecond))
		}
		if s.AutoCommitIntervalMs > 0 {
			opts = append(opts, kgo.AutoCommitInterval(time.Duration(s.AutoCommitIntervalMs)*time.Millisecond))
		}
	}
	return opts, nil
}

// DialConsumer implements Dialer.
func (d *KafkaDialer) DialConsumer(ctx context.Context, topics []string) (Fetcher, error) {
	opts, err := consumerOptions(d.settings, topics)
	if err != nil {
		return nil, err
	}
	client, err := d.connect(ctx, append(opts, d.extra...))
	if err != nil {
		return nil, err
	}

	maxPoll := d.settings.MaxPollRecords
	if maxPoll <= 0 {
		maxPoll = 1
	}
	return &kafkaFetcher{client: client, maxPoll: maxPoll}, nil
}

// DialProducer implements Dialer.
func (d *KafkaDialer) DialProducer(ctx context.Context) (Sender, error) {
	opts, err := clientOptions(d.settings)
	if err != nil {
		return nil, err
	}
	client, err := d.connect(ctx, append(opts, d.extra...))
	if err != nil {
		return nil, err
	}
	return &kafkaSender{client: client}, nil
}

func (d *KafkaDialer) connect(ctx context.Context, opts []kgo.Opt) (*kgo.Client, error) {
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach Kafka brokers: %w", err)
	}
	return client, nil
}

// recordPoller is the part of *kgo.Client the fetcher uses.
type recordPoller interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	Close()
}

// kafkaFetcher polls up to maxPoll records at a time and hands them out one
// by one.
type kafkaFetcher struct {
	client    recordPoller
	maxPoll   int
	buffered  []*kgo.Record
	closeOnce sync.Once
}

func (f *kafkaFetcher) Fetch(ctx context.Context) (Record, error) {
	for len(f.buffered) == 0 {
		fetches := f.client.PollRecords(ctx, f.maxPoll)
		if fetches.IsClientClosed() {
			return Record{}, ErrClientClosed
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		var errs []error
		fetches.EachError(func(topic string, partition int32, err error) {
			errs = append(errs, fmt.Errorf("topic %s partition %d: %w", topic, partition, err))
		})
		f.buffered = fetches.Records()
		if len(errs) > 0 {
			// records that did arrive are returned by the next Fetch
			return Record{}, fmt.Errorf("failed to fetch records: %w", errors.Join(errs...))
		}
	}

	r := f.buffered[0]
	f.buffered[0] = nil
	f.buffered = f.buffered[1:]
	return Record{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp.UnixMilli(),
	}, nil
}

func (f *kafkaFetcher) Close() error {
	f.closeOnce.Do(f.client.Close)
	return nil
}

type kafkaSender struct {
	client    *kgo.Client
	closeOnce sync.Once
}

func (s *kafkaSender) Send(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (s *kafkaSender) Close() error {
	s.closeOnce.Do(s.client.Close)
	return nil
}
