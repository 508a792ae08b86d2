package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
)

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	// Brokers is the seed broker list.
	Brokers []string

	// Topic receives all lifecycle events.
	Topic string

	// ClientID identifies this producer to the brokers.
	ClientID string

	// EnsureTopic creates the topic at startup if it does not exist.
	EnsureTopic bool

	// TopicPartitions is the partition count used when creating the topic.
	TopicPartitions int32
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		ClientID:        "vigild",
		Topic:           "vigil.events",
		TopicPartitions: 1,
	}
}

// KafkaPublisher ships lifecycle events to a Kafka topic as JSON records
// keyed by stream name, so per-stream ordering survives partitioning.
// Implements Sink.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	logger  *logging.Logger
	metrics *metrics.EventMetrics
}

// NewKafkaPublisher connects to the brokers and, when configured, ensures
// the topic exists.
func NewKafkaPublisher(ctx context.Context, config KafkaConfig, logger *logging.Logger) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("events: no kafka brokers configured")
	}
	if config.Topic == "" {
		config.Topic = DefaultKafkaConfig().Topic
	}
	if config.ClientID == "" {
		config.ClientID = DefaultKafkaConfig().ClientID
	}
	if config.TopicPartitions <= 0 {
		config.TopicPartitions = DefaultKafkaConfig().TopicPartitions
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(config.Brokers...),
		kgo.ClientID(config.ClientID),
		kgo.DefaultProduceTopic(config.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("events: kafka client: %w", err)
	}

	p := &KafkaPublisher{
		client: client,
		topic:  config.Topic,
		logger: logger.WithComponent("kafka"),
	}

	if config.EnsureTopic {
		if err := p.ensureTopic(ctx, config.TopicPartitions); err != nil {
			client.Close()
			return nil, err
		}
	}
	return p, nil
}

// WithMetrics attaches event metrics.
func (p *KafkaPublisher) WithMetrics(em *metrics.EventMetrics) *KafkaPublisher {
	p.metrics = em
	return p
}

func (p *KafkaPublisher) ensureTopic(ctx context.Context, partitions int32) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, 1, nil, p.topic)
	if err != nil {
		return fmt.Errorf("events: create topic %s: %w", p.topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("events: create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Publish implements Sink. Delivery is synchronous so the caller learns
// about failures, but callers treat errors as non-fatal.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(ev.Stream),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if p.metrics != nil {
			p.metrics.RecordPublishFailure()
		}
		p.logger.Warnf("event publish failed", map[string]any{
			"type":   string(ev.Type),
			"stream": ev.Stream,
			"error":  err.Error(),
		})
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}

	if p.metrics != nil {
		p.metrics.RecordPublished()
	}
	return nil
}

// Close flushes outstanding records and closes the client.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
