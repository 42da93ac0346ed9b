package mq

import (
	"fmt"

	"github.com/IBM/sarama"

	"merchshop/internal/config"
	"merchshop/pkg/logger"
)

// Publisher sends ledger events to Kafka and waits for the broker ack.
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// ProducerConfig waits for all in-sync replicas, so an acked event survives a
// broker failover.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	return cfg
}

// Dial creates a SyncProducer for the configured brokers.
func Dial(cfg *config.KafkaConfig) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	logger.Log.Info("kafka producer ready", logger.Strings("brokers", cfg.Brokers))
	return NewPublisher(producer), nil
}

func (p *Publisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	logger.Log.Debug("event published",
		logger.String("topic", topic),
		logger.String("key", key),
		logger.Int("partition", int(partition)),
		logger.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
