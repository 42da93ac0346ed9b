package job

import (
	"context"
	"time"

	"merchshop/internal/metrics"
	"merchshop/internal/model"
	"merchshop/pkg/logger"
)

// OutboxSource is the outbox table as seen by the relay.
type OutboxSource interface {
	PendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkAsSent(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetries int) (bool, error)
}

type Publisher interface {
	Publish(topic, key, value string) error
}

type OutboxSenderOptions struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// OutboxSender relays committed ledger events from the outbox table to Kafka.
// Delivery is at least once: a message is marked SENT only after the broker
// acked it.
type OutboxSender struct {
	source    OutboxSource
	publisher Publisher
	opts      OutboxSenderOptions
	stopCh    chan struct{}
}

func NewOutboxSender(source OutboxSource, publisher Publisher, opts OutboxSenderOptions) *OutboxSender {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &OutboxSender{
		source:    source,
		publisher: publisher,
		opts:      opts,
		stopCh:    make(chan struct{}),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Log.Info("outbox sender started",
		logger.Duration("interval", s.opts.Interval),
		logger.Int("batch_size", s.opts.BatchSize),
	)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("outbox sender stopping", logger.Error(ctx.Err()))
			return
		case <-s.stopCh:
			logger.Log.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending publishes one batch of pending messages and returns how many
// were sent.
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.source.PendingMessages(ctx, s.opts.BatchSize)
	if err != nil {
		logger.Log.Error("load pending outbox messages", logger.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.RecordOutboxMessage(model.OutboxStatusSent)
		if err := s.source.MarkAsSent(ctx, msg.ID); err != nil {
			// published but not marked; it will be sent again next tick
			logger.Log.Error("mark outbox message sent",
				logger.Int64("id", msg.ID),
				logger.Error(err),
			)
		}
		return true
	}

	logger.Log.Warn("publish outbox message",
		logger.Int64("id", msg.ID),
		logger.String("key", msg.MessageKey),
		logger.Int("retry_count", msg.RetryCount),
		logger.Error(err),
	)

	failed, err := s.source.RecordFailure(ctx, msg, s.opts.MaxRetries)
	if err != nil {
		logger.Log.Error("record outbox failure", logger.Int64("id", msg.ID), logger.Error(err))
		return false
	}
	if failed {
		metrics.RecordOutboxMessage(model.OutboxStatusFailed)
		logger.Log.Error("outbox message exceeded max retries",
			logger.Int64("id", msg.ID),
			logger.String("key", msg.MessageKey),
		)
	}
	return false
}
