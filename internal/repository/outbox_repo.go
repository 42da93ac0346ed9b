package repository

import (
	"context"

	"gorm.io/gorm"

	"merchshop/internal/model"
)

// OutboxRepository stores ledger events waiting to be relayed to Kafka.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	return mapError(tx.WithContext(ctx).Create(msg).Error)
}

// PendingMessages returns up to limit unsent messages in commit order.
func (r *OutboxRepository) PendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkAsSent(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, model.OutboxStatusSent, 0)
}

// RecordFailure counts a failed publish attempt and parks the message as
// FAILED once it has used up maxRetries attempts.
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetries int) (failed bool, err error) {
	status := model.OutboxStatusPending
	if msg.RetryCount+1 >= maxRetries {
		status = model.OutboxStatusFailed
	}
	if err := r.setStatus(ctx, msg.ID, status, 1); err != nil {
		return false, err
	}
	return status == model.OutboxStatusFailed, nil
}

func (r *OutboxRepository) setStatus(ctx context.Context, id int64, status string, retryInc int) error {
	updates := map[string]interface{}{"status": status}
	if retryInc > 0 {
		updates["retry_count"] = gorm.Expr("retry_count + ?", retryInc)
	}
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(updates).Error
}
