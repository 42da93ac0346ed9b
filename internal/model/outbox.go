package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventTypeTransfer = "TRANSFER"
	EventTypePurchase = "PURCHASE"
)

type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// LedgerEvent is the JSON payload stored in the outbox for every committed
// ledger mutation.
type LedgerEvent struct {
	Type       string    `json:"type"`
	RecordNo   string    `json:"record_no"`
	AccountID  int64     `json:"account_id"`
	ReceiverID int64     `json:"receiver_id,omitempty"`
	Item       string    `json:"item,omitempty"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}
