package model

import (
	"time"
)

// ============================================================================
// Ledger records
// ============================================================================
//
// Both record tables are append-only: rows are inserted in the same database
// transaction as the balance change they describe and are never updated or
// deleted afterwards. History views are rebuilt from them on demand.

// TransferRecord is a completed coin transfer between two distinct accounts.
type TransferRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"record_no"`
	SenderID   int64     `gorm:"index;not null" json:"sender_id"`
	ReceiverID int64     `gorm:"index;not null" json:"receiver_id"`
	Amount     int64     `gorm:"not null" json:"amount"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_record"
}

// PurchaseRecord is a completed merch purchase. Price is the catalog price at
// the moment of purchase and does not follow later catalog changes.
type PurchaseRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordNo  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"record_no"`
	BuyerID   int64     `gorm:"index;not null" json:"buyer_id"`
	Item      string    `gorm:"type:varchar(64);not null" json:"item"`
	Price     int64     `gorm:"not null" json:"price"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PurchaseRecord) TableName() string {
	return "purchase_record"
}
