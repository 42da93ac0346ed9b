package repository

import (
	"context"

	"gorm.io/gorm"

	"merchshop/internal/model"
	"merchshop/internal/store"
)

// ============================================================================
// Transfer records
// ============================================================================

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *gorm.DB, record *model.TransferRecord) error {
	if tx == nil {
		tx = r.db
	}
	return mapError(tx.WithContext(ctx).Create(record).Error)
}

// ListReceived returns transfers into receiverID, oldest first, with the
// sender's username.
func (r *TransferRepository) ListReceived(ctx context.Context, tx *gorm.DB, receiverID int64) ([]store.TransferEntry, error) {
	return r.list(ctx, tx, "t.sender_id", "t.receiver_id", receiverID)
}

// ListSent returns transfers out of senderID, oldest first, with the
// receiver's username.
func (r *TransferRepository) ListSent(ctx context.Context, tx *gorm.DB, senderID int64) ([]store.TransferEntry, error) {
	return r.list(ctx, tx, "t.receiver_id", "t.sender_id", senderID)
}

func (r *TransferRepository) list(ctx context.Context, tx *gorm.DB, counterpartyCol, ownerCol string, ownerID int64) ([]store.TransferEntry, error) {
	if tx == nil {
		tx = r.db
	}

	entries := make([]store.TransferEntry, 0)
	err := tx.WithContext(ctx).
		Table("transfer_record AS t").
		Select("t.id AS record_id, a.username AS counterparty, t.amount AS amount").
		Joins("JOIN account AS a ON a.id = "+counterpartyCol).
		Where(ownerCol+" = ?", ownerID).
		Order("t.id ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, mapError(err)
	}
	return entries, nil
}

// ============================================================================
// Purchase records
// ============================================================================

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, tx *gorm.DB, record *model.PurchaseRecord) error {
	if tx == nil {
		tx = r.db
	}
	return mapError(tx.WithContext(ctx).Create(record).Error)
}

func (r *PurchaseRepository) ListByBuyer(ctx context.Context, tx *gorm.DB, buyerID int64) ([]*model.PurchaseRecord, error) {
	if tx == nil {
		tx = r.db
	}

	var records []*model.PurchaseRecord
	err := tx.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, mapError(err)
	}
	return records, nil
}
