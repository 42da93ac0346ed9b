// Package store defines the transactional persistence contract used by the
// ledger. Implementations live in internal/repository (MySQL via gorm) and
// internal/store/memory.
package store

import (
	"context"
	"errors"

	"merchshop/internal/model"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("duplicate record")
	ErrBalanceNotEnough = errors.New("balance not enough")
	ErrConflict         = errors.New("concurrent modification conflict")
	ErrReadOnlySnapshot = errors.New("write attempted in read-only snapshot")
)

// Store opens transactions. Every write made through the Tx handed to fn is
// committed when fn returns nil and rolled back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// ReadSnapshot runs fn against a consistent read-only view: fn observes
	// either all or none of any concurrently committed transaction.
	ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error
}

// TransferEntry is a transfer record joined with the counterpart's username.
type TransferEntry struct {
	RecordID     int64
	Counterparty string
	Amount       int64
}

type Tx interface {
	AccountByID(ctx context.Context, id int64) (*model.Account, error)
	AccountByUsername(ctx context.Context, username string) (*model.Account, error)
	// CreateAccount inserts the account unless the username is already taken.
	// It reports whether a row was inserted.
	CreateAccount(ctx context.Context, account *model.Account) (bool, error)
	// AdjustBalance adds delta to the balance. It fails with
	// ErrBalanceNotEnough when the result would be negative.
	AdjustBalance(ctx context.Context, accountID int64, delta int64) error

	CreateTransfer(ctx context.Context, record *model.TransferRecord) error
	CreatePurchase(ctx context.Context, record *model.PurchaseRecord) error
	CreateOutbox(ctx context.Context, msg *model.OutboxMessage) error

	// Listings are ordered by ascending record id.
	PurchasesByBuyer(ctx context.Context, buyerID int64) ([]*model.PurchaseRecord, error)
	TransfersReceived(ctx context.Context, receiverID int64) ([]TransferEntry, error)
	TransfersSent(ctx context.Context, senderID int64) ([]TransferEntry, error)
}
