package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"merchshop/internal/model"
	"merchshop/internal/store"
)

// Store is the MySQL implementation of store.Store.
//
// Write transactions read accounts with SELECT ... FOR UPDATE. Read snapshots
// run as REPEATABLE READ read-only transactions, so every query inside one sees
// the same consistent view.
type Store struct {
	db        *gorm.DB
	accounts  *AccountRepository
	transfers *TransferRepository
	purchases *PurchaseRepository
	outbox    *OutboxRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		accounts:  NewAccountRepository(db),
		transfers: NewTransferRepository(db),
		purchases: NewPurchaseRepository(db),
		outbox:    NewOutboxRepository(db),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{s: s, db: tx, forUpdate: true})
	})
	return mapError(err)
}

func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{s: s, db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return mapError(err)
}

type gormTx struct {
	s  *Store
	db *gorm.DB
	// forUpdate is set on write transactions; reads then take row locks
	forUpdate bool
}

func (t *gormTx) AccountByID(ctx context.Context, id int64) (*model.Account, error) {
	if t.forUpdate {
		return t.s.accounts.GetByIDForUpdate(ctx, t.db, id)
	}
	return t.s.accounts.GetByID(ctx, t.db, id)
}

func (t *gormTx) AccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return t.s.accounts.GetByUsername(ctx, t.db, username)
}

func (t *gormTx) CreateAccount(ctx context.Context, account *model.Account) (bool, error) {
	if !t.forUpdate {
		return false, store.ErrReadOnlySnapshot
	}
	return t.s.accounts.CreateIfAbsent(ctx, t.db, account)
}

func (t *gormTx) AdjustBalance(ctx context.Context, accountID int64, delta int64) error {
	if !t.forUpdate {
		return store.ErrReadOnlySnapshot
	}
	return t.s.accounts.AdjustBalance(ctx, t.db, accountID, delta)
}

func (t *gormTx) CreateTransfer(ctx context.Context, record *model.TransferRecord) error {
	if !t.forUpdate {
		return store.ErrReadOnlySnapshot
	}
	return t.s.transfers.Create(ctx, t.db, record)
}

func (t *gormTx) CreatePurchase(ctx context.Context, record *model.PurchaseRecord) error {
	if !t.forUpdate {
		return store.ErrReadOnlySnapshot
	}
	return t.s.purchases.Create(ctx, t.db, record)
}

func (t *gormTx) CreateOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	if !t.forUpdate {
		return store.ErrReadOnlySnapshot
	}
	return t.s.outbox.Create(ctx, t.db, msg)
}

func (t *gormTx) PurchasesByBuyer(ctx context.Context, buyerID int64) ([]*model.PurchaseRecord, error) {
	return t.s.purchases.ListByBuyer(ctx, t.db, buyerID)
}

func (t *gormTx) TransfersReceived(ctx context.Context, receiverID int64) ([]store.TransferEntry, error) {
	return t.s.transfers.ListReceived(ctx, t.db, receiverID)
}

func (t *gormTx) TransfersSent(ctx context.Context, senderID int64) ([]store.TransferEntry, error) {
	return t.s.transfers.ListSent(ctx, t.db, senderID)
}
