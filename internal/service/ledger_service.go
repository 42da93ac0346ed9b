package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"merchshop/internal/catalog"
	"merchshop/internal/infrastructure/lock"
	"merchshop/internal/metrics"
	"merchshop/internal/model"
	"merchshop/internal/store"
	"merchshop/pkg/idgen"
	"merchshop/pkg/logger"
)

const (
	opTransfer = "transfer"
	opPurchase = "purchase"
)

type LedgerOptions struct {
	// MaxRetries bounds how often a transaction hitting a storage conflict is
	// re-run before ErrConflict is returned.
	MaxRetries   int
	RetryBackoff time.Duration
	// EventTopic is the Kafka topic recorded on outbox messages. Empty means
	// no relay consumes events and none are written.
	EventTopic string
}

// LedgerService applies every balance-changing operation.
//
// Each operation:
//  1. validates input without touching storage,
//  2. takes the per-account locks in ascending account id order,
//  3. re-reads balances and writes balance changes, the history record and the
//     outbox event in one storage transaction,
//  4. re-runs 2-3 on a storage conflict, up to MaxRetries times.
type LedgerService struct {
	store   store.Store
	locker  lock.Locker
	catalog *catalog.Catalog
	opts    LedgerOptions
}

func NewLedgerService(st store.Store, locker lock.Locker, cat *catalog.Catalog, opts LedgerOptions) *LedgerService {
	return &LedgerService{
		store:   st,
		locker:  locker,
		catalog: cat,
		opts:    opts,
	}
}

// Transfer moves amount coins from senderID to the account named toUsername.
// The total number of coins across all accounts is unchanged.
func (s *LedgerService) Transfer(ctx context.Context, senderID int64, toUsername string, amount int64) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerOperation(opTransfer, CodeOf(err), time.Since(start))
	}()

	if amount <= 0 {
		return ErrInvalidAmount
	}

	recipient, err := s.resolveRecipient(ctx, toUsername)
	if err != nil {
		return err
	}
	if recipient.ID == senderID {
		return ErrSelfTransfer
	}

	recordNo := idgen.GenerateTransferNo()

	err = s.withRetry(ctx, opTransfer, func() error {
		// storage fills in ids on insert; each attempt starts from a fresh record
		record := &model.TransferRecord{
			RecordNo:   recordNo,
			SenderID:   senderID,
			ReceiverID: recipient.ID,
			Amount:     amount,
		}

		release, err := lock.AcquireAccounts(ctx, s.locker, senderID, recipient.ID)
		if err != nil {
			return lockError(err)
		}
		defer release()

		return s.store.WithinTx(ctx, func(tx store.Tx) error {
			accounts, err := loadAccounts(ctx, tx, senderID, recipient.ID)
			if err != nil {
				return err
			}
			if accounts[senderID].Balance < amount {
				return ErrInsufficientFunds
			}

			if err := tx.AdjustBalance(ctx, senderID, -amount); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, recipient.ID, amount); err != nil {
				return err
			}
			if err := tx.CreateTransfer(ctx, record); err != nil {
				return err
			}
			return s.appendEvent(ctx, tx, record.RecordNo, model.LedgerEvent{
				Type:       model.EventTypeTransfer,
				RecordNo:   record.RecordNo,
				AccountID:  senderID,
				ReceiverID: recipient.ID,
				Amount:     amount,
				OccurredAt: time.Now().UTC(),
			})
		})
	})
	if err != nil {
		logger.Log.Warn("transfer rejected",
			logger.Int64("sender_id", senderID),
			logger.String("to_user", toUsername),
			logger.Int64("amount", amount),
			logger.Error(err),
		)
		return err
	}

	logger.Log.Info("transfer completed",
		logger.String("record_no", recordNo),
		logger.Int64("sender_id", senderID),
		logger.Int64("receiver_id", recipient.ID),
		logger.Int64("amount", amount),
	)
	return nil
}

// Purchase buys one unit of item for buyerID at the current catalog price.
// The coins leave circulation.
func (s *LedgerService) Purchase(ctx context.Context, buyerID int64, item string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerOperation(opPurchase, CodeOf(err), time.Since(start))
	}()

	name, price, err := s.catalog.Lookup(item)
	if err != nil {
		return ErrUnknownItem
	}

	recordNo := idgen.GeneratePurchaseNo()

	err = s.withRetry(ctx, opPurchase, func() error {
		record := &model.PurchaseRecord{
			RecordNo: recordNo,
			BuyerID:  buyerID,
			Item:     name,
			Price:    price,
		}

		release, err := lock.AcquireAccounts(ctx, s.locker, buyerID)
		if err != nil {
			return lockError(err)
		}
		defer release()

		return s.store.WithinTx(ctx, func(tx store.Tx) error {
			accounts, err := loadAccounts(ctx, tx, buyerID)
			if err != nil {
				return err
			}
			if accounts[buyerID].Balance < price {
				return ErrInsufficientFunds
			}

			if err := tx.AdjustBalance(ctx, buyerID, -price); err != nil {
				return err
			}
			if err := tx.CreatePurchase(ctx, record); err != nil {
				return err
			}
			return s.appendEvent(ctx, tx, record.RecordNo, model.LedgerEvent{
				Type:       model.EventTypePurchase,
				RecordNo:   record.RecordNo,
				AccountID:  buyerID,
				Item:       name,
				Amount:     price,
				OccurredAt: time.Now().UTC(),
			})
		})
	})
	if err != nil {
		logger.Log.Warn("purchase rejected",
			logger.Int64("buyer_id", buyerID),
			logger.String("item", name),
			logger.Error(err),
		)
		return err
	}

	logger.Log.Info("purchase completed",
		logger.String("record_no", recordNo),
		logger.Int64("buyer_id", buyerID),
		logger.String("item", name),
		logger.Int64("price", price),
	)
	return nil
}

func (s *LedgerService) resolveRecipient(ctx context.Context, username string) (*model.Account, error) {
	var recipient *model.Account
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		var err error
		recipient, err = tx.AccountByUsername(ctx, username)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownRecipient
	}
	if err != nil {
		return nil, translate(err)
	}
	return recipient, nil
}

// loadAccounts reads the accounts inside tx in ascending id order, which is
// also the row lock order on backends that lock on read.
func loadAccounts(ctx context.Context, tx store.Tx, ids ...int64) (map[int64]*model.Account, error) {
	if len(ids) == 2 && ids[0] > ids[1] {
		ids = []int64{ids[1], ids[0]}
	}
	accounts := make(map[int64]*model.Account, len(ids))
	for _, id := range ids {
		a, err := tx.AccountByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		if err != nil {
			return nil, err
		}
		accounts[id] = a
	}
	return accounts, nil
}

func (s *LedgerService) appendEvent(ctx context.Context, tx store.Tx, key string, event model.LedgerEvent) error {
	if s.opts.EventTopic == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode ledger event: %w", err)
	}
	return tx.CreateOutbox(ctx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      s.opts.EventTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

func (s *LedgerService) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := translate(fn())
		if err == nil || KindOf(err) != KindConflict || attempt >= s.opts.MaxRetries {
			return err
		}

		metrics.RecordLedgerRetry(op)
		logger.Log.Debug("retrying ledger transaction",
			logger.String("operation", op),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)

		select {
		case <-ctx.Done():
			return translate(ctx.Err())
		case <-time.After(s.opts.RetryBackoff * time.Duration(attempt+1)):
		}
	}
}

func lockError(err error) error {
	if errors.Is(err, lock.ErrLockFailed) {
		return withCause(ErrConflict, err)
	}
	return err
}
