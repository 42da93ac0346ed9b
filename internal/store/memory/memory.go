// Package memory is an in-process implementation of store.Store.
//
// Write transactions buffer their changes and apply them in one step under the
// store's write lock, re-checking the non-negative balance guard at that point.
// Read snapshots hold the read lock for their whole duration.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"merchshop/internal/model"
	"merchshop/internal/store"
)

type Store struct {
	mu sync.RWMutex

	accounts   map[int64]*model.Account
	byUsername map[string]int64
	transfers  []*model.TransferRecord
	purchases  []*model.PurchaseRecord
	outbox     []*model.OutboxMessage

	nextAccountID  int64
	nextTransferID int64
	nextPurchaseID int64
	nextOutboxID   int64

	// errors returned by upcoming commits instead of applying them
	commitFailures []error
}

func New() *Store {
	return &Store{
		accounts:   make(map[int64]*model.Account),
		byUsername: make(map[string]int64),
	}
}

// FailNextCommit makes the next write transaction roll back with err after fn
// has run successfully. Used to exercise rollback and retry paths.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFailures = append(s.commitFailures, err)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{s: s, deltas: make(map[int64]int64)}
	if err := fn(t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{s: s, readOnly: true})
}

// Accounts returns copies of all accounts ordered by id.
func (s *Store) Accounts() []model.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Outbox returns copies of all outbox messages in insertion order.
func (s *Store) Outbox() []model.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	return out
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commitFailures) > 0 {
		err := s.commitFailures[0]
		s.commitFailures = s.commitFailures[1:]
		return err
	}

	// validate everything before touching state so a failed commit leaves no trace
	seen := make(map[string]bool, len(t.newAccounts))
	for _, a := range t.newAccounts {
		if _, taken := s.byUsername[a.Username]; taken || seen[a.Username] {
			return store.ErrDuplicate
		}
		seen[a.Username] = true
	}
	for id, delta := range t.deltas {
		a, ok := s.accounts[id]
		if !ok {
			return store.ErrNotFound
		}
		if a.Balance+delta < 0 {
			return store.ErrBalanceNotEnough
		}
	}

	now := time.Now()
	for _, a := range t.newAccounts {
		s.nextAccountID++
		a.ID = s.nextAccountID
		a.CreatedAt, a.UpdatedAt = now, now
		stored := *a
		s.accounts[a.ID] = &stored
		s.byUsername[a.Username] = a.ID
	}
	for id, delta := range t.deltas {
		a := s.accounts[id]
		a.Balance += delta
		a.Version++
		a.UpdatedAt = now
	}
	for _, r := range t.transfers {
		s.nextTransferID++
		r.ID = s.nextTransferID
		r.CreatedAt = now
		stored := *r
		s.transfers = append(s.transfers, &stored)
	}
	for _, r := range t.purchases {
		s.nextPurchaseID++
		r.ID = s.nextPurchaseID
		r.CreatedAt = now
		stored := *r
		s.purchases = append(s.purchases, &stored)
	}
	for _, m := range t.outbox {
		s.nextOutboxID++
		m.ID = s.nextOutboxID
		m.CreatedAt, m.UpdatedAt = now, now
		stored := *m
		s.outbox = append(s.outbox, &stored)
	}
	return nil
}

type tx struct {
	s *Store
	// readOnly transactions already hold s.mu for reading
	readOnly bool

	deltas      map[int64]int64
	newAccounts []*model.Account
	transfers   []*model.TransferRecord
	purchases   []*model.PurchaseRecord
	outbox      []*model.OutboxMessage
}

func (t *tx) rlock() func() {
	if t.readOnly {
		return func() {}
	}
	t.s.mu.RLock()
	return t.s.mu.RUnlock
}

func (t *tx) AccountByID(_ context.Context, id int64) (*model.Account, error) {
	unlock := t.rlock()
	defer unlock()

	a, ok := t.s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	cp.Balance += t.deltas[id]
	return &cp, nil
}

func (t *tx) AccountByUsername(_ context.Context, username string) (*model.Account, error) {
	unlock := t.rlock()
	defer unlock()

	id, ok := t.s.byUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t.s.accounts[id]
	cp.Balance += t.deltas[id]
	return &cp, nil
}

func (t *tx) CreateAccount(_ context.Context, account *model.Account) (bool, error) {
	if t.readOnly {
		return false, store.ErrReadOnlySnapshot
	}
	unlock := t.rlock()
	_, taken := t.s.byUsername[account.Username]
	unlock()
	if taken {
		return false, nil
	}
	for _, a := range t.newAccounts {
		if a.Username == account.Username {
			return false, nil
		}
	}
	t.newAccounts = append(t.newAccounts, account)
	return true, nil
}

func (t *tx) AdjustBalance(_ context.Context, accountID int64, delta int64) error {
	if t.readOnly {
		return store.ErrReadOnlySnapshot
	}
	unlock := t.rlock()
	a, ok := t.s.accounts[accountID]
	var balance int64
	if ok {
		balance = a.Balance
	}
	unlock()

	if !ok {
		return store.ErrNotFound
	}
	if balance+t.deltas[accountID]+delta < 0 {
		return store.ErrBalanceNotEnough
	}
	t.deltas[accountID] += delta
	return nil
}

func (t *tx) CreateTransfer(_ context.Context, record *model.TransferRecord) error {
	if t.readOnly {
		return store.ErrReadOnlySnapshot
	}
	t.transfers = append(t.transfers, record)
	return nil
}

func (t *tx) CreatePurchase(_ context.Context, record *model.PurchaseRecord) error {
	if t.readOnly {
		return store.ErrReadOnlySnapshot
	}
	t.purchases = append(t.purchases, record)
	return nil
}

func (t *tx) CreateOutbox(_ context.Context, msg *model.OutboxMessage) error {
	if t.readOnly {
		return store.ErrReadOnlySnapshot
	}
	t.outbox = append(t.outbox, msg)
	return nil
}

func (t *tx) PurchasesByBuyer(_ context.Context, buyerID int64) ([]*model.PurchaseRecord, error) {
	unlock := t.rlock()
	defer unlock()

	var out []*model.PurchaseRecord
	for _, r := range t.s.purchases {
		if r.BuyerID == buyerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *tx) TransfersReceived(_ context.Context, receiverID int64) ([]store.TransferEntry, error) {
	unlock := t.rlock()
	defer unlock()

	var out []store.TransferEntry
	for _, r := range t.s.transfers {
		if r.ReceiverID == receiverID {
			out = append(out, store.TransferEntry{
				RecordID:     r.ID,
				Counterparty: t.s.accounts[r.SenderID].Username,
				Amount:       r.Amount,
			})
		}
	}
	return out, nil
}

func (t *tx) TransfersSent(_ context.Context, senderID int64) ([]store.TransferEntry, error) {
	unlock := t.rlock()
	defer unlock()

	var out []store.TransferEntry
	for _, r := range t.s.transfers {
		if r.SenderID == senderID {
			out = append(out, store.TransferEntry{
				RecordID:     r.ID,
				Counterparty: t.s.accounts[r.ReceiverID].Username,
				Amount:       r.Amount,
			})
		}
	}
	return out, nil
}
