package service

import (
	"context"
	"errors"

	"merchshop/internal/store"
)

type InventoryItem struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

type ReceivedEntry struct {
	FromUser string `json:"fromUser"`
	Amount   int64  `json:"amount"`
}

type SentEntry struct {
	ToUser string `json:"toUser"`
	Amount int64  `json:"amount"`
}

type CoinHistory struct {
	Received []ReceivedEntry `json:"received"`
	Sent     []SentEntry     `json:"sent"`
}

// Snapshot is everything a user sees about their own account, read at a
// single point in time.
type Snapshot struct {
	Coins       int64           `json:"coins"`
	Inventory   []InventoryItem `json:"inventory"`
	CoinHistory CoinHistory     `json:"coinHistory"`
}

// HistoryService derives read-only views from the ledger records.
type HistoryService struct {
	store store.Store
}

func NewHistoryService(st store.Store) *HistoryService {
	return &HistoryService{store: st}
}

// GetInventory counts purchases per item, in order of each item's first purchase.
func (s *HistoryService) GetInventory(ctx context.Context, accountID int64) ([]InventoryItem, error) {
	var items []InventoryItem
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		var err error
		items, err = inventory(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// GetTransferHistory lists transfers received and sent by the account in the
// order they were recorded.
func (s *HistoryService) GetTransferHistory(ctx context.Context, accountID int64) ([]ReceivedEntry, []SentEntry, error) {
	var h CoinHistory
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		var err error
		h, err = coinHistory(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, nil, translate(err)
	}
	return h.Received, h.Sent, nil
}

// GetSnapshot reads balance, inventory and history in one read transaction.
func (s *HistoryService) GetSnapshot(ctx context.Context, accountID int64) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		account, err := tx.AccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		snap.Coins = account.Balance

		if snap.Inventory, err = inventory(ctx, tx, accountID); err != nil {
			return err
		}
		snap.CoinHistory, err = coinHistory(ctx, tx, accountID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return snap, nil
}

func inventory(ctx context.Context, tx store.Tx, accountID int64) ([]InventoryItem, error) {
	purchases, err := tx.PurchasesByBuyer(ctx, accountID)
	if err != nil {
		return nil, err
	}

	items := make([]InventoryItem, 0)
	index := make(map[string]int)
	for _, p := range purchases {
		i, ok := index[p.Item]
		if !ok {
			index[p.Item] = len(items)
			items = append(items, InventoryItem{Type: p.Item, Quantity: 1})
			continue
		}
		items[i].Quantity++
	}
	return items, nil
}

func coinHistory(ctx context.Context, tx store.Tx, accountID int64) (CoinHistory, error) {
	h := CoinHistory{
		Received: make([]ReceivedEntry, 0),
		Sent:     make([]SentEntry, 0),
	}

	received, err := tx.TransfersReceived(ctx, accountID)
	if err != nil {
		return h, err
	}
	for _, e := range received {
		h.Received = append(h.Received, ReceivedEntry{FromUser: e.Counterparty, Amount: e.Amount})
	}

	sent, err := tx.TransfersSent(ctx, accountID)
	if err != nil {
		return h, err
	}
	for _, e := range sent {
		h.Sent = append(h.Sent, SentEntry{ToUser: e.Counterparty, Amount: e.Amount})
	}
	return h, nil
}
