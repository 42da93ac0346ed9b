package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"merchshop/internal/catalog"
	"merchshop/internal/infrastructure/lock"
	"merchshop/internal/model"
	"merchshop/internal/store"
	"merchshop/internal/store/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(raw string) (string, error) { return "h:" + raw, nil }

func (plainHasher) Verify(raw, stored string) bool { return stored == "h:"+raw }

type testEnv struct {
	store    *memory.Store
	accounts *AccountService
	ledger   *LedgerService
	history  *HistoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat, err := catalog.New(catalog.DefaultItems)
	require.NoError(t, err)

	st := memory.New()
	return &testEnv{
		store:    st,
		accounts: NewAccountService(st, plainHasher{}, 1000),
		ledger: NewLedgerService(st, lock.NewLocalLocker(), cat, LedgerOptions{
			MaxRetries:   2,
			RetryBackoff: time.Millisecond,
			EventTopic:   "ledger-events",
		}),
		history: NewHistoryService(st),
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.Account {
	t.Helper()
	a, _, err := e.accounts.GetOrCreate(context.Background(), name, name+"-pass")
	require.NoError(t, err)
	return a
}

func (e *testEnv) balance(t *testing.T, id int64) int64 {
	t.Helper()
	a, err := e.accounts.Account(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func (e *testEnv) totalCoins() int64 {
	var total int64
	for _, a := range e.store.Accounts() {
		total += a.Balance
	}
	return total
}

func (e *testEnv) purchases(t *testing.T, buyerID int64) []*model.PurchaseRecord {
	t.Helper()
	var out []*model.PurchaseRecord
	err := e.store.ReadSnapshot(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.PurchasesByBuyer(context.Background(), buyerID)
		return err
	})
	require.NoError(t, err)
	return out
}

func (e *testEnv) transfersSent(t *testing.T, senderID int64) []store.TransferEntry {
	t.Helper()
	var out []store.TransferEntry
	err := e.store.ReadSnapshot(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.TransfersSent(context.Background(), senderID)
		return err
	})
	require.NoError(t, err)
	return out
}
