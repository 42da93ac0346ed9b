package service

import (
	"context"
	"errors"
	"strings"

	"merchshop/internal/model"
	"merchshop/internal/store"
	"merchshop/pkg/logger"
)

// CredentialHasher hashes and verifies raw credentials. The scheme is up to
// the implementation.
type CredentialHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, stored string) bool
}

type AccountService struct {
	store           store.Store
	hasher          CredentialHasher
	startingBalance int64
}

func NewAccountService(st store.Store, hasher CredentialHasher, startingBalance int64) *AccountService {
	return &AccountService{
		store:           st,
		hasher:          hasher,
		startingBalance: startingBalance,
	}
}

// GetOrCreate returns the account for username, creating it with the starting
// balance on first use. The bool reports whether this call created it.
//
// Two concurrent first calls for the same username create exactly one row; the
// caller that loses the insert is checked against the winner's credential.
func (s *AccountService) GetOrCreate(ctx context.Context, username, rawCredential string) (*model.Account, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || rawCredential == "" {
		return nil, false, ErrInvalidInput
	}

	account, err := s.FindByUsername(ctx, username)
	if err == nil {
		if !s.hasher.Verify(rawCredential, account.PasswordHash) {
			return nil, false, ErrInvalidCredentials
		}
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	hash, err := s.hasher.Hash(rawCredential)
	if err != nil {
		return nil, false, withCause(ErrPersistence, err)
	}

	account = &model.Account{
		Username:     username,
		PasswordHash: hash,
		Balance:      s.startingBalance,
	}

	var created bool
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.CreateAccount(ctx, account)
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		created, err = false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}

	if created {
		logger.Log.Info("account created",
			logger.Int64("account_id", account.ID),
			logger.String("username", username),
			logger.Int64("balance", account.Balance),
		)
		return account, true, nil
	}

	// lost the creation race
	account, err = s.FindByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if !s.hasher.Verify(rawCredential, account.PasswordHash) {
		return nil, false, ErrInvalidCredentials
	}
	return account, false, nil
}

// Authenticate checks the credential of an existing account. Unknown users and
// wrong credentials are indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, username, rawCredential string) (*model.Account, error) {
	account, err := s.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(rawCredential, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (s *AccountService) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	var account *model.Account
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.AccountByUsername(ctx, username)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return account, nil
}

func (s *AccountService) Account(ctx context.Context, id int64) (*model.Account, error) {
	var account *model.Account
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.AccountByID(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, translate(err)
	}
	return account, nil
}
