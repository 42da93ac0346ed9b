package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"merchshop/internal/model"
	"merchshop/internal/store"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

// GetByIDForUpdate reads the row with an exclusive row lock held until tx ends.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("username = ?", username).First(&account).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

// CreateIfAbsent inserts the account unless the username exists. It reports
// whether the row was inserted.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, account *model.Account) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoNothing: true,
		}).
		Create(account)
	if result.Error != nil {
		return false, mapError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// AdjustBalance applies delta in a single conditional update, so the balance
// can not go negative even without a prior read.
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx *gorm.DB, id int64, delta int64) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND balance + ? >= 0", id, delta).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", delta),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return mapError(result.Error)
	}

	if result.RowsAffected == 0 {
		_, err := r.GetByID(ctx, tx, id)
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return store.ErrBalanceNotEnough
	}
	return nil
}
