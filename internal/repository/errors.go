package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"merchshop/internal/store"
)

// MySQL server error numbers the ledger reacts to.
const (
	erDupEntry        = 1062
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
)

// mapError turns driver and gorm errors into store errors. Anything it does
// not recognise is returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erDupEntry:
			return store.ErrDuplicate
		case erLockDeadlock, erLockWaitTimeout:
			return store.ErrConflict
		}
	}
	return err
}
