package service

import (
	"context"
	"errors"
	"fmt"

	"merchshop/internal/store"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindInsufficientFunds
	KindConflict
	KindPersistence
	KindAuth
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	case KindAuth:
		return "auth"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// LedgerError is returned by every service operation. Two LedgerErrors match
// under errors.Is when their codes are equal, so callers compare against the
// sentinels below.
type LedgerError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidAmount = &LedgerError{Kind: KindValidation, Code: "invalid_amount", Message: "Amount must be positive"}
	ErrSelfTransfer  = &LedgerError{Kind: KindValidation, Code: "self_transfer", Message: "Cannot send coins to yourself"}
	ErrInvalidInput  = &LedgerError{Kind: KindValidation, Code: "invalid_input", Message: "Username and password are required"}

	ErrUnknownRecipient = &LedgerError{Kind: KindNotFound, Code: "unknown_recipient", Message: "Recipient not found"}
	ErrUnknownItem      = &LedgerError{Kind: KindNotFound, Code: "unknown_item", Message: "Item not found"}
	ErrAccountNotFound  = &LedgerError{Kind: KindNotFound, Code: "account_not_found", Message: "Account not found"}

	ErrInsufficientFunds = &LedgerError{Kind: KindInsufficientFunds, Code: "insufficient_funds", Message: "Insufficient coins"}

	ErrConflict = &LedgerError{Kind: KindConflict, Code: "conflict", Message: "Concurrent update, please retry"}

	ErrPersistence = &LedgerError{Kind: KindPersistence, Code: "persistence", Message: "Storage unavailable"}

	ErrInvalidCredentials = &LedgerError{Kind: KindAuth, Code: "invalid_credentials", Message: "Incorrect password"}

	// ErrCanceled means the caller gave up; storage itself may be healthy.
	ErrCanceled = &LedgerError{Kind: KindCanceled, Code: "canceled", Message: "Request canceled"}
)

// KindOf reports the kind of a service error; errors not produced by this
// package count as persistence failures.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindPersistence
}

// CodeOf returns the error code, or "ok" for nil.
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrPersistence.Code
}

func withCause(sentinel *LedgerError, cause error) *LedgerError {
	e := *sentinel
	e.Err = cause
	return &e
}

// translate maps storage errors onto the service taxonomy. Errors that are
// already LedgerErrors pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrBalanceNotEnough):
		return ErrInsufficientFunds
	case errors.Is(err, store.ErrConflict):
		return withCause(ErrConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return withCause(ErrCanceled, err)
	default:
		return withCause(ErrPersistence, err)
	}
}
