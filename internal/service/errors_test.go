package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"merchshop/internal/store"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		in       error
		wantKind ErrorKind
		want     error
	}{
		{name: "balance guard", in: store.ErrBalanceNotEnough, wantKind: KindInsufficientFunds, want: ErrInsufficientFunds},
		{name: "wrapped conflict", in: fmt.Errorf("commit: %w", store.ErrConflict), wantKind: KindConflict, want: store.ErrConflict},
		{name: "unknown failure", in: errors.New("broken pipe"), wantKind: KindPersistence, want: ErrPersistence},
		{name: "deadline", in: context.DeadlineExceeded, wantKind: KindCanceled, want: context.DeadlineExceeded},
		{name: "cancelled", in: fmt.Errorf("query: %w", context.Canceled), wantKind: KindCanceled, want: ErrCanceled},
		{name: "already translated", in: ErrUnknownItem, wantKind: KindNotFound, want: ErrUnknownItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.in)
			assert.Equal(t, tt.wantKind, KindOf(got))
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.NoError(t, translate(nil))
}

func TestLedgerError_IsMatchesCode(t *testing.T) {
	err := withCause(ErrConflict, store.ErrConflict)

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "conflict", CodeOf(err))
	assert.Equal(t, "ok", CodeOf(nil))
	assert.Equal(t, "persistence", CodeOf(errors.New("x")))
	assert.Contains(t, err.Error(), ErrConflict.Message)
	assert.Equal(t, "insufficient_funds", KindInsufficientFunds.String())
	assert.Equal(t, "canceled", CodeOf(translate(context.Canceled)))
}
