package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"not found", NotFound("coins.find", "coin not found"), KindNotFound},
		{"wrapped with fmt", fmt.Errorf("outer: %w", InvalidState("buy", "halted")), KindInvalidState},
		{"wrap helper", Wrap(KindPersistence, "trades.create", errors.New("db down")), KindPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindPersistence, "op", nil))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: KindPersistence, Op: "coins.update", Msg: "write failed", Err: cause}

	assert.Equal(t, "coins.update: write failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "persistence_failure", err.Kind.String())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Conflict("coins.update", "version mismatch")))
	assert.True(t, Retryable(Wrap(KindPersistence, "op", errors.New("x"))))
	assert.False(t, Retryable(InvalidArgument("buy", "amount must be positive")))
	assert.False(t, Is(nil, KindNotFound))
}
