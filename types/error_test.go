package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "relay failed").
		WithCause(root).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true)

	assert.Equal(t, ErrUpstreamError, CodeOf(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "[UPSTREAM_ERROR] relay failed: root", err.Error())
}

func TestIsCode_WalksNestedErrors(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrDecodeFailure, "bad payload")
	outer := NewError(ErrSessionFailed, "session aborted").WithCause(inner)
	wrapped := fmt.Errorf("tick: %w", outer)

	assert.True(t, IsCode(wrapped, ErrSessionFailed))
	assert.True(t, IsCode(wrapped, ErrDecodeFailure))
	assert.False(t, IsCode(wrapped, ErrRoleViolation))
	assert.False(t, IsCode(errors.New("plain"), ErrDecodeFailure))
	assert.False(t, IsCode(nil, ErrDecodeFailure))
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("x"), http.StatusInternalServerError},
		{"already initialized", NewError(ErrAlreadyInitialized, "x"), http.StatusConflict},
		{"overflow", NewError(ErrInboxOverflow, "x"), http.StatusConflict},
		{"invalid", NewError(ErrInvalidRequest, "x"), http.StatusBadRequest},
		{"not found", NewError(ErrNotFound, "x"), http.StatusNotFound},
		{"explicit status wins", NewError(ErrNotFound, "x").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot},
		{"wrapped", fmt.Errorf("ctx: %w", NewError(ErrNotInitialized, "x")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrRoleViolation, "%s may not broadcast", "client-1")
	assert.Equal(t, "client-1 may not broadcast", err.Message)
	assert.False(t, IsRetryable(err))
}
