package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	err := NewNoDestinationsError()
	assert.Contains(t, err.Error(), string(ErrCodeNoDestinations))
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
}

func TestWrapError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(cause, ErrCodeProvisioning, "provisioning poll failed", http.StatusBadGateway)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetAppError_FromChain(t *testing.T) {
	inner := NewAlreadyLiveError()
	wrapped := fmt.Errorf("go live: %w", inner)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeAlreadyLive, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
