package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_IssueAndValidate(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)

	token, err := svc.IssueToken("op-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	operatorID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", operatorID)
}

func TestAuth_RejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService("secret-a", time.Hour)
	validator := NewAuthService("secret-b", time.Hour)

	token, err := issuer.IssueToken("op-1")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuth_RejectsExpiredToken(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour).(*authService)
	svc.tokenTTL = -time.Minute

	token, err := svc.IssueToken("op-1")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuth_RejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)
	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
