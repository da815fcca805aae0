package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	token, expires, err := tokens.Issue("acct_123")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	accountID, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acct_123", accountID)
}

func TestTokensRejectExpired(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Minute)
	require.NoError(t, err)

	issuedAt := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issuedAt }
	token, _, err := tokens.Issue("acct_123")
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(token)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestTokensRejectWrongSecret(t *testing.T) {
	issuer, err := NewTokens("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokens("secret-b", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue("acct_123")
	require.NoError(t, err)
	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokensRejectNoneAlgorithm(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "acct_123",
		Issuer:    TokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Verify(unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens("  ", time.Hour)
	assert.ErrorIs(t, err, ErrTokenSecretMissing)
}
