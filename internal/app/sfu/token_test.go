package sfu

import (
	"testing"
	"time"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verify checks tok the way the media server does.
func verify(tok, issuer, secret string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tok, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	return claims, err
}

func TestIssueAndVerify(t *testing.T) {
	iss := NewTokenIssuer("key", "secret", time.Hour)
	tok, err := iss.Issue("R1", domain.Participant{StableID: "eve_x", Name: "Eve"})
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := verify(tok, "key", "secret", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("R1"), claims.Room)
	assert.Equal(t, "eve_x", claims.Subject)
	assert.Equal(t, "Eve", claims.Name)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenRejectedWithForeignSecretOrLate(t *testing.T) {
	iss := NewTokenIssuer("key", "secret", time.Minute)
	tok, err := iss.Issue("R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)

	_, err = verify(tok, "key", "other", time.Now())
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = verify(tok, "key", "secret", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = verify(tok, "someone-else", "secret", time.Now())
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestTokenUsesIssuerClock(t *testing.T) {
	iss := NewTokenIssuer("key", "secret", time.Minute)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return at }
	tok, err := iss.Issue("R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)

	claims, err := verify(tok, "key", "secret", at.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.Equal(at.Add(time.Minute)))
}

func TestDisabledIssuer(t *testing.T) {
	iss := NewTokenIssuer("", "", time.Hour)
	assert.False(t, iss.Enabled())
	tok, err := iss.Issue("R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)
	assert.Empty(t, tok)
}
