package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/eris-support/support-desk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	tok, exp, err := tm.GenerateToken(&domain.User{ID: 42, Role: domain.UserRoleAdmin})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(tok)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, domain.UserRoleAdmin, claims.Role)

	id, err := claims.UserID()
	require.NoError(t, err)
	require.EqualValues(t, 42, id)
}

func TestParseTokenRejectsForeignAndExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tok, _, err := NewTokenManager("other", 1).GenerateToken(&domain.User{ID: 1})
	require.NoError(t, err)
	_, err = tm.ParseToken(tok)
	require.Error(t, err)

	tok, _, err = tm.GenerateToken(&domain.User{ID: 1})
	require.NoError(t, err)
	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseToken(tok)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestClaimsUserIDRejectsGarbage(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}
	_, err := c.UserID()
	require.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short", 4)
	require.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("long enough", 4)
	require.NoError(t, err)
	require.NoError(t, ComparePassword(hash, "long enough"))
	require.Error(t, ComparePassword(hash, "wrong one!"))
}
