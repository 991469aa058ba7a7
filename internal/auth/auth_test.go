package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	require.NoError(t, CheckPassword(hash, "s3cret"))
	require.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidPassword)
	require.ErrorIs(t, CheckPassword("", "s3cret"), ErrNotConfigured)
}

func TestJWT(t *testing.T) {
	tok, err := SignJWT("admin", RoleAdmin, "key", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "key")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, claims.Role)
	require.Equal(t, "admin", claims.Subject)

	_, err = ParseJWT(tok, "other-key")
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignJWT("admin", RoleAdmin, "key", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "key")
	require.ErrorIs(t, err, ErrInvalidToken)
}
