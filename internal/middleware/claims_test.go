package middleware

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromClaims(t *testing.T) {
	who := identityFromClaims(jwt.MapClaims{"sub": "bogus", "user_id": float64(12), "roles": []interface{}{"", " Teacher"}})
	require.Equal(t, uint(12), who.UserID)
	require.Equal(t, "teacher", who.Role)

	who = identityFromClaims(jwt.MapClaims{"sub": float64(-3), "id": "7"})
	require.Equal(t, uint(7), who.UserID)
	require.Empty(t, who.Role)

	who = identityFromClaims(jwt.MapClaims{"sub": 1.5})
	require.Zero(t, who.UserID)
}
