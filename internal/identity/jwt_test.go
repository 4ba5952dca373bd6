package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "naturewatch/pkg/domain-errors"
)

const testKey = "test-signing-key"

func signToken(t *testing.T, key string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenReturnsIdentity(t *testing.T) {
	v := NewValidator(testKey)
	userID := uuid.NewString()

	token := signToken(t, testKey, Claims{
		UserID:           userID,
		ExpertiseLevel:   "expert",
		CredibilityScore: 72,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID.String())
	assert.Equal(t, "expert", identity.ExpertiseLevel)
	assert.Equal(t, 72, identity.CredibilityScore)
}

func TestValidateTokenRejections(t *testing.T) {
	v := NewValidator(testKey)
	userID := uuid.NewString()

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "garbage",
			token: "not-a-token",
		},
		{
			name: "wrong key",
			token: signToken(t, "other-key", Claims{
				UserID: userID,
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}),
		},
		{
			name: "expired",
			token: signToken(t, testKey, Claims{
				UserID: userID,
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
			}),
		},
		{
			name: "missing user id",
			token: signToken(t, testKey, Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(tt.token)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}
