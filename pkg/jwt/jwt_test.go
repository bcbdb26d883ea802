package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func testGenerator() *Generator {
	return NewGenerator(TokenConfig{
		Secret:              "test-secret",
		Issuer:              "taskforge",
		AccessTokenDuration: time.Hour,
	})
}

func TestGenerateAccessToken(t *testing.T) {
	g := testGenerator()

	t.Run("round trip", func(t *testing.T) {
		token, expiresAt, err := g.GenerateAccessToken("user-123", "alice@example.com", "Alice", "org-456")
		assert.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

		claims, err := g.ValidateAccessToken(token)
		assert.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "Alice", claims.Name)
		assert.Equal(t, "org-456", claims.OrganizationID)
		assert.Equal(t, TokenTypeAccess, claims.TokenType)
		assert.Equal(t, "taskforge", claims.Issuer)
		assert.Equal(t, "user-123", claims.Subject)
	})

	t.Run("empty user id", func(t *testing.T) {
		_, _, err := g.GenerateAccessToken("", "alice@example.com", "Alice", "")
		assert.ErrorIs(t, err, ErrEmptyUserID)
	})

	t.Run("organization claim is optional", func(t *testing.T) {
		token, _, err := g.GenerateAccessToken("user-123", "", "", "")
		assert.NoError(t, err)

		claims, err := g.ValidateAccessToken(token)
		assert.NoError(t, err)
		assert.Empty(t, claims.OrganizationID)
	})
}

func TestValidateAccessToken(t *testing.T) {
	g := testGenerator()

	sign := func(t *testing.T, claims Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		assert.NoError(t, err)
		return token
	}

	t.Run("expired token", func(t *testing.T) {
		token, err := GenerateTokenWithExpiry("user-123", "", "", "test-secret", time.Now().Add(-time.Minute))
		assert.NoError(t, err)

		_, err = g.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewGenerator(TokenConfig{Secret: "other-secret", AccessTokenDuration: time.Hour})
		token, _, err := other.GenerateAccessToken("user-123", "", "", "")
		assert.NoError(t, err)

		_, err = g.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := g.ValidateAccessToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing token type passes", func(t *testing.T) {
		// Identity providers often omit the token_type claim.
		now := time.Now()
		token := sign(t, Claims{
			UserID: "user-123",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-123",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		})

		claims, err := g.ValidateAccessToken(token)
		assert.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
	})

	t.Run("wrong token type", func(t *testing.T) {
		now := time.Now()
		token := sign(t, Claims{
			UserID:    "user-123",
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-123",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		})

		_, err := g.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})
}
