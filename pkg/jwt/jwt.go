// Package jwt provides JWT token generation and validation utilities.
//
// Access tokens are minted by the upstream identity provider and carry
// identity claims (subject, email, name) plus an optional organization
// claim naming the caller's active organization. The claim is a hint, not a
// trust anchor: membership is re-validated against storage on every
// request. Issuing tokens locally exists for development, tests and the
// admin CLI. WebSocket handshakes do not use tokens at all; they redeem
// single-use Redis tickets.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when user_id is empty.
	ErrEmptyUserID = errors.New("user_id cannot be empty")
	// ErrInvalidTokenType is returned when token type is invalid.
	ErrInvalidTokenType = errors.New("invalid token type")
)

// TokenType represents the type of JWT token.
type TokenType string

// TokenTypeAccess is an access token issued by the identity provider.
// Tokens carrying any other type are rejected.
const TokenTypeAccess TokenType = "access"

// Claims represents the JWT claims structure carried by access tokens.
// Identity only; roles and memberships live in the database.
type Claims struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	TokenType TokenType `json:"token_type,omitempty"`

	// OrganizationID names the caller's active organization. Tokens
	// without it can only reach the bootstrap, organization-listing and
	// invitation-acceptance endpoints.
	OrganizationID string `json:"org,omitempty"`

	jwt.RegisteredClaims
}

// TokenConfig holds configuration for token generation.
type TokenConfig struct {
	Secret              string
	Issuer              string
	AccessTokenDuration time.Duration
}

// Generator handles JWT token generation and validation.
type Generator struct {
	config TokenConfig
}

// NewGenerator creates a new token generator.
func NewGenerator(config TokenConfig) *Generator {
	return &Generator{config: config}
}

// GenerateAccessToken creates an access token carrying identity claims and
// an optional active-organization claim. Production deployments receive
// these from the identity provider; this path exists for local development,
// tests and the admin CLI.
func (g *Generator) GenerateAccessToken(userID, email, name, organizationID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrEmptyUserID
	}

	now := time.Now()
	expiresAt := now.Add(g.config.AccessTokenDuration)

	claims := Claims{
		UserID:         userID,
		Email:          email,
		Name:           name,
		TokenType:      TokenTypeAccess,
		OrganizationID: organizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(g.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signedToken, expiresAt, nil
}

// ValidateToken validates the token and returns the claims.
func (g *Generator) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(tokenString, g.config.Secret)
}

// ValidateAccessToken validates an access token specifically. Tokens
// minted by identity providers often omit the token_type claim, so an empty
// type passes; any other value is rejected.
func (g *Generator) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := g.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != TokenTypeAccess && claims.TokenType != "" {
		return nil, ErrInvalidTokenType
	}

	return claims, nil
}

// ValidateToken validates the token and returns the claims.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateTokenWithExpiry creates a token that expires at a specific time.
func GenerateTokenWithExpiry(userID, email, name, secret string, expiresAt time.Time) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		Name:      name,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
