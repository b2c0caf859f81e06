package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopsync-dev/shopsync/internal/assert"
)

const (
	accessTokenTTL  = 30 * 24 * time.Hour
	refreshTokenTTL = 90 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 tokens
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates an issuer with secret
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not initialized")
	}
	return &TokenIssuer{secret: []byte(secret), now: time.Now}, nil
}

// GenerateToken creates a new access token for a user
func (t *TokenIssuer) GenerateToken(user *User) (string, error) {
	return t.sign(user, tokenTypeAccess, accessTokenTTL)
}

// GenerateRefreshToken creates a refresh token for a user
func (t *TokenIssuer) GenerateRefreshToken(user *User) (string, error) {
	return t.sign(user, tokenTypeRefresh, refreshTokenTTL)
}

func (t *TokenIssuer) sign(user *User, tokenType string, ttl time.Duration) (string, error) {
	assert.NotEmpty(user.ID, "user id")
	now := t.now()
	claims := JWTClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		IsAdmin:   user.IsAdmin,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken validates an access token and returns the claims
func (t *TokenIssuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("not an access token")
	}
	return claims, nil
}

// identityClaims are the fields read from a provider identity token
type identityClaims struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified *bool  `json:"email_verified"`
	jwt.RegisteredClaims
}

// parseIdentityToken reads a Google identity token without verifying it.
// The dev server trusts its claims.
func parseIdentityToken(credential string) (*identityClaims, error) {
	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(credential, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode identity token: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("identity token has no email claim")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, errors.New("identity token email is not verified")
	}
	return &claims, nil
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
