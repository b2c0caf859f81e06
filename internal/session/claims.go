package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the subset of backend token claims the client cares about
type TokenClaims struct {
	UserID  ClaimID `json:"user_id"`
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	IsAdmin bool    `json:"is_admin"`
	jwt.RegisteredClaims
}

// ClaimID holds a user id that the backend may encode as a number or a string
type ClaimID string

func (id *ClaimID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ClaimID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid user_id %s: %w", data, err)
	}
	*id = ClaimID(n.String())
	return nil
}

// ExpiresAtTime returns the token expiry, or the zero time when the token carries none
func (c *TokenClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Claims decodes a JWT without verifying its signature. Verification happens on the
// server; the client only reads claims for display.
func Claims(token string) (*TokenClaims, error) {
	var claims TokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &claims, nil
}
