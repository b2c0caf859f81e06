package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "shopsync-cli"

// SecureKeys are routed to the OS keychain when secure tokens are enabled
var SecureKeys = []string{KeyUserInfo, KeyAccessToken, KeyRefreshToken}

// Secure keeps credential-bearing keys in the OS keychain/credential manager
// and delegates everything else to the wrapped backend
type Secure struct {
	inner  Backend
	scope  string
	secure map[string]bool
}

// NewSecure wraps inner. scope namespaces the keychain accounts.
func NewSecure(inner Backend, scope string) *Secure {
	secure := make(map[string]bool, len(SecureKeys))
	for _, k := range SecureKeys {
		secure[k] = true
	}
	return &Secure{inner: inner, scope: scope, secure: secure}
}

// account returns a unique keychain account per scope and key
func (s *Secure) account(key string) string {
	return fmt.Sprintf("%s-%s", key, s.scope)
}

func (s *Secure) Get(ctx context.Context, key string) (string, bool, error) {
	if !s.secure[key] {
		return s.inner.Get(ctx, key)
	}
	v, err := keyring.Get(keyringService, s.account(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load %s from keychain: %w", key, err)
	}
	return v, true, nil
}

func (s *Secure) Set(ctx context.Context, key, value string) error {
	if !s.secure[key] {
		return s.inner.Set(ctx, key, value)
	}
	if err := keyring.Set(keyringService, s.account(key), value); err != nil {
		return fmt.Errorf("failed to save %s to keychain: %w", key, err)
	}
	return nil
}

func (s *Secure) Remove(ctx context.Context, key string) error {
	if !s.secure[key] {
		return s.inner.Remove(ctx, key)
	}
	if err := keyring.Delete(keyringService, s.account(key)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete %s from keychain: %w", key, err)
	}
	return nil
}

func (s *Secure) Close() error {
	return s.inner.Close()
}
