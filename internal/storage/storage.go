// Package storage is durable client-side key/value storage: the process-level
// equivalent of a browser's localStorage. Every value is an independently
// serialized JSON string, and a missing key is a valid state.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopsync-dev/shopsync/internal/config"
)

// Keys owned by shopsync
const (
	KeyUserInfo        = "userInfo"
	KeyCartItems       = "cartItems"
	KeyShippingAddress = "shippingAddress"
	KeyAccessToken     = "access_token"
	KeyRefreshToken    = "refresh_token"
	KeyTempUserInfo    = "tempUserInfo"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend stores raw string values by key
type Backend interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg. scope namespaces keychain entries,
// typically the API base URL, so two storefronts never share credentials.
func Open(cfg config.StorageConfig, scope string) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case "memory":
		backend = NewMemory()
	case "file", "":
		backend, err = NewFile(cfg.Path)
	case "sqlite":
		backend, err = OpenSQLite(cfg.Path)
	case "redis":
		backend, err = OpenRedis(cfg.RedisAddress, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.SecureTokens {
		backend = NewSecure(backend, scope)
	}
	return backend, nil
}
