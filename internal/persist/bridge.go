package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/session"
	"github.com/shopsync-dev/shopsync/internal/storage"
)

// ErrMalformedStoredState marks a stored value that could not be decoded.
// It is logged and the value is treated as absent; it never reaches callers of Hydrate.
var ErrMalformedStoredState = errors.New("malformed stored state")

// sessionKeys are removed on logout; cart keys survive it
var sessionKeys = []string{
	storage.KeyUserInfo,
	storage.KeyAccessToken,
	storage.KeyRefreshToken,
	storage.KeyTempUserInfo,
}

// Snapshot is the durable copy of session and cart state
type Snapshot struct {
	Session *session.Session
	Cart    cart.State
}

// Partial is a persist request; nil fields are left as they are
type Partial struct {
	Session         *session.Session
	CartItems       *[]cart.Item
	ShippingAddress *cart.ShippingAddress
}

// TempUserInfo is the transient staging value kept while a sign-in is in flight
type TempUserInfo struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Bridge mirrors session and cart state to durable storage. It never originates session data.
type Bridge struct {
	backend storage.Backend
	logger  zerolog.Logger
}

// NewBridge creates a bridge over backend
func NewBridge(backend storage.Backend, logger zerolog.Logger) *Bridge {
	return &Bridge{backend: backend, logger: logger}
}

// Hydrate reads the persisted snapshot. Absent or malformed values become defaults,
// and a stored session without a token counts as absent.
func (b *Bridge) Hydrate(ctx context.Context) Snapshot {
	snap := Snapshot{Cart: cart.State{Items: []cart.Item{}}}

	var sess session.Session
	if b.read(ctx, storage.KeyUserInfo, &sess) {
		if sess.Token != "" {
			snap.Session = &sess
		} else {
			b.logger.Warn().Str("key", storage.KeyUserInfo).Msg("Ignoring stored session without a token")
		}
	}

	var items []cart.Item
	if b.read(ctx, storage.KeyCartItems, &items) && items != nil {
		snap.Cart.Items = items
	}

	var addr cart.ShippingAddress
	if b.read(ctx, storage.KeyShippingAddress, &addr) {
		snap.Cart.ShippingAddress = addr
	}

	return snap
}

// read decodes key into v and reports whether a usable value was found
func (b *Bridge) read(ctx context.Context, key string, v any) bool {
	raw, ok, err := b.backend.Get(ctx, key)
	if err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("Failed to read stored state, using default")
		return false
	}
	if !ok || raw == "" || raw == "null" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		b.logger.Warn().
			Err(fmt.Errorf("%w: %s: %v", ErrMalformedStoredState, key, err)).
			Str("key", key).
			Msg("Ignoring malformed stored value")
		return false
	}
	return true
}

// Persist writes each present field of p independently
func (b *Bridge) Persist(ctx context.Context, p Partial) error {
	var errs []error
	if p.Session != nil {
		errs = append(errs, b.write(ctx, storage.KeyUserInfo, p.Session))
	}
	if p.CartItems != nil {
		errs = append(errs, b.write(ctx, storage.KeyCartItems, *p.CartItems))
	}
	if p.ShippingAddress != nil {
		errs = append(errs, b.write(ctx, storage.KeyShippingAddress, *p.ShippingAddress))
	}
	return errors.Join(errs...)
}

// PersistTokens stores the backend-issued access and refresh tokens
func (b *Bridge) PersistTokens(ctx context.Context, access, refresh string) error {
	var errs []error
	if access != "" {
		errs = append(errs, b.write(ctx, storage.KeyAccessToken, access))
	}
	if refresh != "" {
		errs = append(errs, b.write(ctx, storage.KeyRefreshToken, refresh))
	}
	return errors.Join(errs...)
}

// Tokens returns the stored access and refresh tokens, empty when absent
func (b *Bridge) Tokens(ctx context.Context) (access, refresh string) {
	b.read(ctx, storage.KeyAccessToken, &access)
	b.read(ctx, storage.KeyRefreshToken, &refresh)
	return access, refresh
}

// ClearSession removes every session-related key and leaves cart keys alone
func (b *Bridge) ClearSession(ctx context.Context) error {
	var errs []error
	for _, key := range sessionKeys {
		if err := b.backend.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveCartItems deletes the persisted cart lines
func (b *Bridge) RemoveCartItems(ctx context.Context) error {
	if err := b.backend.Remove(ctx, storage.KeyCartItems); err != nil {
		return fmt.Errorf("failed to remove %s: %w", storage.KeyCartItems, err)
	}
	return nil
}

// StageTempUserInfo stores the staging value shown while a sign-in completes
func (b *Bridge) StageTempUserInfo(ctx context.Context, info TempUserInfo) error {
	return b.write(ctx, storage.KeyTempUserInfo, info)
}

// TempUserInfo returns the staging value, if any
func (b *Bridge) TempUserInfo(ctx context.Context) (TempUserInfo, bool) {
	var info TempUserInfo
	ok := b.read(ctx, storage.KeyTempUserInfo, &info)
	return info, ok
}

// ClearTempUserInfo removes the staging value
func (b *Bridge) ClearTempUserInfo(ctx context.Context) error {
	if err := b.backend.Remove(ctx, storage.KeyTempUserInfo); err != nil {
		return fmt.Errorf("failed to remove %s: %w", storage.KeyTempUserInfo, err)
	}
	return nil
}

// Bind subscribes the bridge to both stores so every mutation is written through
// before the mutating call returns. The returned function unsubscribes.
func (b *Bridge) Bind(sessions *session.Store, carts *cart.Store) func() {
	ctx := context.Background()

	unbindSession := sessions.Subscribe(func(prev, next *session.Session) {
		if next == nil {
			if err := b.ClearSession(ctx); err != nil {
				b.logger.Error().Err(err).Msg("Failed to clear persisted session")
			}
			return
		}
		if next.Token == "" {
			return
		}
		if err := b.Persist(ctx, Partial{Session: next}); err != nil {
			b.logger.Error().Err(err).Str("user_id", next.UserID).Msg("Failed to persist session")
		}
	})

	unbindCart := carts.Subscribe(func(change cart.Change, state cart.State) {
		var p Partial
		if change&cart.ChangeItems != 0 {
			p.CartItems = &state.Items
		}
		if change&cart.ChangeShippingAddress != 0 {
			p.ShippingAddress = &state.ShippingAddress
		}
		if err := b.Persist(ctx, p); err != nil {
			b.logger.Error().Err(err).Msg("Failed to persist cart")
		}
	})

	return func() {
		unbindSession()
		unbindCart()
	}
}

func (b *Bridge) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.setRaw(ctx, key, string(data))
}

func (b *Bridge) setRaw(ctx context.Context, key, value string) error {
	if err := b.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}
