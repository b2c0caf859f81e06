package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/session"
	"github.com/shopsync-dev/shopsync/internal/storage"
)

func newBridge(t *testing.T) (*Bridge, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	return NewBridge(mem, zerolog.Nop()), mem
}

func mustGet(t *testing.T, b storage.Backend, key string) (string, bool) {
	t.Helper()
	v, ok, err := b.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestHydrate_EmptyStorageYieldsDefaults(t *testing.T) {
	b, _ := newBridge(t)

	snap := b.Hydrate(context.Background())

	assert.Nil(t, snap.Session)
	assert.NotNil(t, snap.Cart.Items)
	assert.Empty(t, snap.Cart.Items)
	assert.True(t, snap.Cart.ShippingAddress.IsZero())
}

func TestHydrate_ReadsStoredValues(t *testing.T) {
	b, mem := newBridge(t)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, storage.KeyUserInfo, `{"_id":"5","name":"Ada","token":"tok","issuedVia":"google"}`))
	require.NoError(t, mem.Set(ctx, storage.KeyCartItems, `[{"product":"1","name":"Mouse","qty":2}]`))
	require.NoError(t, mem.Set(ctx, storage.KeyShippingAddress, `{"city":"Lagos"}`))

	snap := b.Hydrate(ctx)

	require.NotNil(t, snap.Session)
	assert.Equal(t, "5", snap.Session.UserID)
	assert.Equal(t, "tok", snap.Session.Token)
	assert.Equal(t, session.PathwayGoogle, snap.Session.IssuedVia)
	require.Len(t, snap.Cart.Items, 1)
	assert.Equal(t, 2, snap.Cart.Items[0].Qty)
	assert.Equal(t, "Lagos", snap.Cart.ShippingAddress.City)
}

func TestHydrate_MalformedValueOnlyAffectsItsKey(t *testing.T) {
	keys := []string{storage.KeyUserInfo, storage.KeyCartItems, storage.KeyShippingAddress}

	valid := map[string]string{
		storage.KeyUserInfo:        `{"_id":"5","token":"tok"}`,
		storage.KeyCartItems:       `[{"product":"1","qty":1}]`,
		storage.KeyShippingAddress: `{"city":"Lagos"}`,
	}

	for _, broken := range keys {
		t.Run(broken, func(t *testing.T) {
			b, mem := newBridge(t)
			ctx := context.Background()
			for k, v := range valid {
				if k == broken {
					v = `{"truncated":`
				}
				require.NoError(t, mem.Set(ctx, k, v))
			}

			var snap Snapshot
			require.NotPanics(t, func() { snap = b.Hydrate(ctx) })

			if broken == storage.KeyUserInfo {
				assert.Nil(t, snap.Session)
			} else {
				require.NotNil(t, snap.Session)
				assert.Equal(t, "tok", snap.Session.Token)
			}

			if broken == storage.KeyCartItems {
				assert.Empty(t, snap.Cart.Items)
				assert.NotNil(t, snap.Cart.Items)
			} else {
				assert.Len(t, snap.Cart.Items, 1)
			}

			if broken == storage.KeyShippingAddress {
				assert.True(t, snap.Cart.ShippingAddress.IsZero())
			} else {
				assert.Equal(t, "Lagos", snap.Cart.ShippingAddress.City)
			}
		})
	}
}

func TestHydrate_SessionWithoutTokenIsAbsent(t *testing.T) {
	for name, raw := range map[string]string{
		"missing token": `{"_id":"5","name":"Ada","email":"ada@example.com"}`,
		"empty token":   `{"_id":"5","name":"Ada","token":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			b, mem := newBridge(t)
			ctx := context.Background()
			require.NoError(t, mem.Set(ctx, storage.KeyUserInfo, raw))
			require.NoError(t, mem.Set(ctx, storage.KeyCartItems, `[{"product":"1","qty":1}]`))

			snap := b.Hydrate(ctx)
			assert.Nil(t, snap.Session)
			assert.Len(t, snap.Cart.Items, 1)

			sessions := session.NewStore(snap.Session)
			_, ok := sessions.Get()
			assert.False(t, ok)
		})
	}
}

// failingBackend returns an error for every read
type failingBackend struct{ storage.Memory }

func (f *failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestHydrate_BackendErrorsYieldDefaults(t *testing.T) {
	b := NewBridge(&failingBackend{}, zerolog.Nop())

	snap := b.Hydrate(context.Background())
	assert.Nil(t, snap.Session)
	assert.Empty(t, snap.Cart.Items)
}

func TestPersist_FieldsAreIndependent(t *testing.T) {
	b, mem := newBridge(t)
	ctx := context.Background()

	items := []cart.Item{{ProductID: "1", Qty: 1}}
	require.NoError(t, b.Persist(ctx, Partial{CartItems: &items}))

	_, ok := mustGet(t, mem, storage.KeyUserInfo)
	assert.False(t, ok, "cart-only update must not write session data")
	_, ok = mustGet(t, mem, storage.KeyShippingAddress)
	assert.False(t, ok)

	require.NoError(t, b.Persist(ctx, Partial{Session: &session.Session{Token: "tok"}}))
	raw, ok := mustGet(t, mem, storage.KeyCartItems)
	require.True(t, ok)
	assert.JSONEq(t, `[{"product":"1","name":"","price":"","countInStock":0,"qty":1}]`, raw)
}

func TestBind_SessionWriteThrough(t *testing.T) {
	b, mem := newBridge(t)
	sessions := session.NewStore(nil)
	carts := cart.NewStore(cart.State{})
	b.Bind(sessions, carts)

	sessions.Set(session.Session{UserID: "1", DisplayName: "Ada", Token: "tok-1", IssuedVia: session.PathwayPassword})

	// Mirror is in place as soon as Set returns
	raw, ok := mustGet(t, mem, storage.KeyUserInfo)
	require.True(t, ok)
	var stored session.Session
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	current, _ := sessions.Get()
	assert.Equal(t, *current, stored)
}

func TestBind_EmptyTokenIsNotPersisted(t *testing.T) {
	b, mem := newBridge(t)
	sessions := session.NewStore(nil)
	b.Bind(sessions, cart.NewStore(cart.State{}))

	sessions.Set(session.Session{UserID: "1"})

	_, ok := mustGet(t, mem, storage.KeyUserInfo)
	assert.False(t, ok)
}

func TestBind_LogoutRemovesSessionKeysOnly(t *testing.T) {
	b, mem := newBridge(t)
	ctx := context.Background()
	sessions := session.NewStore(nil)
	carts := cart.NewStore(cart.State{})
	b.Bind(sessions, carts)

	sessions.Set(session.Session{UserID: "1", Token: "tok"})
	require.NoError(t, b.PersistTokens(ctx, "access", "refresh"))
	require.NoError(t, b.StageTempUserInfo(ctx, TempUserInfo{Email: "a@b.c"}))
	carts.AddItem(cart.Item{ProductID: "1", Qty: 1})
	carts.SaveShippingAddress(cart.ShippingAddress{City: "Lima"})

	sessions.Clear()

	for _, key := range []string{storage.KeyUserInfo, storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyTempUserInfo} {
		_, ok := mustGet(t, mem, key)
		assert.False(t, ok, "%s should be removed", key)
	}
	_, ok := mustGet(t, mem, storage.KeyCartItems)
	assert.True(t, ok)
	_, ok = mustGet(t, mem, storage.KeyShippingAddress)
	assert.True(t, ok)
}

func TestBind_CartChangesWriteOnlyTheirField(t *testing.T) {
	b, mem := newBridge(t)
	carts := cart.NewStore(cart.State{})
	b.Bind(session.NewStore(nil), carts)

	carts.SaveShippingAddress(cart.ShippingAddress{City: "Quito"})
	_, ok := mustGet(t, mem, storage.KeyCartItems)
	assert.False(t, ok)

	carts.AddItem(cart.Item{ProductID: "9", Qty: 1})
	raw, ok := mustGet(t, mem, storage.KeyCartItems)
	require.True(t, ok)
	assert.Contains(t, raw, `"product":"9"`)
}

func TestTokensRoundTrip(t *testing.T) {
	b, _ := newBridge(t)
	ctx := context.Background()

	access, refresh := b.Tokens(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh)

	require.NoError(t, b.PersistTokens(ctx, "a1", "r1"))
	access, refresh = b.Tokens(ctx)
	assert.Equal(t, "a1", access)
	assert.Equal(t, "r1", refresh)
}

func TestTempUserInfo(t *testing.T) {
	b, _ := newBridge(t)
	ctx := context.Background()

	_, ok := b.TempUserInfo(ctx)
	assert.False(t, ok)

	require.NoError(t, b.StageTempUserInfo(ctx, TempUserInfo{Email: "ada@example.com", Name: "Ada"}))
	info, ok := b.TempUserInfo(ctx)
	require.True(t, ok)
	assert.Equal(t, "Ada", info.Name)

	require.NoError(t, b.ClearTempUserInfo(ctx))
	_, ok = b.TempUserInfo(ctx)
	assert.False(t, ok)
}

func TestRemoveCartItems(t *testing.T) {
	b, mem := newBridge(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, storage.KeyCartItems, `[]`))
	require.NoError(t, mem.Set(ctx, storage.KeyShippingAddress, `{}`))

	require.NoError(t, b.RemoveCartItems(ctx))

	_, ok := mustGet(t, mem, storage.KeyCartItems)
	assert.False(t, ok)
	_, ok = mustGet(t, mem, storage.KeyShippingAddress)
	assert.True(t, ok)
}
