package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestExchangePassword_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/users/login", r.URL.Path)

		var body PasswordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body.Email)
		assert.Equal(t, "secret", body.Password)

		writeJSON(w, http.StatusOK, map[string]any{
			"id": 7, "_id": 7, "username": "ada@example.com", "email": "ada@example.com",
			"name": "Ada", "isAdmin": true, "token": "jwt-1",
		})
	})

	sess, err := c.ExchangePassword(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "7", sess.UserID)
	assert.Equal(t, "Ada", sess.DisplayName)
	assert.True(t, sess.IsAdmin)
	assert.Equal(t, "jwt-1", sess.Token)
	assert.Equal(t, session.PathwayPassword, sess.IssuedVia)
}

func TestExchangePassword_Rejected(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
	})

	_, err := c.ExchangePassword(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, "No active account found with the given credentials", Message(err))
	assert.Equal(t, 1, *calls, "credential failures are never retried")
}

func TestExchangePassword_MissingFieldsNeverSent(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.ExchangePassword(context.Background(), "", "")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, 0, *calls)
}

func TestExchangePassword_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := c.ExchangePassword(context.Background(), "a@b.c", "pw")
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, "Bad Gateway", Message(err))
}

func TestExchangePassword_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).ExchangePassword(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.NotEmpty(t, Message(err))
}

func TestExchangeGoogleToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/google", r.URL.Path)
		var body GoogleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id-token", body.Credential)

		writeJSON(w, http.StatusOK, map[string]any{
			"user":   map[string]any{"_id": "u-1", "email": "g@example.com", "name": "Grace"},
			"tokens": map[string]string{"access": "acc", "refresh": "ref"},
		})
	})

	res, err := c.ExchangeGoogleToken(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "u-1", res.Session.UserID)
	assert.Equal(t, "acc", res.Session.Token, "access token doubles as the session token")
	assert.Equal(t, session.PathwayGoogle, res.Session.IssuedVia)
	assert.Equal(t, Tokens{Access: "acc", Refresh: "ref"}, res.Tokens)
}

func TestExchangeGitHubCode(t *testing.T) {
	used := map[string]bool{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body GitHubRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if used[body.Code] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "message": "The code has already been used"})
			return
		}
		used[body.Code] = true
		writeJSON(w, http.StatusOK, map[string]any{
			"user":  map[string]any{"_id": 3, "username": "octo"},
			"token": "gh-jwt",
		})
	})

	sess, err := c.ExchangeGitHubCode(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "3", sess.UserID)
	assert.Equal(t, "octo", sess.DisplayName)
	assert.Equal(t, "gh-jwt", sess.Token)

	_, err = c.ExchangeGitHubCode(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGrant))
	assert.Equal(t, "The code has already been used", Message(err))
}

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     error
		wantKind error
		wantMsg  string
	}{
		{name: "message wins", status: 400, body: `{"message":"m","detail":"d"}`, kind: ErrInvalidCredentials, wantKind: ErrInvalidCredentials, wantMsg: "m"},
		{name: "detail", status: 401, body: `{"detail":"d"}`, kind: ErrInvalidCredentials, wantKind: ErrInvalidCredentials, wantMsg: "d"},
		{name: "oauth description", status: 400, body: `{"error_description":"expired"}`, kind: ErrInvalidGrant, wantKind: ErrInvalidGrant, wantMsg: "expired"},
		{name: "grant code overrides kind", status: 400, body: `{"error":"bad_verification_code"}`, kind: ErrInvalidCredentials, wantKind: ErrInvalidGrant, wantMsg: "bad_verification_code"},
		{name: "plain text body", status: 404, body: "not here", wantKind: ErrNetwork, wantMsg: "not here"},
		{name: "empty body", status: 500, body: "", kind: ErrInvalidCredentials, wantKind: ErrNetwork, wantMsg: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newStatusError(tt.status, []byte(tt.body), tt.kind)
			assert.True(t, errors.Is(err, tt.wantKind), "got kind %v", err.Kind)
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"x-1","c":null}`), &v))
	assert.Equal(t, ID("12"), v.A)
	assert.Equal(t, ID("x-1"), v.B)
	assert.Equal(t, ID(""), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}

func sampleOrder() OrderRequest {
	return OrderRequest{
		OrderItems:      []OrderItem{{Product: "1", Name: "Mouse", Price: "10.00", Qty: 2}},
		ShippingAddress: cart.ShippingAddress{Address: "1 Main", City: "Oslo"},
		PaymentMethod:   "PayPal",
		ItemsPrice:      "20.00",
		TaxPrice:        "3.00",
		ShippingPrice:   "10.00",
		TotalPrice:      "33.00",
	}
}

func TestCreateOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "33.00", body.TotalPrice)

		writeJSON(w, http.StatusCreated, map[string]any{
			"_id": 41, "totalPrice": "33.00", "isPaid": false,
			"orderItems": []map[string]any{{"_id": 1, "product": 1, "productname": "Mouse", "qty": 2, "price": "10.00"}},
		})
	})

	order, err := c.CreateOrder(context.Background(), "tok", sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, ID("41"), order.ID)
	require.Len(t, order.OrderItems, 1)
	assert.Equal(t, "Mouse", order.OrderItems[0].DisplayName())
}

func TestCreateOrder_RequiresToken(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.CreateOrder(context.Background(), "", sampleOrder())
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
	assert.Equal(t, 0, *calls)
}

func TestCreateOrder_EmptyOrderRejected(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	req := sampleOrder()
	req.OrderItems = nil
	_, err := c.CreateOrder(context.Background(), "tok", req)
	assert.Error(t, err)
	assert.Equal(t, 0, *calls)
}

func TestGetOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders/41" {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Order does not exist"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"_id": "41", "paymentMethod": "PayPal"})
	})

	order, err := c.GetOrder(context.Background(), "tok", "41")
	require.NoError(t, err)
	assert.Equal(t, "PayPal", order.PaymentMethod)

	_, err = c.GetOrder(context.Background(), "tok", "99")
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, "Order does not exist", Message(err))
}
