package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopsync-dev/shopsync/internal/cart"
)

// OrderItem is one order line. Prices are decimal strings.
type OrderItem struct {
	ID          ID     `json:"_id,omitempty"`
	Product     ID     `json:"product"`
	Name        string `json:"name,omitempty"`
	ProductName string `json:"productname,omitempty"`
	Image       string `json:"image,omitempty"`
	Price       string `json:"price"`
	Qty         int    `json:"qty"`
}

// DisplayName returns the item name under either field the API uses
func (i OrderItem) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.ProductName
}

// OrderRequest represents the order creation request
type OrderRequest struct {
	OrderItems      []OrderItem          `json:"orderItems" validate:"required,min=1,dive"`
	ShippingAddress cart.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string               `json:"paymentMethod" validate:"required"`
	ItemsPrice      string               `json:"itemsPrice" validate:"required"`
	TaxPrice        string               `json:"taxPrice"`
	ShippingPrice   string               `json:"shippingPrice"`
	TotalPrice      string               `json:"totalPrice" validate:"required"`
}

// Order represents a placed order
type Order struct {
	ID              ID                    `json:"_id"`
	User            string                `json:"user,omitempty"`
	PaymentMethod   string                `json:"paymentMethod"`
	ItemsPrice      string                `json:"itemsPrice"`
	TaxPrice        string                `json:"taxPrice"`
	ShippingPrice   string                `json:"shippingPrice"`
	TotalPrice      string                `json:"totalPrice"`
	IsPaid          bool                  `json:"isPaid"`
	PaidAt          *time.Time            `json:"paidAt"`
	IsDelivered     bool                  `json:"isDelivered"`
	DeliveredAt     *time.Time            `json:"deliveredAt"`
	CreatedAt       *time.Time            `json:"createdAt"`
	OrderItems      []OrderItem           `json:"orderItems"`
	ShippingAddress *cart.ShippingAddress `json:"shippingAddress,omitempty"`
}

// CreateOrder places an order on behalf of the session holding token
func (c *Client) CreateOrder(ctx context.Context, token string, order OrderRequest) (*Order, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	if err := c.validate.Struct(order); err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}

	var created Order
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/orders/",
		token:  token,
		body:   order,
		ok:     []int{http.StatusOK, http.StatusCreated},
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetOrder fetches a single order by ID
func (c *Client) GetOrder(ctx context.Context, token, id string) (*Order, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	if id == "" {
		return nil, fmt.Errorf("order id is required")
	}

	var order Order
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/api/orders/%s", url.PathEscape(id)),
		token:  token,
	}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
