package orders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/cli/client"
)

const (
	freeShippingOverCents = 100_00
	shippingFeeCents      = 10_00
	taxPercent            = 15
)

// ErrEmptyCart is returned when building an order from a cart without items
var ErrEmptyCart = errors.New("cart is empty")

// BuildOrderRequest prices the cart. Shipping is free for item totals over 100,
// tax is 15% of the item total, and every price is a 2-decimal string.
func BuildOrderRequest(state cart.State, paymentMethod string) (client.OrderRequest, error) {
	if len(state.Items) == 0 {
		return client.OrderRequest{}, ErrEmptyCart
	}

	items := make([]client.OrderItem, 0, len(state.Items))
	var itemsCents int64
	for _, it := range state.Items {
		cents, err := parseCents(it.Price)
		if err != nil {
			return client.OrderRequest{}, fmt.Errorf("invalid price for %s: %w", it.ProductID, err)
		}
		itemsCents += cents * int64(it.Qty)
		items = append(items, client.OrderItem{
			Product: client.ID(it.ProductID),
			Name:    it.Name,
			Image:   it.Image,
			Price:   formatCents(cents),
			Qty:     it.Qty,
		})
	}

	shippingCents := int64(shippingFeeCents)
	if itemsCents > freeShippingOverCents {
		shippingCents = 0
	}
	// Round half up to the cent
	taxCents := (itemsCents*taxPercent + 50) / 100

	return client.OrderRequest{
		OrderItems:      items,
		ShippingAddress: state.ShippingAddress,
		PaymentMethod:   paymentMethod,
		ItemsPrice:      formatCents(itemsCents),
		TaxPrice:        formatCents(taxCents),
		ShippingPrice:   formatCents(shippingCents),
		TotalPrice:      formatCents(itemsCents + taxCents + shippingCents),
	}, nil
}

// parseCents converts a decimal string such as "19.9" into 1990
func parseCents(price string) (int64, error) {
	price = strings.TrimSpace(price)
	if price == "" {
		return 0, fmt.Errorf("empty price")
	}
	whole, frac, _ := strings.Cut(price, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("more than two decimals in %q", price)
	}
	frac += strings.Repeat("0", 2-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid amount %q", price)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid amount %q", price)
	}
	return w*100 + f, nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
