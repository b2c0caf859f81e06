package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// flexID decodes ids sent as JSON numbers or strings
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

// OrderItemRequest is one requested order line
type OrderItemRequest struct {
	Product flexID `json:"product" validate:"productid"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Price   string `json:"price" validate:"required,numeric"`
	Qty     int    `json:"qty" validate:"gte=1"`
}

// ShippingAddressRequest is the requested ship-to address
type ShippingAddressRequest struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CreateOrderRequest represents the order creation request
type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest     `json:"orderItems" validate:"dive"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
	ItemsPrice      string                 `json:"itemsPrice" validate:"required,numeric"`
	TaxPrice        string                 `json:"taxPrice" validate:"omitempty,numeric"`
	ShippingPrice   string                 `json:"shippingPrice" validate:"omitempty,numeric"`
	TotalPrice      string                 `json:"totalPrice" validate:"required,numeric"`
}

// OrderItemDetail is an order line as served
type OrderItemDetail struct {
	ID          string `json:"_id"`
	Product     string `json:"product"`
	ProductName string `json:"productname"`
	Qty         int    `json:"qty"`
	Price       string `json:"price"`
	Image       string `json:"image"`
}

// OrderDetail is an order as served
type OrderDetail struct {
	ID              string                 `json:"_id"`
	User            string                 `json:"user"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ItemsPrice      string                 `json:"itemsPrice"`
	TaxPrice        string                 `json:"taxPrice"`
	ShippingPrice   string                 `json:"shippingPrice"`
	TotalPrice      string                 `json:"totalPrice"`
	IsPaid          bool                   `json:"isPaid"`
	PaidAt          *time.Time             `json:"paidAt"`
	IsDelivered     bool                   `json:"isDelivered"`
	DeliveredAt     *time.Time             `json:"deliveredAt"`
	CreatedAt       time.Time              `json:"createdAt"`
	OrderItems      []OrderItemDetail      `json:"orderItems"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
}

func orderDetail(o *Order) OrderDetail {
	items := make([]OrderItemDetail, 0, len(o.OrderItems))
	for _, it := range o.OrderItems {
		items = append(items, OrderItemDetail{
			ID:          it.ID,
			Product:     it.ProductID,
			ProductName: it.ProductName,
			Qty:         it.Qty,
			Price:       it.Price,
			Image:       it.Image,
		})
	}
	return OrderDetail{
		ID:            o.ID,
		User:          o.User.Email,
		PaymentMethod: o.PaymentMethod,
		ItemsPrice:    o.ItemsPrice,
		TaxPrice:      o.TaxPrice,
		ShippingPrice: o.ShippingPrice,
		TotalPrice:    o.TotalPrice,
		IsPaid:        o.IsPaid,
		PaidAt:        o.PaidAt,
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   o.DeliveredAt,
		CreatedAt:     o.CreatedAt,
		OrderItems:    items,
		ShippingAddress: ShippingAddressRequest{
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
	}
}

func (s *Server) createOrder(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Malformed order"})
		return
	}
	if len(req.OrderItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No Order Items"})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	order := Order{
		UserID:        user.ID,
		User:          *user,
		PaymentMethod: req.PaymentMethod,
		ItemsPrice:    req.ItemsPrice,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    req.TotalPrice,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "OrderItems", "ShippingAddress").Create(&order).Error; err != nil {
			return err
		}

		order.ShippingAddress = ShippingAddress{
			OrderID:    order.ID,
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		}
		if err := tx.Create(&order.ShippingAddress).Error; err != nil {
			return err
		}

		for _, it := range req.OrderItems {
			item := OrderItem{
				OrderID:     order.ID,
				ProductID:   string(it.Product),
				ProductName: it.Name,
				Qty:         it.Qty,
				Price:       it.Price,
				Image:       it.Image,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			order.OrderItems = append(order.OrderItems, item)
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create order")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create order"})
		return
	}

	s.logger.Info().Str("order_id", order.ID).Str("user_id", user.ID).Msg("Order created")
	c.JSON(http.StatusOK, orderDetail(&order))
}

func (s *Server) getOrder(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return
	}

	var order Order
	err := s.db.Preload("User").Preload("OrderItems").Preload("ShippingAddress").
		Where("id = ?", c.Param("id")).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Order does not exist"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to load order")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}

	if order.UserID != user.ID && !user.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Not authorized to view this order"})
		return
	}

	c.JSON(http.StatusOK, orderDetail(&order))
}
