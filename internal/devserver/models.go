package devserver

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/shopsync-dev/shopsync/internal/assert"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"_id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	assert.Length(b.ID, 26)
	return nil
}

// User is a storefront customer
type User struct {
	BaseModel
	Email        string    `gorm:"unique;not null"`
	PasswordHash string    `gorm:"not null"`
	Name         string
	IsAdmin      bool      `gorm:"not null;default:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Order is a placed order. Prices are stored as decimal strings.
type Order struct {
	BaseModel
	UserID          string `gorm:"type:varchar(26);index;not null"`
	User            User
	PaymentMethod   string
	ItemsPrice      string
	TaxPrice        string
	ShippingPrice   string
	TotalPrice      string
	IsPaid          bool `gorm:"not null;default:false"`
	PaidAt          *time.Time
	IsDelivered     bool `gorm:"not null;default:false"`
	DeliveredAt     *time.Time
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
	OrderItems      []OrderItem
	ShippingAddress ShippingAddress
}

// OrderItem is one order line
type OrderItem struct {
	BaseModel
	OrderID     string `gorm:"type:varchar(26);index;not null"`
	ProductID   string `gorm:"type:varchar(64)"`
	ProductName string
	Qty         int
	Price       string
	Image       string
}

// ShippingAddress is where an order ships to
type ShippingAddress struct {
	BaseModel
	OrderID    string `gorm:"type:varchar(26);uniqueIndex;not null"`
	Address    string
	City       string
	PostalCode string
	Country    string
}

// GitHubGrant is a single-use authorization code issued by the stand-in
// GitHub authorize page
type GitHubGrant struct {
	BaseModel
	Code      string `gorm:"type:varchar(36);uniqueIndex;not null"`
	Login     string `gorm:"not null"`
	Email     string `gorm:"not null"`
	Name      string
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
}
