package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Status    ItemStatus      `json:"status"` // see status.go
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Order struct {
	ID              string          `json:"id"`
	ExternalID      string          `json:"external_id,omitempty"`
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	ItemID          string          `json:"item_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"` // price snapshot at creation
	ShippingAddress string          `json:"shipping_address"`
	PhoneNumber     string          `json:"phone_number"`
	Status          Status          `json:"status"`
	OrderDate       time.Time       `json:"order_date"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

// IsParty reports whether userID is the buyer or the seller of o.
func (o Order) IsParty(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.SellerID == userID)
}

type Trade struct {
	ID              string      `json:"id"`
	RequesterID     string      `json:"requester_id"`
	OwnerID         string      `json:"owner_id"`
	OfferedItemID   string      `json:"offered_item_id"`
	RequestedItemID string      `json:"requested_item_id"`
	Status          TradeStatus `json:"status"`
	Message         string      `json:"message"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Version         int         `json:"version"`
}
