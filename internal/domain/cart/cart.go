package cart

import (
	"errors"
	"time"

	"github.com/example/ec-checkout/internal/money"
	"github.com/google/uuid"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// Line is one product selection in a cart. Carts are addressed only by their client-held id.
type Line struct {
	ItemID     int64     `json:"item_id"`
	CartID     string    `json:"cart_id"`
	ProductID  int64     `json:"product_id"`
	Attributes string    `json:"attributes"`
	Quantity   int       `json:"quantity"`
	AddedOn    time.Time `json:"added_on"`
}

// PricedLine is a cart line joined with the product's current price at read time.
type PricedLine struct {
	ItemID      int64       `json:"item_id"`
	ProductID   int64       `json:"product_id"`
	Attributes  string      `json:"attributes"`
	ProductName string      `json:"name"`
	Quantity    int         `json:"quantity"`
	UnitPrice   money.Money `json:"price"`
	Subtotal    money.Money `json:"subtotal"`
}

// NewCartID generates an opaque cart identifier.
func NewCartID() string {
	return uuid.New().String()
}

// ValidateQuantity rejects zero and negative quantities.
func ValidateQuantity(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
