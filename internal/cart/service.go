// Package cart implements the shopping-cart operations that precede checkout.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/money"
)

// View is a cart priced against the current catalog.
type View struct {
	CartID string            `json:"cart_id"`
	Items  []cart.PricedLine `json:"items"`
	Total  money.Money       `json:"total_amount"`
}

type Service struct {
	carts      store.CartStore
	aggregator *checkout.Aggregator
	logger     *slog.Logger
}

func NewService(carts store.CartStore, aggregator *checkout.Aggregator, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{carts: carts, aggregator: aggregator, logger: logger.Component(log, "cart")}
}

// NewCartID issues a fresh cart id. Nothing is stored until the first Add.
func (s *Service) NewCartID() string {
	return cart.NewCartID()
}

// Add puts qty units of a product in the cart, merging with an existing line that has the
// same product and attributes, and returns the priced cart.
func (s *Service) Add(ctx context.Context, cartID string, productID int64, attributes string, qty int) (*View, error) {
	if cartID == "" {
		return nil, apperrors.MissingField("cart_id")
	}
	if productID <= 0 {
		return nil, apperrors.MissingField("product_id")
	}
	if err := cart.ValidateQuantity(qty); err != nil {
		return nil, apperrors.InvalidField("quantity", err.Error())
	}

	ok, err := s.carts.ProductExists(ctx, productID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, apperrors.NotFound("product", "product_id", strconv.FormatInt(productID, 10))
	}

	line, err := s.carts.AddLine(ctx, cartID, productID, attributes, qty)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.logger.Debug("line added",
		slog.String("cart_id", cartID),
		slog.Int64("item_id", line.ItemID),
		slog.Int("quantity", line.Quantity),
	)
	return s.Get(ctx, cartID)
}

// UpdateQuantity sets a line's quantity. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, itemID int64, qty int) error {
	if itemID <= 0 {
		return apperrors.InvalidField("item_id", "item_id must be a positive integer")
	}
	if qty < 0 {
		return apperrors.InvalidField("quantity", "quantity must not be negative")
	}
	if qty == 0 {
		return s.Remove(ctx, itemID)
	}
	return itemError(s.carts.UpdateQuantity(ctx, itemID, qty), itemID)
}

func (s *Service) Remove(ctx context.Context, itemID int64) error {
	if itemID <= 0 {
		return apperrors.InvalidField("item_id", "item_id must be a positive integer")
	}
	return itemError(s.carts.DeleteLine(ctx, itemID), itemID)
}

// Clear removes every line of the cart. An unknown or already empty cart is not found.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return apperrors.MissingField("cart_id")
	}
	n, err := s.carts.DeleteCart(ctx, cartID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if n == 0 {
		return apperrors.NotFound("cart", "cart_id", cartID)
	}
	return nil
}

// Get returns the priced cart. An unknown cart is an empty view.
func (s *Service) Get(ctx context.Context, cartID string) (*View, error) {
	if cartID == "" {
		return nil, apperrors.MissingField("cart_id")
	}
	lines, total, err := s.aggregator.Aggregate(ctx, cartID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if lines == nil {
		lines = []cart.PricedLine{}
	}
	return &View{CartID: cartID, Items: lines, Total: total}, nil
}

func itemError(err error, itemID int64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cart.ErrItemNotFound):
		return apperrors.NotFound("item", "item_id", strconv.FormatInt(itemID, 10))
	default:
		return apperrors.Internal(err)
	}
}
