package checkout

import (
	"context"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
)

// Aggregator prices a cart against the live catalog. It never writes.
type Aggregator struct {
	pricing store.PricingReader
}

func NewAggregator(pricing store.PricingReader) *Aggregator {
	return &Aggregator{pricing: pricing}
}

// Aggregate returns the cart's priced lines in item order and their exact total.
// An empty or unknown cart yields no lines and a zero total.
func (a *Aggregator) Aggregate(ctx context.Context, cartID string) ([]cart.PricedLine, money.Money, error) {
	lines, err := a.pricing.PricedLines(ctx, cartID)
	if err != nil {
		return nil, 0, err
	}

	var total money.Money
	for i := range lines {
		lines[i].Subtotal = lines[i].UnitPrice.Mul(lines[i].Quantity)
		total = total.Add(lines[i].Subtotal)
	}
	return lines, total, nil
}
