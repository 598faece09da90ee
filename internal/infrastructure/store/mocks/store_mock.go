package mocks

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
)

// ErrInjected is returned by injected failures.
var ErrInjected = errors.New("injected failure")

// Product is a catalog row as seen by the mock pricing join.
type Product struct {
	Name            string
	Price           money.Money
	DiscountedPrice money.Money
}

// MockStore is an in-memory implementation of CartStore, PricingReader, OrderStore and
// OutboxStore. Writes that are a single transaction in Postgres are staged and applied
// only when every step succeeds.
type MockStore struct {
	mu sync.Mutex

	products  map[int64]Product
	lines     map[int64]cart.Line
	orders    map[int64]*order.Order
	payments  map[int64]order.Payment
	outbox    []store.Event
	sent      map[string]bool
	nextItem  int64
	nextOrder int64

	// For tracking calls in tests
	CommitCalls  []order.Draft
	CaptureCalls []order.Payment

	// FailLineInsertAt makes CommitOrder fail while writing the n-th line (1-based).
	FailLineInsertAt int
	CommitErr        error
	CaptureErr       error
	PricingErr       error
	// CommitCallback runs before CommitOrder takes the store lock.
	CommitCallback func(ctx context.Context, d *order.Draft)
}

// NewMockStore creates a new MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		products:  make(map[int64]Product),
		lines:     make(map[int64]cart.Line),
		orders:    make(map[int64]*order.Order),
		payments:  make(map[int64]order.Payment),
		sent:      make(map[string]bool),
		nextItem:  1,
		nextOrder: 1,
	}
}

// SetProduct adds or reprices a catalog product.
func (m *MockStore) SetProduct(id int64, name string, price, discounted money.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = Product{Name: name, Price: price, DiscountedPrice: discounted}
}

// ============================================
// CartStore
// ============================================

func (m *MockStore) ProductExists(ctx context.Context, productID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.products[productID]
	return ok, nil
}

func (m *MockStore) AddLine(ctx context.Context, cartID string, productID int64, attributes string, qty int) (*cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, l := range m.lines {
		if l.CartID == cartID && l.ProductID == productID && l.Attributes == attributes {
			l.Quantity += qty
			m.lines[id] = l
			return &l, nil
		}
	}

	l := cart.Line{
		ItemID:     m.nextItem,
		CartID:     cartID,
		ProductID:  productID,
		Attributes: attributes,
		Quantity:   qty,
		AddedOn:    time.Now(),
	}
	m.nextItem++
	m.lines[l.ItemID] = l
	return &l, nil
}

func (m *MockStore) UpdateQuantity(ctx context.Context, itemID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lines[itemID]
	if !ok {
		return cart.ErrItemNotFound
	}
	l.Quantity = qty
	m.lines[itemID] = l
	return nil
}

func (m *MockStore) DeleteLine(ctx context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[itemID]; !ok {
		return cart.ErrItemNotFound
	}
	delete(m.lines, itemID)
	return nil
}

func (m *MockStore) DeleteCart(ctx context.Context, cartID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCartLocked(cartID), nil
}

func (m *MockStore) deleteCartLocked(cartID string) int64 {
	var n int64
	for id, l := range m.lines {
		if l.CartID == cartID {
			delete(m.lines, id)
			n++
		}
	}
	return n
}

// Lines returns the raw lines of a cart ordered by item id.
func (m *MockStore) Lines(cartID string) []cart.Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cart.Line
	for _, l := range m.lines {
		if l.CartID == cartID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// ============================================
// PricingReader
// ============================================

func (m *MockStore) PricedLines(ctx context.Context, cartID string) ([]cart.PricedLine, error) {
	if m.PricingErr != nil {
		return nil, m.PricingErr
	}
	lines := m.Lines(cartID)

	m.mu.Lock()
	defer m.mu.Unlock()
	priced := []cart.PricedLine{}
	for _, l := range lines {
		p, ok := m.products[l.ProductID]
		if !ok {
			continue
		}
		unit := p.Price
		if p.DiscountedPrice > 0 {
			unit = p.DiscountedPrice
		}
		priced = append(priced, cart.PricedLine{
			ItemID:      l.ItemID,
			ProductID:   l.ProductID,
			Attributes:  l.Attributes,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   unit,
			Subtotal:    unit.Mul(l.Quantity),
		})
	}
	return priced, nil
}

// ============================================
// OrderStore
// ============================================

func (m *MockStore) CommitOrder(ctx context.Context, d *order.Draft) (int64, error) {
	if m.CommitCallback != nil {
		m.CommitCallback(ctx, d)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CommitCalls = append(m.CommitCalls, *d)

	if m.CommitErr != nil {
		return 0, m.CommitErr
	}
	if len(d.Lines) == 0 {
		return 0, order.ErrEmptyOrder
	}
	for _, o := range m.orders {
		if o.Reference == d.Reference {
			return 0, order.ErrDuplicateReference
		}
	}
	for i := range d.Lines {
		if m.FailLineInsertAt == i+1 {
			return 0, ErrInjected
		}
	}

	for _, l := range d.Lines {
		cl, ok := m.lines[l.ItemID]
		if !ok || cl.CartID != d.Reference || cl.Quantity != l.Quantity {
			return 0, order.ErrCartChanged
		}
	}

	id := m.nextOrder
	m.nextOrder++
	o := d.Placed(id)
	m.orders[id] = o
	m.appendEventLocked(id, order.EventOrderPlaced, order.PlacedEvent(o))
	for _, l := range d.Lines {
		delete(m.lines, l.ItemID)
	}
	return id, nil
}

func (m *MockStore) GetOrder(ctx context.Context, orderID int64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *MockStore) FindByReference(ctx context.Context, reference string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Reference == reference {
			return copyOrder(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (m *MockStore) ListByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []order.Order{}
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			c := copyOrder(o)
			c.Lines = nil
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID > out[j].OrderID })
	return out, nil
}

func (m *MockStore) RecordCapture(ctx context.Context, p order.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls = append(m.CaptureCalls, p)
	if m.CaptureErr != nil {
		return m.CaptureErr
	}

	o, ok := m.orders[p.OrderID]
	if !ok || o.Status != order.StatusPending {
		return store.ErrStatusConflict
	}
	o.Status = order.StatusPaid
	m.payments[p.OrderID] = p
	m.appendEventLocked(p.OrderID, order.EventOrderPaid, order.OrderPaid{
		OrderID:     p.OrderID,
		CustomerID:  p.CustomerID,
		Email:       p.Email,
		ChargeID:    p.ChargeID,
		TotalAmount: p.Total,
		PaidAt:      p.PaidAt,
	})
	return nil
}

func (m *MockStore) MarkShipped(ctx context.Context, orderID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != order.StatusPaid {
		return store.ErrStatusConflict
	}
	o.Status = order.StatusShipped
	o.ShippedOn = &at
	m.appendEventLocked(orderID, order.EventOrderShipped, order.OrderShipped{OrderID: orderID, ShippedAt: at})
	return nil
}

// SetStatus forces an order's status for testing
func (m *MockStore) SetStatus(orderID int64, s order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = s
	}
}

// Orders returns all committed orders.
func (m *MockStore) Orders() []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, copyOrder(o))
	}
	return out
}

// Payment returns the recorded payment for an order.
func (m *MockStore) Payment(orderID int64) (order.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	return p, ok
}

// ============================================
// OutboxStore
// ============================================

func (m *MockStore) FetchPending(ctx context.Context, limit int) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Event
	for _, e := range m.outbox {
		if m.sent[e.ID] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) MarkSent(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[eventID] = true
	return nil
}

// Events returns every outbox event, sent or not.
func (m *MockStore) Events() []store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Event(nil), m.outbox...)
}

func (m *MockStore) appendEventLocked(orderID int64, eventType string, data any) {
	e, err := store.NewEvent(strconv.FormatInt(orderID, 10), order.AggregateType, eventType, data)
	if err != nil {
		panic(err)
	}
	m.outbox = append(m.outbox, e)
}

func copyOrder(o *order.Order) *order.Order {
	c := *o
	c.Lines = append([]order.Line(nil), o.Lines...)
	return &c
}

var (
	_ store.CartStore     = (*MockStore)(nil)
	_ store.PricingReader = (*MockStore)(nil)
	_ store.OrderStore    = (*MockStore)(nil)
	_ store.OutboxStore   = (*MockStore)(nil)
)
