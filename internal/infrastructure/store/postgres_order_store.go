package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/money"
)

const orderColumns = `order_id, customer_id, tax_id, shipping_id, reference, auth_code,
	total_amount_cents, status, created_on, shipped_on`

// PostgresOrderStore stores orders, order lines, payments and their outbox events.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

func (s *PostgresOrderStore) CommitOrder(ctx context.Context, d *order.Draft) (int64, error) {
	if len(d.Lines) == 0 {
		return 0, order.ErrEmptyOrder
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var orderID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (customer_id, tax_id, shipping_id, reference, auth_code, total_amount_cents, status, created_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING order_id`,
		d.CustomerID, d.TaxID, d.ShippingID, d.Reference, d.AuthCode,
		d.TotalAmount.Cents(), order.StatusPending, d.CreatedOn,
	).Scan(&orderID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, order.ErrDuplicateReference
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, l := range d.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_detail (order_id, item_id, product_id, attributes, product_name, quantity, unit_cost_cents)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, l.ItemID, l.ProductID, l.Attributes, l.ProductName, l.Quantity, l.UnitCost.Cents(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert order line %d: %w", l.ItemID, err)
		}
	}

	event, err := NewEvent(strconv.FormatInt(orderID, 10), order.AggregateType, order.EventOrderPlaced, order.PlacedEvent(d.Placed(orderID)))
	if err != nil {
		return 0, err
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return 0, err
	}

	if err := consumeSnapshot(ctx, tx, d); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}
	return orderID, nil
}

// consumeSnapshot deletes exactly the cart lines the draft was priced from. A line
// updated or removed since pricing fails the commit; a line added since stays in the cart.
func consumeSnapshot(ctx context.Context, tx *sql.Tx, d *order.Draft) error {
	itemIDs := make([]int64, len(d.Lines))
	quantities := make([]int64, len(d.Lines))
	for i, l := range d.Lines {
		itemIDs[i] = l.ItemID
		quantities[i] = int64(l.Quantity)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM shopping_cart c
		 USING unnest($2::bigint[], $3::bigint[]) AS s(item_id, quantity)
		 WHERE c.cart_id = $1 AND c.item_id = s.item_id AND c.quantity = s.quantity`,
		d.Reference, pq.Array(itemIDs), pq.Array(quantities),
	)
	if err != nil {
		return fmt.Errorf("consume cart %s: %w", d.Reference, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume cart %s: %w", d.Reference, err)
	}
	if n != int64(len(d.Lines)) {
		return fmt.Errorf("%w: %d of %d priced lines unchanged", order.ErrCartChanged, n, len(d.Lines))
	}
	return nil
}

func (s *PostgresOrderStore) GetOrder(ctx context.Context, orderID int64) (*order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_id = $1", orderID))
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresOrderStore) FindByReference(ctx context.Context, reference string) (*order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE reference = $1", reference))
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByCustomer returns order headers, newest first. Lines are not loaded.
func (s *PostgresOrderStore) ListByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 ORDER BY created_on DESC, order_id DESC",
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders for customer %d: %w", customerID, err)
	}
	defer rows.Close()

	orders := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (s *PostgresOrderStore) RecordCapture(ctx context.Context, p order.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin capture tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $2 WHERE order_id = $1 AND status = $3",
		p.OrderID, order.StatusPaid, order.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark order %d paid: %w", p.OrderID, err)
	}
	if err := requireAffected(res, ErrStatusConflict); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_payment (order_id, charge_id, amount, currency, email, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.OrderID, p.ChargeID, p.Amount, p.Currency, p.Email, p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment for order %d: %w", p.OrderID, err)
	}

	event, err := NewEvent(strconv.FormatInt(p.OrderID, 10), order.AggregateType, order.EventOrderPaid, order.OrderPaid{
		OrderID:     p.OrderID,
		CustomerID:  p.CustomerID,
		Email:       p.Email,
		ChargeID:    p.ChargeID,
		TotalAmount: p.Total,
		PaidAt:      p.PaidAt,
	})
	if err != nil {
		return err
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit capture: %w", err)
	}
	return nil
}

func (s *PostgresOrderStore) MarkShipped(ctx context.Context, orderID int64, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ship tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $2, shipped_on = $3 WHERE order_id = $1 AND status = $4",
		orderID, order.StatusShipped, at, order.StatusPaid,
	)
	if err != nil {
		return fmt.Errorf("mark order %d shipped: %w", orderID, err)
	}
	if err := requireAffected(res, ErrStatusConflict); err != nil {
		return err
	}

	event, err := NewEvent(strconv.FormatInt(orderID, 10), order.AggregateType, order.EventOrderShipped,
		order.OrderShipped{OrderID: orderID, ShippedAt: at})
	if err != nil {
		return err
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ship: %w", err)
	}
	return nil
}

func (s *PostgresOrderStore) loadLines(ctx context.Context, o *order.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, order_id, product_id, attributes, product_name, quantity, unit_cost_cents
		 FROM order_detail WHERE order_id = $1 ORDER BY item_id ASC`,
		o.OrderID,
	)
	if err != nil {
		return fmt.Errorf("query lines for order %d: %w", o.OrderID, err)
	}
	defer rows.Close()

	o.Lines = []order.Line{}
	for rows.Next() {
		var (
			l     order.Line
			cents int64
		)
		if err := rows.Scan(&l.ItemID, &l.OrderID, &l.ProductID, &l.Attributes, &l.ProductName, &l.Quantity, &cents); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		l.UnitCost = money.FromCents(cents)
		o.Lines = append(o.Lines, l.WithSubtotal())
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o         order.Order
		cents     int64
		status    string
		shippedOn sql.NullTime
	)
	err := row.Scan(&o.OrderID, &o.CustomerID, &o.TaxID, &o.ShippingID, &o.Reference, &o.AuthCode,
		&cents, &status, &o.CreatedOn, &shippedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.TotalAmount = money.FromCents(cents)
	o.Status = order.Status(status)
	if shippedOn.Valid {
		t := shippedOn.Time
		o.ShippedOn = &t
	}
	return &o, nil
}
