package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/money"
)

// PostgresCartStore stores cart lines in the shopping_cart table and prices them
// against the product table.
type PostgresCartStore struct {
	db *sql.DB
}

func NewPostgresCartStore(db *sql.DB) *PostgresCartStore {
	return &PostgresCartStore{db: db}
}

func (s *PostgresCartStore) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM product WHERE product_id = $1)",
		productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product %d: %w", productID, err)
	}
	return exists, nil
}

func (s *PostgresCartStore) AddLine(ctx context.Context, cartID string, productID int64, attributes string, qty int) (*cart.Line, error) {
	l := cart.Line{CartID: cartID, ProductID: productID, Attributes: attributes}

	err := s.db.QueryRowContext(ctx,
		`UPDATE shopping_cart SET quantity = quantity + $4
		 WHERE cart_id = $1 AND product_id = $2 AND attributes = $3
		 RETURNING item_id, quantity, added_on`,
		cartID, productID, attributes, qty,
	).Scan(&l.ItemID, &l.Quantity, &l.AddedOn)
	if err == nil {
		return &l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("merge cart line: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO shopping_cart (cart_id, product_id, attributes, quantity, added_on)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING item_id, quantity, added_on`,
		cartID, productID, attributes, qty,
	).Scan(&l.ItemID, &l.Quantity, &l.AddedOn)
	if err != nil {
		return nil, fmt.Errorf("insert cart line: %w", err)
	}
	return &l, nil
}

func (s *PostgresCartStore) UpdateQuantity(ctx context.Context, itemID int64, qty int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE shopping_cart SET quantity = $2 WHERE item_id = $1",
		itemID, qty,
	)
	if err != nil {
		return fmt.Errorf("update cart item %d: %w", itemID, err)
	}
	return requireAffected(res, cart.ErrItemNotFound)
}

func (s *PostgresCartStore) DeleteLine(ctx context.Context, itemID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shopping_cart WHERE item_id = $1", itemID)
	if err != nil {
		return fmt.Errorf("delete cart item %d: %w", itemID, err)
	}
	return requireAffected(res, cart.ErrItemNotFound)
}

func (s *PostgresCartStore) DeleteCart(ctx context.Context, cartID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shopping_cart WHERE cart_id = $1", cartID)
	if err != nil {
		return 0, fmt.Errorf("empty cart %s: %w", cartID, err)
	}
	return res.RowsAffected()
}

// PricedLines reads the cart joined to the catalog. The unit price is the discounted price
// when one is set, converted from NUMERIC to cents inside the database so no float is involved.
func (s *PostgresCartStore) PricedLines(ctx context.Context, cartID string) ([]cart.PricedLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sc.item_id, sc.product_id, sc.attributes, p.name, sc.quantity,
		        CAST(ROUND(COALESCE(NULLIF(p.discounted_price, 0), p.price) * 100) AS BIGINT)
		 FROM shopping_cart sc
		 JOIN product p ON p.product_id = sc.product_id
		 WHERE sc.cart_id = $1
		 ORDER BY sc.item_id ASC`,
		cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart %s: %w", cartID, err)
	}
	defer rows.Close()

	lines := []cart.PricedLine{}
	for rows.Next() {
		var (
			l     cart.PricedLine
			cents int64
		)
		if err := rows.Scan(&l.ItemID, &l.ProductID, &l.Attributes, &l.ProductName, &l.Quantity, &cents); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		l.UnitPrice = money.FromCents(cents)
		l.Subtotal = l.UnitPrice.Mul(l.Quantity)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
