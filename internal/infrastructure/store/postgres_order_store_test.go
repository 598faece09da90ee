package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/money"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func threeLineDraft(t *testing.T) *order.Draft {
	t.Helper()
	d, err := order.NewDraft("cart-1", 7, 2, 1, "digest", []cart.PricedLine{
		{ItemID: 1, ProductID: 10, ProductName: "A", Quantity: 1, UnitPrice: money.MustParse("0.10")},
		{ItemID: 2, ProductID: 11, ProductName: "B", Quantity: 1, UnitPrice: money.MustParse("0.20")},
		{ItemID: 3, ProductID: 12, ProductName: "C", Quantity: 1, UnitPrice: money.MustParse("0.30")},
	}, time.Now())
	require.NoError(t, err)
	return d
}

var (
	insertOrderSQL  = regexp.QuoteMeta("INSERT INTO orders")
	insertLineSQL   = regexp.QuoteMeta("INSERT INTO order_detail")
	insertOutboxSQL = regexp.QuoteMeta("INSERT INTO outbox")
	deleteCartSQL   = regexp.QuoteMeta("DELETE FROM shopping_cart WHERE cart_id = $1")
	consumeCartSQL  = regexp.QuoteMeta("DELETE FROM shopping_cart c")
)

// ============================================
// CommitOrder Tests
// ============================================

func TestPostgresOrderStore_CommitOrder_Success(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	d := threeLineDraft(t)

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).
		WithArgs(int64(7), int64(1), int64(2), "cart-1", "digest", int64(60), "Pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(int64(42)))
	for _, l := range d.Lines {
		mock.ExpectExec(insertLineSQL).
			WithArgs(int64(42), l.ItemID, l.ProductID, l.Attributes, l.ProductName, l.Quantity, l.UnitCost.Cents()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(insertOutboxSQL).
		WithArgs(sqlmock.AnyArg(), "42", "Order", "OrderPlaced", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(consumeCartSQL).WithArgs("cart-1", "{1,2,3}", "{1,1,1}").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	id, err := s.CommitOrder(context.Background(), d)

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_CommitOrder_RollsBackOnLineFailure(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(int64(42)))
	mock.ExpectExec(insertLineSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLineSQL).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	id, err := s.CommitOrder(context.Background(), threeLineDraft(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, id)
	// No outbox row, no cart delete, no commit.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_CommitOrder_DuplicateReference(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_reference_key"})
	mock.ExpectRollback()

	_, err := s.CommitOrder(context.Background(), threeLineDraft(t))

	assert.ErrorIs(t, err, order.ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_CommitOrder_CommitFailure(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(int64(1)))
	for i := 0; i < 3; i++ {
		mock.ExpectExec(insertLineSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(insertOutboxSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(consumeCartSQL).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	_, err := s.CommitOrder(context.Background(), threeLineDraft(t))

	assert.ErrorContains(t, err, "commit order")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_CommitOrder_CartChangedSincePricing(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(insertOrderSQL).WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(int64(1)))
	for i := 0; i < 3; i++ {
		mock.ExpectExec(insertLineSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(insertOutboxSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	// One priced line had its quantity changed, so only two rows match.
	mock.ExpectExec(consumeCartSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	id, err := s.CommitOrder(context.Background(), threeLineDraft(t))

	assert.ErrorIs(t, err, order.ErrCartChanged)
	assert.Zero(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_CommitOrder_EmptyDraft(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	_, err := s.CommitOrder(context.Background(), &order.Draft{Reference: "cart-1"})

	assert.ErrorIs(t, err, order.ErrEmptyOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Read Tests
// ============================================

var orderCols = []string{"order_id", "customer_id", "tax_id", "shipping_id", "reference", "auth_code",
	"total_amount_cents", "status", "created_on", "shipped_on"}

var lineCols = []string{"item_id", "order_id", "product_id", "attributes", "product_name", "quantity", "unit_cost_cents"}

func TestPostgresOrderStore_GetOrder(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(int64(5), int64(7), int64(1), int64(2), "cart-1", "digest", int64(2448), "Pending", created, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_detail WHERE order_id = $1")).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(lineCols).
			AddRow(int64(1), int64(5), int64(10), "L", "Arc d'Triomphe", 2, int64(999)).
			AddRow(int64(2), int64(5), int64(11), "M", "Chartres Cathedral", 1, int64(450)))

	o, err := s.GetOrder(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, money.MustParse("24.48"), o.TotalAmount)
	assert.Nil(t, o.ShippedOn)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, money.MustParse("19.98"), o.Lines[0].Subtotal)
	assert.NoError(t, o.VerifyTotal())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_GetOrder_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).WillReturnError(sql.ErrNoRows)

	o, err := s.GetOrder(context.Background(), 99)

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Nil(t, o)
}

func TestPostgresOrderStore_ListByCustomer(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	shipped := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE customer_id = $1")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(int64(6), int64(7), int64(1), int64(2), "cart-2", "", int64(100), "Shipped", shipped, shipped).
			AddRow(int64(5), int64(7), int64(1), int64(2), "cart-1", "", int64(2448), "Paid", shipped, nil))

	orders, err := s.ListByCustomer(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.NotNil(t, orders[0].ShippedOn)
	assert.Equal(t, order.StatusPaid, orders[1].Status)
}

// ============================================
// Status Transition Tests
// ============================================

func TestPostgresOrderStore_RecordCapture(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $2 WHERE order_id = $1 AND status = $3")).
		WithArgs(int64(5), "Paid", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_payment")).
		WithArgs(int64(5), "ch_1", int64(2448), "usd", "a@b.c", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertOutboxSQL).
		WithArgs(sqlmock.AnyArg(), "5", "Order", "OrderPaid", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RecordCapture(context.Background(), order.Payment{
		OrderID: 5, ChargeID: "ch_1", Amount: 2448, Currency: "usd", Email: "a@b.c", PaidAt: time.Now(),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_RecordCapture_CASMiss(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RecordCapture(context.Background(), order.Payment{OrderID: 5})

	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_MarkShipped(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $2, shipped_on = $3 WHERE order_id = $1 AND status = $4")).
		WithArgs(int64(5), "Shipped", at, "Paid").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertOutboxSQL).
		WithArgs(sqlmock.AnyArg(), "5", "Order", "OrderShipped", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.MarkShipped(context.Background(), 5, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderStore_MarkShipped_NotPaid(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.MarkShipped(context.Background(), 5, time.Now()), ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
