package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/example/ec-checkout/internal/lock"
	"github.com/example/ec-checkout/internal/money"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/payment/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paidAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCaptureService(t *testing.T) (*payment.Service, *mocks.MockStore, *fake.Gateway) {
	t.Helper()
	st := mocks.NewMockStore()
	gw := fake.NewGateway()
	svc := payment.NewService(payment.ServiceConfig{
		Orders:    st,
		Gateway:   gw,
		Locker:    lock.NewMemoryLocker(2 * time.Second),
		Currency:  "usd",
		MinorUnit: 1,
		Timeout:   100 * time.Millisecond,
		Now:       func() time.Time { return paidAt },
	})
	return svc, st, gw
}

// placeOrder commits the 24.48 order for customer 7 and returns its id.
func placeOrder(t *testing.T, st *mocks.MockStore) int64 {
	t.Helper()
	ctx := context.Background()
	st.SetProduct(10, "Arc d'Triomphe", money.MustParse("12.00"), money.MustParse("9.99"))
	st.SetProduct(11, "Chartres Cathedral", money.MustParse("4.50"), 0)
	_, err := st.AddLine(ctx, "c1", 10, "L, Red", 2)
	require.NoError(t, err)
	_, err = st.AddLine(ctx, "c1", 11, "M", 1)
	require.NoError(t, err)

	priced, err := st.PricedLines(ctx, "c1")
	require.NoError(t, err)
	d, err := order.NewDraft("c1", 7, 2, 1, "digest", priced, paidAt.Add(-time.Hour))
	require.NoError(t, err)
	id, err := st.CommitOrder(ctx, d)
	require.NoError(t, err)
	return id
}

func captureRequest(orderID int64) payment.CaptureRequest {
	return payment.CaptureRequest{OrderID: orderID, Email: "buyer@example.com", PaymentToken: "tok_visa", CustomerID: 7}
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.From(err).Code
}

// ============================================
// Capture Tests
// ============================================

func TestService_Capture_Success(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)

	res, err := svc.Capture(context.Background(), captureRequest(id))
	require.NoError(t, err)

	assert.Equal(t, id, res.OrderID)
	assert.Equal(t, int64(2448), res.Amount)
	assert.Equal(t, "usd", res.Currency)
	assert.Equal(t, order.StatusPaid, res.Status)
	assert.True(t, res.Paid)

	require.Len(t, gw.ChargeCalls, 1)
	call := gw.ChargeCalls[0]
	assert.Equal(t, int64(2448), call.Amount)
	assert.Equal(t, payment.IdempotencyKey(id, "tok_visa"), call.IdempotencyKey)
	require.Len(t, gw.CustomerCalls, 1)
	assert.Equal(t, payment.IdempotencyKey(id, "tok_visa")+"-customer", gw.CustomerCalls[0].IdempotencyKey)
	assert.Equal(t, "tok_visa", gw.CustomerCalls[0].Token)

	o, err := st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)

	p, ok := st.Payment(id)
	require.True(t, ok)
	assert.Equal(t, res.ChargeID, p.ChargeID)
	assert.Equal(t, paidAt, p.PaidAt)

	events := st.Events()
	require.Len(t, events, 2)
	assert.Equal(t, order.EventOrderPaid, events[1].EventType)
}

func TestService_Capture_CeilsToMinorUnit(t *testing.T) {
	st := mocks.NewMockStore()
	gw := fake.NewGateway()
	svc := payment.NewService(payment.ServiceConfig{
		Orders:    st,
		Gateway:   gw,
		Locker:    lock.NewMemoryLocker(time.Second),
		MinorUnit: 100,
	})
	id := placeOrder(t, st)

	res, err := svc.Capture(context.Background(), captureRequest(id))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), res.Amount)
}

func TestService_Capture_Twice(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)

	_, err := svc.Capture(context.Background(), captureRequest(id))
	require.NoError(t, err)

	_, err = svc.Capture(context.Background(), captureRequest(id))
	assert.Equal(t, apperrors.CodeAlreadyCaptured, appCode(t, err))
	assert.Equal(t, 1, gw.Charges())
	assert.Len(t, gw.ChargeCalls, 1)
}

func TestService_Capture_Concurrent(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Capture(context.Background(), captureRequest(id))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperrors.CodeAlreadyCaptured, apperrors.From(err).Code)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, gw.ChargeCalls, 1)
}

func TestService_Capture_Declined(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	gw.ChargeErr = payment.Declined("card_declined", "Your card was declined.", 402)

	_, err := svc.Capture(context.Background(), captureRequest(id))
	ae := apperrors.From(err)
	assert.Equal(t, apperrors.CodePaymentDeclined, ae.Code)
	assert.Equal(t, 402, ae.Status)
	assert.Contains(t, ae.Message, "Your card was declined.")

	o, err := st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	_, ok := st.Payment(id)
	assert.False(t, ok)
}

func TestService_Capture_RetryAfterDecline(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	gw.ChargeErr = payment.Declined("", "declined", 402)

	_, err := svc.Capture(context.Background(), captureRequest(id))
	require.Error(t, err)

	gw.ChargeErr = nil
	res, err := svc.Capture(context.Background(), captureRequest(id))
	require.NoError(t, err)
	assert.True(t, res.Paid)
}

func TestService_Capture_DeclinedThenNewCard(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	gw.DeclineTokens["tok_chargeDeclined"] = true

	declined := captureRequest(id)
	declined.PaymentToken = "tok_chargeDeclined"
	_, err := svc.Capture(context.Background(), declined)
	assert.Equal(t, apperrors.CodePaymentDeclined, appCode(t, err))

	// Same card again replays the decline.
	_, err = svc.Capture(context.Background(), declined)
	assert.Equal(t, apperrors.CodePaymentDeclined, appCode(t, err))
	assert.Equal(t, 0, gw.Charges())

	res, err := svc.Capture(context.Background(), captureRequest(id))
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, 1, gw.Charges())

	require.Len(t, gw.ChargeCalls, 3)
	assert.Equal(t, gw.ChargeCalls[0].IdempotencyKey, gw.ChargeCalls[1].IdempotencyKey)
	assert.NotEqual(t, gw.ChargeCalls[0].IdempotencyKey, gw.ChargeCalls[2].IdempotencyKey)

	o, err := st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
}

func TestIdempotencyKey(t *testing.T) {
	visa := payment.IdempotencyKey(1, "tok_visa")
	assert.Equal(t, visa, payment.IdempotencyKey(1, "tok_visa"))
	assert.NotEqual(t, visa, payment.IdempotencyKey(1, "tok_mastercard"))
	assert.NotEqual(t, visa, payment.IdempotencyKey(2, "tok_visa"))
	assert.Regexp(t, `^order-1-[0-9a-f]{16}$`, visa)
}

func TestService_Capture_GatewayUnavailable(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	gw.CustomerErr = payment.Unavailable("gateway returned status 503", 503)

	_, err := svc.Capture(context.Background(), captureRequest(id))
	assert.Equal(t, apperrors.CodePaymentFailed, appCode(t, err))
	assert.Empty(t, gw.ChargeCalls)
}

func TestService_Capture_Timeout(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	gw.Delay = time.Second

	start := time.Now()
	_, err := svc.Capture(context.Background(), captureRequest(id))
	assert.Equal(t, apperrors.CodePaymentFailed, appCode(t, err))
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	o, err := st.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestService_Capture_NotOwner(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)

	req := captureRequest(id)
	req.CustomerID = 8
	_, err := svc.Capture(context.Background(), req)
	assert.Equal(t, apperrors.CodeOrderNotFound, appCode(t, err))
	assert.Empty(t, gw.CustomerCalls)
}

func TestService_Capture_UnknownOrder(t *testing.T) {
	svc, _, _ := newCaptureService(t)

	_, err := svc.Capture(context.Background(), captureRequest(999))
	assert.Equal(t, apperrors.CodeOrderNotFound, appCode(t, err))
}

func TestService_Capture_NotPending(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	st.SetStatus(id, order.StatusShipped)

	_, err := svc.Capture(context.Background(), captureRequest(id))
	ae := apperrors.From(err)
	assert.Equal(t, apperrors.CodeAlreadyCaptured, ae.Code)
	assert.Equal(t, 409, ae.Status)
	assert.Empty(t, gw.ChargeCalls)
}

func TestService_Capture_RecordFailure(t *testing.T) {
	svc, st, gw := newCaptureService(t)
	id := placeOrder(t, st)
	st.CaptureErr = errors.New("connection reset")

	_, err := svc.Capture(context.Background(), captureRequest(id))
	assert.Equal(t, apperrors.CodeTransactionFailed, appCode(t, err))

	// The retry reuses the idempotency key, so the gateway returns the first charge.
	st.CaptureErr = nil
	res, err := svc.Capture(context.Background(), captureRequest(id))
	require.NoError(t, err)
	assert.Equal(t, 1, gw.Charges())
	assert.Equal(t, st.CaptureCalls[0].ChargeID, res.ChargeID)
}

func TestService_Capture_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  payment.CaptureRequest
		code string
	}{
		{"no order id", payment.CaptureRequest{Email: "a@b.c", PaymentToken: "tok", CustomerID: 7}, apperrors.CodeMissingField},
		{"negative order id", payment.CaptureRequest{OrderID: -1, Email: "a@b.c", PaymentToken: "tok", CustomerID: 7}, apperrors.CodeInvalidField},
		{"no email", payment.CaptureRequest{OrderID: 1, PaymentToken: "tok", CustomerID: 7}, apperrors.CodeMissingField},
		{"no token", payment.CaptureRequest{OrderID: 1, Email: "a@b.c", CustomerID: 7}, apperrors.CodeMissingField},
		{"no customer", payment.CaptureRequest{OrderID: 1, Email: "a@b.c", PaymentToken: "tok"}, apperrors.CodeAuthRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, gw := newCaptureService(t)
			_, err := svc.Capture(context.Background(), tt.req)
			assert.Equal(t, tt.code, appCode(t, err))
			assert.Empty(t, gw.CustomerCalls)
		})
	}
}
