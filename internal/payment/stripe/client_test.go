package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-checkout/internal/payment"
)

func testBreaker() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      1 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{SecretKey: "sk_test_123", BaseURL: srv.URL, Breaker: testBreaker()})
}

// ============================================
// Request encoding
// ============================================

func TestClient_CreateCustomer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/customers", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_123", user)
		assert.Equal(t, "order-7-customer", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "a@example.com", r.PostForm.Get("email"))
		assert.Equal(t, "tok_visa", r.PostForm.Get("source"))
		_, _ = w.Write([]byte(`{"id":"cus_1"}`))
	})

	id, err := c.CreateCustomer(context.Background(), payment.CustomerRequest{
		Email:          "a@example.com",
		Token:          "tok_visa",
		IdempotencyKey: "order-7-customer",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", id)
}

func TestClient_CreateCharge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "order-7", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2448", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[order_id]"))
		_, _ = w.Write([]byte(`{"id":"ch_1","amount":2448,"currency":"usd","status":"succeeded","paid":true}`))
	})

	ch, err := c.CreateCharge(context.Background(), payment.ChargeRequest{
		Amount:         2448,
		Currency:       "usd",
		Customer:       "cus_1",
		Metadata:       map[string]string{"order_id": "7"},
		IdempotencyKey: "order-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", ch.ID)
	assert.True(t, ch.Paid)
	assert.Equal(t, int64(2448), ch.Amount)
}

// ============================================
// Error classification
// ============================================

func TestClient_CardDeclined(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`))
	})

	_, err := c.CreateCharge(context.Background(), payment.ChargeRequest{Amount: 100, Currency: "usd"})
	require.Error(t, err)
	assert.ErrorIs(t, err, payment.ErrDeclined)

	var ge *payment.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "insufficient_funds", ge.Code)
	assert.Equal(t, "Your card has insufficient funds.", ge.Message)
}

func TestClient_InvalidToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"token_already_used","message":"You cannot use a Stripe token more than once."}}`))
	})

	_, err := c.CreateCustomer(context.Background(), payment.CustomerRequest{Email: "a@example.com", Token: "tok_used"})
	assert.ErrorIs(t, err, payment.ErrDeclined)
}

func TestClient_IdempotencyErrorIsNotDecline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"idempotency_error","message":"Keys for idempotent requests can only be used with the same parameters they were first used with."}}`))
	})

	_, err := c.CreateCharge(context.Background(), payment.ChargeRequest{Amount: 100, Currency: "usd", IdempotencyKey: "order-7-abc"})
	assert.ErrorIs(t, err, payment.ErrUnavailable)
	assert.NotErrorIs(t, err, payment.ErrDeclined)
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClient_AuthErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
	})

	_, err := c.CreateCustomer(context.Background(), payment.CustomerRequest{Email: "a@example.com", Token: "tok"})
	assert.ErrorIs(t, err, payment.ErrUnavailable)
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.CreateCharge(context.Background(), payment.ChargeRequest{Amount: 100, Currency: "usd"})
	assert.ErrorIs(t, err, payment.ErrUnavailable)
}

func TestClient_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.CreateCharge(ctx, payment.ChargeRequest{Amount: 100, Currency: "usd"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ============================================
// Circuit breaker
// ============================================

func TestClient_BreakerTripsOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		_, err := c.CreateCharge(context.Background(), payment.ChargeRequest{Amount: 100, Currency: "usd"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.CreateCharge(context.Background(), payment.ChargeRequest{Amount: 100, Currency: "usd"})
	assert.ErrorIs(t, err, payment.ErrUnavailable)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DeclinesDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"declined"}}`))
	})

	for i := 0; i < 5; i++ {
		_, err := c.CreateCharge(context.Background(), payment.ChargeRequest{Amount: 100, Currency: "usd"})
		assert.ErrorIs(t, err, payment.ErrDeclined)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}
