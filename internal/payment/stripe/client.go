// Package stripe is a payment.Gateway backed by the Stripe REST API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/payment"
)

const DefaultBaseURL = "https://api.stripe.com"

// BreakerConfig controls when the client stops calling Stripe.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

type Config struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Breaker    BreakerConfig
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Client talks to Stripe with form-encoded POSTs.
type Client struct {
	secretKey string
	baseURL   string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*response]
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type response struct {
	status int
	body   []byte
}

type apiError struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	log := logger.Component(cfg.Logger, "stripe")

	bc := cfg.Breaker
	settings := gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			cfg.Metrics.SetBreakerState(name, stateToFloat(to))
		},
	}
	cfg.Metrics.SetBreakerState("stripe", 0)

	return &Client{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      cfg.HTTPClient,
		breaker:   gobreaker.NewCircuitBreaker[*response](settings),
		metrics:   cfg.Metrics,
		logger:    log,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the current breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) CreateCustomer(ctx context.Context, req payment.CustomerRequest) (string, error) {
	form := url.Values{}
	form.Set("email", req.Email)
	form.Set("source", req.Token)
	if req.Reference != "" {
		form.Set("description", req.Reference)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "customers", "/v1/customers", form, req.IdempotencyKey, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", req.Currency)
	form.Set("customer", req.Customer)
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", req.Metadata[k])
	}

	var ch payment.Charge
	if err := c.post(ctx, "charges", "/v1/charges", form, req.IdempotencyKey, &ch); err != nil {
		return nil, err
	}
	if !ch.Paid && ch.Status == "failed" {
		return nil, payment.Declined("", "charge failed", http.StatusOK)
	}
	return &ch, nil
}

func (c *Client) post(ctx context.Context, op, path string, form url.Values, idempotencyKey string, out any) error {
	start := time.Now()
	defer func() { c.metrics.ObserveGateway(op, time.Since(start)) }()

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("create %s request: %w", op, err)
		}
		req.SetBasicAuth(c.secretKey, "")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", op, err)
		}
		// 5xx and rate limits count against the breaker; other 4xx are the caller's problem.
		if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, payment.Unavailable(errorMessage(body, httpResp.StatusCode), httpResp.StatusCode)
		}
		return &response{status: httpResp.StatusCode, body: body}, nil
	})
	if err != nil {
		var ge *payment.GatewayError
		switch {
		case errors.As(err, &ge):
			return err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return payment.Unavailable("payment gateway circuit open", 0)
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%s: %w", op, err)
		default:
			c.logger.WarnContext(ctx, "stripe transport error", slog.String("op", op), slog.Any("error", err))
			return payment.Unavailable(err.Error(), 0)
		}
	}

	if resp.status >= 400 {
		return classify(resp.status, resp.body)
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return payment.Unavailable(fmt.Sprintf("decode %s response: %v", op, err), resp.status)
	}
	return nil
}

func classify(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := errorMessage(body, status)
	code := ae.Error.DeclineCode
	if code == "" {
		code = ae.Error.Code
	}
	switch {
	case ae.Error.Type == "idempotency_error":
		// Key reused with other parameters; the card was never tried.
		return &payment.GatewayError{Kind: payment.ErrUnavailable, Code: ae.Error.Type, Message: msg, Status: status}
	case ae.Error.Type == "card_error", status == http.StatusPaymentRequired:
		return payment.Declined(code, msg, status)
	case ae.Error.Type == "invalid_request_error" && status == http.StatusBadRequest:
		// Bad or reused token.
		return payment.Declined(code, msg, status)
	default:
		return &payment.GatewayError{Kind: payment.ErrUnavailable, Code: code, Message: msg, Status: status}
	}
}

func errorMessage(body []byte, status int) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return ae.Error.Message
	}
	return fmt.Sprintf("gateway returned status %d", status)
}

var _ payment.Gateway = (*Client)(nil)
