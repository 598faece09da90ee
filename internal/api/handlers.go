package api

import (
	"log/slog"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/cart"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/orders"
	"github.com/example/ec-checkout/internal/payment"
)

type Handlers struct {
	carts    *cart.Service
	checkout *checkout.Service
	orders   *orders.Service
	payments *payment.Service
	logger   *slog.Logger
}

func NewHandlers(carts *cart.Service, co *checkout.Service, ord *orders.Service, payments *payment.Service, log *slog.Logger) *Handlers {
	if log == nil {
		log = logger.Discard()
	}
	return &Handlers{
		carts:    carts,
		checkout: co,
		orders:   ord,
		payments: payments,
		logger:   logger.Component(log, "api"),
	}
}

// Cart Handlers

func (h *Handlers) GenerateCartID(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"cart_id": h.carts.NewCartID()})
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	view, err := h.carts.Add(r.Context(), req.CartID, req.ProductID, req.Attributes, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Get(r.Context(), chiParam(r, "cart_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "item_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req updateQuantityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.carts.UpdateQuantity(r.Context(), itemID, *req.Quantity); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "quantity": *req.Quantity})
}

func (h *Handlers) EmptyCart(w http.ResponseWriter, r *http.Request) {
	cartID := chiParam(r, "cart_id")
	if err := h.carts.Clear(r.Context(), cartID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"cart_id": cartID, "message": "Cart emptied"})
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "item_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.carts.Remove(r.Context(), itemID); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "message": "Item removed"})
}

// Order Handlers

type createOrderResponse struct {
	OrderID  int64        `json:"order_id"`
	Replayed bool         `json:"replayed"`
	Order    *order.Order `json:"order"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.checkout.CreateOrder(r.Context(), checkout.Request{
		CartID:     req.CartID,
		ShippingID: req.ShippingID,
		TaxID:      req.TaxID,
		CustomerID: middleware.CustomerID(r.Context()),
		AuthCode:   middleware.CredentialFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, createOrderResponse{OrderID: res.Order.OrderID, Replayed: res.Replayed, Order: res.Order})
}

func (h *Handlers) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "order_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), middleware.CustomerID(r.Context()), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ShortOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "order_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	sum, err := h.orders.Short(r.Context(), middleware.CustomerID(r.Context()), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *Handlers) ShipOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "order_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	o, err := h.orders.Ship(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Payment Handlers

func (h *Handlers) Charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.payments.Capture(r.Context(), payment.CaptureRequest{
		OrderID:      req.OrderID,
		Email:        req.Email,
		PaymentToken: req.StripeToken,
		CustomerID:   middleware.CustomerID(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
