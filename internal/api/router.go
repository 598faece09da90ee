package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/metrics"
)

// NewRouter wires every route. m may be nil; metricsHandler is mounted at /metrics when set.
func NewRouter(h *Handlers, verifier auth.IdentityVerifier, m *metrics.Metrics, metricsHandler http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = logger.Discard()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogging(log))
	r.Use(middleware.Recovery(log))
	r.Use(m.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, apperrors.NotFound("route", "", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, &apperrors.AppError{
			Status:  http.StatusMethodNotAllowed,
			Code:    apperrors.CodeInvalidField,
			Message: "method not allowed",
			Kind:    apperrors.ErrValidation,
		})
	})

	r.Get("/healthz", h.Healthz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Cart
	r.Route("/shoppingcart", func(r chi.Router) {
		r.Get("/generateUniqueId", h.GenerateCartID)
		r.Post("/add", h.AddToCart)
		r.Put("/update/{item_id}", h.UpdateCartItem)
		r.Delete("/empty/{cart_id}", h.EmptyCart)
		r.Delete("/removeProduct/{item_id}", h.RemoveCartItem)
		r.Get("/{cart_id}", h.GetCart)
	})

	// Orders
	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.Authenticate(verifier))
		r.Post("/", h.CreateOrder)
		r.Get("/inCustomer", h.CustomerOrders)
		r.Get("/shortDetail/{order_id}", h.ShortOrder)
		r.Get("/{order_id}", h.GetOrder)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/{order_id}/ship", h.ShipOrder)
	})

	// Payments
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(verifier))
		r.Post("/stripe/charge", h.Charge)
	})

	return r
}

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
