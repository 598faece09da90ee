package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err onto the error payload. Server-side failures are logged with their
// cause; the client only sees the opaque message.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperrors.From(err)
	if ae.Status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.logger).Error("request failed",
			slog.String("code", ae.Code),
			slog.Any("error", err),
		)
	}
	middleware.WriteError(w, ae)
}
