package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/example/ec-checkout/internal/apperrors"
)

type errorBody struct {
	Error *apperrors.AppError `json:"error"`
}

// WriteError writes the uniform {"error":{...}} payload.
func WriteError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err})
}
