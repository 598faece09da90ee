package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/example/ec-checkout/internal/apperrors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type addToCartRequest struct {
	CartID     string `json:"cart_id" validate:"required"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	Attributes string `json:"attributes" validate:"max=1000"`
	Quantity   int    `json:"quantity" validate:"gte=1"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

type createOrderRequest struct {
	CartID     string `json:"cart_id" validate:"required"`
	ShippingID int64  `json:"shipping_id" validate:"required,gt=0"`
	TaxID      int64  `json:"tax_id" validate:"required,gt=0"`
}

type chargeRequest struct {
	OrderID     int64  `json:"order_id" validate:"required,gt=0"`
	Email       string `json:"email" validate:"required,email"`
	StripeToken string `json:"stripeToken" validate:"required"`
}

// decodeAndValidate reads the JSON body into dst and validates it. The first failing field
// becomes the error's field.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidField("body", "request body must be a JSON object")
	}
	return validateStruct(dst)
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Internal(err)
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return apperrors.MissingField(fe.Field())
	}
	return apperrors.InvalidField(fe.Field(), msgForTag(fe))
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed on '%s' validation", fe.Field(), fe.Tag())
	}
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, apperrors.MissingField(name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidField(name, name+" must be a positive integer")
	}
	return id, nil
}
