package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/furniture-orders/internal/logging"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

// statusFor maps domain errors onto HTTP codes. Unknown errors are 500.
func statusFor(err error) int {
	var (
		ve *orders.ValidationError
		se *orders.StockError
		pe *orders.ProductMissingError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &se), errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.As(err, &pe), errors.Is(err, orders.ErrNotFound), errors.Is(err, orders.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrConflict), errors.Is(err, orders.ErrDuplicateSKU):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError echoes the error message; 500s are also logged.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, orders.ErrNotFound):
		msg = "Order not found"
	case errors.Is(err, orders.ErrProductNotFound) && !isProductMissing(err):
		msg = "Product not found"
	}
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, code, msg)
}

func isProductMissing(err error) bool {
	var pe *orders.ProductMissingError
	return errors.As(err, &pe)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
