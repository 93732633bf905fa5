package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrProductNotFound   = errors.New("product: not found")
	ErrForbidden         = errors.New("order: forbidden")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrConflict          = errors.New("order: status changed concurrently")
	ErrDuplicateSKU      = errors.New("product: sku already exists")
)

// ValidationError is a request problem the caller can fix.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StockError reports a line that cannot be served from the current stock.
type StockError struct {
	ProductID string
	Product   string
	Color     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	if e.Color != "" {
		return fmt.Sprintf("Insufficient stock for %s (color %s): requested %d, available %d",
			e.Product, e.Color, e.Requested, e.Available)
	}
	return fmt.Sprintf("Insufficient stock for %s: requested %d, available %d",
		e.Product, e.Requested, e.Available)
}

// ProductMissingError names the product id that could not be found.
type ProductMissingError struct{ ProductID string }

func (e *ProductMissingError) Error() string { return "Product not found: " + e.ProductID }

func (e *ProductMissingError) Unwrap() error { return ErrProductNotFound }

// TransitionError is a status change the transition table does not allow.
type TransitionError struct{ From, To Status }

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Cannot change order status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
