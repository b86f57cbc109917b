package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnknownIngredient           = errors.New("unknown ingredient")
	ErrUnknownProduct              = errors.New("unknown product")
	ErrInsufficientStock           = errors.New("insufficient stock")
	ErrInsufficientIngredients     = errors.New("insufficient ingredients")
	ErrInvalidProductConfiguration = errors.New("invalid product configuration")
	ErrInvalidQuantity             = errors.New("invalid quantity")
	ErrInvalidPayment              = errors.New("invalid payment")
	ErrInvalidDiscount             = errors.New("invalid discount")
)

// InsufficientStockError is returned when a sale cannot be covered by the
// ingredient ledger. Missing holds ingredient names for display.
type InsufficientStockError struct {
	Missing []string
}

func (e *InsufficientStockError) Error() string {
	if len(e.Missing) == 0 {
		return ErrInsufficientStock.Error()
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(e.Missing, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InsufficientIngredientsError is the production-run variant. It also
// matches ErrInsufficientStock so callers can treat both uniformly.
type InsufficientIngredientsError struct {
	Missing []string
}

func (e *InsufficientIngredientsError) Error() string {
	if len(e.Missing) == 0 {
		return ErrInsufficientIngredients.Error()
	}
	return ErrInsufficientIngredients.Error() + ": " + strings.Join(e.Missing, ", ")
}

func (e *InsufficientIngredientsError) Is(target error) bool {
	return target == ErrInsufficientIngredients || target == ErrInsufficientStock
}

// MissingIngredients extracts the ingredient names carried by a stock error.
func MissingIngredients(err error) []string {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Missing
	}
	var prodErr *InsufficientIngredientsError
	if errors.As(err, &prodErr) {
		return prodErr.Missing
	}
	return nil
}
