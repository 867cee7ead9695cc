package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is. The typed errors below match one or more of them and carry
// the quantities involved so callers can render a precise message.
var (
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInsufficientShopStock    = errors.New("insufficient shop stock")
	ErrInsufficientBulkMaterial = errors.New("insufficient bulk material")
	ErrInsufficientPackaging    = errors.New("insufficient packaging")
	ErrUnsoldStockRemaining     = errors.New("unsold stock remaining")
	ErrNotAssignedToLocation    = errors.New("product not assigned to location")
	ErrInvalidTransition        = errors.New("invalid order transition")
	ErrNotFound                 = errors.New("not found")
	ErrConcurrencyConflict      = errors.New("concurrency conflict")
	ErrBusy                     = errors.New("store busy, retry later")
	ErrInvalidQuantity          = errors.New("quantity must be positive")
	ErrInvalidEndpoint          = errors.New("invalid transfer endpoint")
	ErrInvalidInput             = errors.New("invalid input")
)

// Shortfall is one item that could not be covered during an all-or-nothing reserve.
type Shortfall struct {
	ProductID int `json:"product_id"`
	Requested int `json:"requested"`
	Available int `json:"available"`
}

// InsufficientStockError is returned when the source endpoint cannot cover the request.
// LocationID is nil for pool shortfalls.
type InsufficientStockError struct {
	ProductID  int
	LocationID *int
	AtShop     bool
	Requested  int
	Available  int
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) > 0 {
		parts := make([]string, 0, len(e.Shortfalls))
		for _, s := range e.Shortfalls {
			parts = append(parts, fmt.Sprintf("product %d: requested %d, available %d", s.ProductID, s.Requested, s.Available))
		}
		return "insufficient stock: " + strings.Join(parts, "; ")
	}
	if e.LocationID != nil {
		return fmt.Sprintf("insufficient stock for product %d at location %d: requested %d, available %d",
			e.ProductID, *e.LocationID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	switch target {
	case ErrInsufficientStock:
		return true
	case ErrInsufficientShopStock:
		return e.AtShop
	}
	return false
}

// MaterialShortageError is returned by the production path and by atelier items when a
// material balance cannot cover the required amount.
type MaterialShortageError struct {
	MaterialID int
	Kind       MaterialKind
	Required   decimal.Decimal
	Available  decimal.Decimal
}

func (e *MaterialShortageError) Error() string {
	return fmt.Sprintf("insufficient %s material %d: required %s, available %s",
		e.Kind, e.MaterialID, e.Required.String(), e.Available.String())
}

func (e *MaterialShortageError) Is(target error) bool {
	switch target {
	case ErrInsufficientBulkMaterial:
		return e.Kind == MaterialBulk
	case ErrInsufficientPackaging:
		return e.Kind == MaterialPackaging
	case ErrInsufficientStock:
		return e.Kind == MaterialRaw
	}
	return false
}

// UnsoldStockRemainingError rejects a shop decrease below the unsold remainder.
type UnsoldStockRemainingError struct {
	LocationID int
	ProductID  int
	Remaining  int
	Requested  int
}

func (e *UnsoldStockRemainingError) Error() string {
	return fmt.Sprintf("cannot set product %d at location %d to %d: %d unsold units remain",
		e.ProductID, e.LocationID, e.Requested, e.Remaining)
}

func (e *UnsoldStockRemainingError) Is(target error) bool { return target == ErrUnsoldStockRemaining }

// NotAssignedError is returned when no allocation row exists for (location, product).
type NotAssignedError struct {
	LocationID int
	ProductID  int
}

func (e *NotAssignedError) Error() string {
	return fmt.Sprintf("product %d is not assigned to location %d", e.ProductID, e.LocationID)
}

func (e *NotAssignedError) Is(target error) bool { return target == ErrNotAssignedToLocation }

// InvalidTransitionError is returned by the order state machine guard.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}
