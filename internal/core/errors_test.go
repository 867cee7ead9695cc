package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockError_Is(t *testing.T) {
	pool := &InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}
	assert.ErrorIs(t, pool, ErrInsufficientStock)
	assert.NotErrorIs(t, pool, ErrInsufficientShopStock)
	assert.Equal(t, "insufficient stock for product 1: requested 5, available 2", pool.Error())

	shop := fmt.Errorf("sell: %w", &InsufficientStockError{ProductID: 1, LocationID: intPtr(4), AtShop: true, Requested: 3, Available: 0})
	assert.ErrorIs(t, shop, ErrInsufficientStock)
	assert.ErrorIs(t, shop, ErrInsufficientShopStock)

	var typed *InsufficientStockError
	assert.True(t, errors.As(shop, &typed))
	assert.Equal(t, 4, *typed.LocationID)
}

func TestInsufficientStockError_Shortfalls(t *testing.T) {
	err := &InsufficientStockError{Shortfalls: []Shortfall{
		{ProductID: 1, Requested: 5, Available: 2},
		{ProductID: 2, Requested: 1, Available: 0},
	}}
	assert.Equal(t, "insufficient stock: product 1: requested 5, available 2; product 2: requested 1, available 0", err.Error())
}

func TestMaterialShortageError_Is(t *testing.T) {
	bulk := &MaterialShortageError{MaterialID: 1, Kind: MaterialBulk, Required: decimal.NewFromInt(30), Available: decimal.NewFromInt(10)}
	assert.ErrorIs(t, bulk, ErrInsufficientBulkMaterial)
	assert.NotErrorIs(t, bulk, ErrInsufficientPackaging)

	pkg := &MaterialShortageError{Kind: MaterialPackaging}
	assert.ErrorIs(t, pkg, ErrInsufficientPackaging)

	raw := &MaterialShortageError{Kind: MaterialRaw}
	assert.ErrorIs(t, raw, ErrInsufficientStock)
}

func TestDomainErrors_Is(t *testing.T) {
	assert.ErrorIs(t, &UnsoldStockRemainingError{Remaining: 2}, ErrUnsoldStockRemaining)
	assert.ErrorIs(t, &NotAssignedError{LocationID: 1, ProductID: 2}, ErrNotAssignedToLocation)
	assert.ErrorIs(t, &InvalidTransitionError{From: OrderCompleted, To: OrderCancelled}, ErrInvalidTransition)
	assert.ErrorIs(t, notFound("order", "ORD-2026-00001"), ErrNotFound)
	assert.Equal(t, "order ORD-2026-00001 not found", notFound("order", "ORD-2026-00001").Error())
}
