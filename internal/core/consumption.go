package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Sales consumption: the eager paths used when an order is created with a non-pending
// payment, plus direct material deduction for atelier items. All of them run inside the
// order's transaction.

// ConsumeAtLocationTx sells qty units from a shop allocation. The pool is untouched;
// the product's sold counter mirrors the sale.
func ConsumeAtLocationTx(ctx context.Context, tx pgx.Tx, locationID, productID, qty int, ref, actor string) (*TransferResult, error) {
	res, err := transferTx(ctx, tx, TransferRequest{
		From:        LocationEndpoint(locationID),
		To:          SinkEndpoint(),
		ProductID:   productID,
		Quantity:    qty,
		Type:        MovementSale,
		ReferenceID: ref,
		Actor:       actor,
	})
	if err != nil {
		return nil, fmt.Errorf("consume at location %d: %w", locationID, err)
	}
	return res, nil
}

// ConsumeFromPoolTx sells qty units straight from the pool, for paid orders that are
// not attached to a shop.
func ConsumeFromPoolTx(ctx context.Context, tx pgx.Tx, productID, qty int, ref, actor string) (*TransferResult, error) {
	res, err := transferTx(ctx, tx, TransferRequest{
		From:        PoolEndpoint(),
		To:          SinkEndpoint(),
		ProductID:   productID,
		Quantity:    qty,
		Type:        MovementSale,
		ReferenceID: ref,
		Actor:       actor,
	})
	if err != nil {
		return nil, fmt.Errorf("consume from pool: %w", err)
	}
	return res, nil
}

// RestockTx returns previously sold units to a location or the pool as an adjustment.
// It is the compensating call for eager consumption on a cancelled order.
func RestockTx(ctx context.Context, tx pgx.Tx, to Endpoint, productID, qty int, ref, actor string) (*TransferResult, error) {
	return transferTx(ctx, tx, TransferRequest{
		From:        SinkEndpoint(),
		To:          to,
		ProductID:   productID,
		Quantity:    qty,
		Type:        MovementAdjustment,
		Restock:     true,
		ReferenceID: ref,
		Actor:       actor,
	})
}

// ReceiveTx books newly received units into the pool as an adjustment. The sold
// counter is left alone.
func ReceiveTx(ctx context.Context, tx pgx.Tx, productID, qty int, ref, actor string) (*TransferResult, error) {
	return transferTx(ctx, tx, TransferRequest{
		From:        SinkEndpoint(),
		To:          PoolEndpoint(),
		ProductID:   productID,
		Quantity:    qty,
		Type:        MovementAdjustment,
		ReferenceID: ref,
		Actor:       actor,
	})
}

// ConsumeMaterialTx deducts amount from a raw-material balance. Bulk and packaging
// balances are only consumed by production.
func ConsumeMaterialTx(ctx context.Context, tx pgx.Tx, materialID int, amount decimal.Decimal, ref string) (*MaterialMovement, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidQuantity, amount)
	}
	m, err := lockMaterial(ctx, tx, materialID)
	if err != nil {
		return nil, err
	}
	if m.Kind != MaterialRaw {
		return nil, fmt.Errorf("%w: material %d is %s, not raw", ErrInvalidInput, m.ID, m.Kind)
	}
	if m.Balance.LessThan(amount) {
		return nil, &MaterialShortageError{MaterialID: m.ID, Kind: m.Kind, Required: amount, Available: m.Balance}
	}
	return changeMaterialBalance(ctx, tx, m, amount.Neg(), MovementSale, ref)
}
