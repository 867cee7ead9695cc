package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// produceTx bottles units of a perfume into the pool: bottle volume × units of bulk
// liquid and one packaging unit per bottle are deducted, and one production movement
// is appended per unit. Both materials are checked before either balance changes.
func produceTx(ctx context.Context, tx pgx.Tx, product *Product, units int, ref, actor string) ([]Movement, []MaterialMovement, error) {
	if units <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, units)
	}
	if product.BulkMaterialID == nil {
		return nil, nil, notFound("bulk material for product", product.ID)
	}
	if product.PackagingMaterialID == nil {
		return nil, nil, notFound("packaging material for product", product.ID)
	}

	bottleML, err := ParseVolumeML(product.SizeSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("product %d: %w", product.ID, err)
	}
	bulkNeeded := bottleML.Mul(decimal.NewFromInt(int64(units)))
	packNeeded := decimal.NewFromInt(int64(units))

	// Lock the two material rows in ascending id order.
	bulkID, packID := *product.BulkMaterialID, *product.PackagingMaterialID
	if bulkID == packID {
		return nil, nil, fmt.Errorf("%w: product %d uses material %d as both bulk and packaging", ErrInvalidInput, product.ID, bulkID)
	}
	var bulk, pack *Material
	if bulkID <= packID {
		if bulk, err = lockMaterial(ctx, tx, bulkID); err == nil {
			pack, err = lockMaterial(ctx, tx, packID)
		}
	} else {
		if pack, err = lockMaterial(ctx, tx, packID); err == nil {
			bulk, err = lockMaterial(ctx, tx, bulkID)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	if bulk.Balance.LessThan(bulkNeeded) {
		return nil, nil, &MaterialShortageError{MaterialID: bulk.ID, Kind: MaterialBulk, Required: bulkNeeded, Available: bulk.Balance}
	}
	if pack.Balance.LessThan(packNeeded) {
		return nil, nil, &MaterialShortageError{MaterialID: pack.ID, Kind: MaterialPackaging, Required: packNeeded, Available: pack.Balance}
	}

	var matMovs []MaterialMovement
	for _, d := range []struct {
		m   *Material
		amt decimal.Decimal
	}{{bulk, bulkNeeded}, {pack, packNeeded}} {
		mm, err := changeMaterialBalance(ctx, tx, d.m, d.amt.Neg(), MovementProduction, ref)
		if err != nil {
			return nil, nil, err
		}
		matMovs = append(matMovs, *mm)
	}

	movs := make([]Movement, 0, units)
	for i := 0; i < units; i++ {
		m := Movement{
			ProductID:     product.ID,
			Type:          MovementProduction,
			Quantity:      1,
			PreviousStock: product.PoolQuantity,
			NewStock:      product.PoolQuantity + 1,
			From:          SinkEndpoint(),
			To:            PoolEndpoint(),
			ReferenceID:   ref,
			Actor:         actor,
		}
		if err := insertMovement(ctx, tx, &m); err != nil {
			return nil, nil, err
		}
		product.PoolQuantity++
		movs = append(movs, m)
	}
	if err := writeProductQuantities(ctx, tx, product); err != nil {
		return nil, nil, err
	}
	return movs, matMovs, nil
}

func lockMaterial(ctx context.Context, tx pgx.Tx, materialID int) (*Material, error) {
	var m Material
	err := tx.QueryRow(ctx, `
		SELECT id, kind, name, unit, balance
		FROM materials
		WHERE id = $1
		FOR UPDATE
	`, materialID).Scan(&m.ID, &m.Kind, &m.Name, &m.Unit, &m.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("material", materialID)
		}
		return nil, fmt.Errorf("failed to lock material %d: %w", materialID, err)
	}
	return &m, nil
}

// changeMaterialBalance applies delta to a locked material and records the change.
// The caller has already checked that the balance stays non-negative.
func changeMaterialBalance(ctx context.Context, tx pgx.Tx, m *Material, delta decimal.Decimal, typ MovementType, ref string) (*MaterialMovement, error) {
	mm := MaterialMovement{
		MaterialID:      m.ID,
		Type:            typ,
		Quantity:        delta.Abs(),
		PreviousBalance: m.Balance,
		NewBalance:      m.Balance.Add(delta),
		ReferenceID:     ref,
	}
	if _, err := tx.Exec(ctx,
		"UPDATE materials SET balance = $2, updated_at = NOW() WHERE id = $1",
		m.ID, mm.NewBalance); err != nil {
		return nil, fmt.Errorf("failed to update material %d balance: %w", m.ID, err)
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO material_movements (material_id, movement_type, quantity, previous_balance, new_balance, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, mm.MaterialID, string(mm.Type), mm.Quantity, mm.PreviousBalance, mm.NewBalance, mm.ReferenceID).Scan(&mm.ID, &mm.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record material movement for %d: %w", m.ID, err)
	}
	m.Balance = mm.NewBalance
	return &mm, nil
}
