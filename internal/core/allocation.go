package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Row-level helpers shared by the ledger, the reservation ledger and the order service.
// Every helper takes the caller's transaction; none of them commits.

const productColumns = `
	id, sku, name, kind, size_spec, pool_quantity, reserved_quantity, units_sold,
	min_stock_level, bulk_material_id, packaging_material_id, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Kind, &p.SizeSpec, &p.PoolQuantity, &p.ReservedQuantity,
		&p.UnitsSold, &p.MinStockLevel, &p.BulkMaterialID, &p.PackagingMaterialID, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// lockProduct reads a product row FOR UPDATE. Every operation that writes a movement
// holds this lock, which serializes the product's movement chain.
func lockProduct(ctx context.Context, tx pgx.Tx, productID int) (*Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("product", productID)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", productID, err)
	}
	return p, nil
}

func getProduct(ctx context.Context, q pgxQuerier, productID int) (*Product, error) {
	p, err := scanProduct(q.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("product", productID)
		}
		return nil, fmt.Errorf("failed to read product %d: %w", productID, err)
	}
	return p, nil
}

// writeProductQuantities persists the quantity columns of a locked product.
func writeProductQuantities(ctx context.Context, tx pgx.Tx, p *Product) error {
	_, err := tx.Exec(ctx, `
		UPDATE products
		SET pool_quantity = $2, reserved_quantity = $3, units_sold = $4, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.PoolQuantity, p.ReservedQuantity, p.UnitsSold)
	if err != nil {
		return fmt.Errorf("failed to update product %d quantities: %w", p.ID, err)
	}
	return nil
}

// getLocation reads a location and keeps it from being deleted for the rest of the tx.
func getLocation(ctx context.Context, tx pgx.Tx, locationID int) (*Location, error) {
	var l Location
	err := tx.QueryRow(ctx, `
		SELECT id, kind, code, name, is_active
		FROM locations
		WHERE id = $1
		FOR SHARE
	`, locationID).Scan(&l.ID, &l.Kind, &l.Code, &l.Name, &l.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("location", locationID)
		}
		return nil, fmt.Errorf("failed to read location %d: %w", locationID, err)
	}
	return &l, nil
}

// lockAllocation returns the allocation row FOR UPDATE, or (nil, nil) when the product
// has never been assigned to the location.
func lockAllocation(ctx context.Context, tx pgx.Tx, locationID, productID int) (*Allocation, error) {
	var a Allocation
	err := tx.QueryRow(ctx, `
		SELECT la.location_id, l.kind, la.product_id, la.quantity,
		       la.min_stock_level, la.max_stock_level, la.last_updated
		FROM location_allocations la
		JOIN locations l ON l.id = la.location_id
		WHERE la.location_id = $1 AND la.product_id = $2
		FOR UPDATE OF la
	`, locationID, productID).Scan(
		&a.LocationID, &a.LocationKind, &a.ProductID, &a.Quantity,
		&a.MinStockLevel, &a.MaxStockLevel, &a.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock allocation (%d, %d): %w", locationID, productID, err)
	}
	return &a, nil
}

func insertAllocation(ctx context.Context, tx pgx.Tx, a *Allocation) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO location_allocations (location_id, product_id, quantity, min_stock_level, max_stock_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING last_updated
	`, a.LocationID, a.ProductID, a.Quantity, a.MinStockLevel, a.MaxStockLevel).Scan(&a.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to create allocation (%d, %d): %w", a.LocationID, a.ProductID, err)
	}
	return nil
}

func updateAllocationQuantity(ctx context.Context, tx pgx.Tx, a *Allocation) error {
	err := tx.QueryRow(ctx, `
		UPDATE location_allocations
		SET quantity = $3, last_updated = NOW()
		WHERE location_id = $1 AND product_id = $2
		RETURNING last_updated
	`, a.LocationID, a.ProductID, a.Quantity).Scan(&a.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to update allocation (%d, %d): %w", a.LocationID, a.ProductID, err)
	}
	return nil
}

func deleteAllocation(ctx context.Context, tx pgx.Tx, locationID, productID int) error {
	if _, err := tx.Exec(ctx,
		"DELETE FROM location_allocations WHERE location_id = $1 AND product_id = $2",
		locationID, productID); err != nil {
		return fmt.Errorf("failed to delete allocation (%d, %d): %w", locationID, productID, err)
	}
	return nil
}

// soldAtLocation sums the retail units of completed orders placed at the shop.
func soldAtLocation(ctx context.Context, q pgxQuerier, locationID, productID int) (int, error) {
	var sold int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(oi.quantity), 0)::bigint
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.shop_id = $1
		  AND oi.product_id = $2
		  AND oi.item_kind = 'retail'
		  AND o.status = 'completed'
	`, locationID, productID).Scan(&sold)
	if err != nil {
		return 0, fmt.Errorf("failed to sum sold units at location %d: %w", locationID, err)
	}
	return sold, nil
}

// unsoldRemaining is the floor a shop allocation may be reduced to.
func unsoldRemaining(current, sold int) int {
	if r := current - sold; r > 0 {
		return r
	}
	return 0
}

func insertMovement(ctx context.Context, tx pgx.Tx, m *Movement) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_movements (
			product_id, movement_type, quantity, previous_stock, new_stock,
			from_kind, from_location_id, to_kind, to_location_id,
			from_before, from_after, to_before, to_after,
			reference_id, actor
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`,
		m.ProductID, string(m.Type), m.Quantity, m.PreviousStock, m.NewStock,
		string(m.From.Kind), m.From.locationIDOrNil(), string(m.To.Kind), m.To.locationIDOrNil(),
		m.FromBefore, m.FromAfter, m.ToBefore, m.ToAfter,
		m.ReferenceID, m.Actor,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s movement for product %d: %w", m.Type, m.ProductID, err)
	}
	return nil
}

const movementColumns = `
	id, product_id, movement_type, quantity, previous_stock, new_stock,
	from_kind, from_location_id, to_kind, to_location_id,
	from_before, from_after, to_before, to_after,
	reference_id, actor, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m                Movement
		fromKind, toKind string
		fromLoc, toLoc   *int
	)
	err := row.Scan(
		&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.PreviousStock, &m.NewStock,
		&fromKind, &fromLoc, &toKind, &toLoc,
		&m.FromBefore, &m.FromAfter, &m.ToBefore, &m.ToAfter,
		&m.ReferenceID, &m.Actor, &m.CreatedAt,
	)
	if err != nil {
		return m, err
	}
	m.From = Endpoint{Kind: EndpointKind(fromKind)}
	if fromLoc != nil {
		m.From.LocationID = *fromLoc
	}
	m.To = Endpoint{Kind: EndpointKind(toKind)}
	if toLoc != nil {
		m.To.LocationID = *toLoc
	}
	return m, nil
}

func intPtr(v int) *int { return &v }
