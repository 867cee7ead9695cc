package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReportingService is the read-only query surface over stock state.
type ReportingService interface {
	// StockSummary returns pool, reserved and per-location figures for one product.
	StockSummary(ctx context.Context, productID int) (*StockSummary, error)
	// ListMovements returns the newest movements of a product first.
	ListMovements(ctx context.Context, productID, limit int) ([]Movement, error)
	// VerifyChain replays the movement chain of a product and reports every break.
	VerifyChain(ctx context.Context, productID int) (*ChainReport, error)
	// LowStock lists allocations at or below their minimum level.
	LowStock(ctx context.Context) ([]LowStockRow, error)
	// Conservation checks pool + assigned = inputs − sales for one product.
	Conservation(ctx context.Context, productID int) (*ConservationReport, error)
	ListReservations(ctx context.Context, orderID int) ([]Reservation, error)
}

// StockSummary is the per-product view exposed to callers. TotalOnHand counts pool and
// allocations; AvailableForAssignment is what the pool can still hand out.
type StockSummary struct {
	ProductID              int             `json:"product_id"`
	SKU                    string          `json:"sku"`
	Name                   string          `json:"name"`
	Kind                   ProductKind     `json:"kind"`
	PoolQuantity           int             `json:"pool_quantity"`
	ReservedQuantity       int             `json:"reserved_quantity"`
	Available              int             `json:"available"`
	TotalAssigned          int             `json:"total_assigned"`
	TotalOnHand            int             `json:"total_on_hand"`
	AvailableForAssignment int             `json:"available_for_assignment"`
	UnitsSold              int             `json:"units_sold"`
	Locations              []LocationStock `json:"locations"`
}

// LocationStock is one allocation row with its sold and unsold figures.
type LocationStock struct {
	LocationID    int          `json:"location_id"`
	Code          string       `json:"code"`
	Name          string       `json:"name"`
	Kind          LocationKind `json:"kind"`
	Quantity      int          `json:"quantity"`
	MinStockLevel int          `json:"min_stock_level"`
	MaxStockLevel int          `json:"max_stock_level"`
	Sold          int          `json:"sold"`
	Remaining     int          `json:"remaining"`
	LowStock      bool         `json:"low_stock"`
}

// ChainBreak is a movement whose previous_stock does not match its predecessor.
type ChainBreak struct {
	MovementID int64 `json:"movement_id"`
	Expected   int   `json:"expected"`
	Got        int   `json:"got"`
}

type ChainReport struct {
	ProductID   int          `json:"product_id"`
	Movements   int          `json:"movements"`
	Breaks      []ChainBreak `json:"breaks,omitempty"`
	FinalStock  int          `json:"final_stock"`
	CurrentPool int          `json:"current_pool"`
	Consistent  bool         `json:"consistent"`
}

type LowStockRow struct {
	LocationID    int          `json:"location_id"`
	LocationCode  string       `json:"location_code"`
	LocationKind  LocationKind `json:"location_kind"`
	ProductID     int          `json:"product_id"`
	SKU           string       `json:"sku"`
	Quantity      int          `json:"quantity"`
	MinStockLevel int          `json:"min_stock_level"`
}

// ConservationReport compares stock on hand with the sum of recorded inflows and sales.
// Initial is the pool value before the first movement.
type ConservationReport struct {
	ProductID   int  `json:"product_id"`
	Initial     int  `json:"initial"`
	Adjustments int  `json:"adjustments"`
	Produced    int  `json:"produced"`
	Sold        int  `json:"sold"`
	Expected    int  `json:"expected"`
	OnHand      int  `json:"on_hand"`
	Balanced    bool `json:"balanced"`
}

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

func (s *reportingService) StockSummary(ctx context.Context, productID int) (*StockSummary, error) {
	p, err := getProduct(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}
	sum := &StockSummary{
		ProductID:        p.ID,
		SKU:              p.SKU,
		Name:             p.Name,
		Kind:             p.Kind,
		PoolQuantity:     p.PoolQuantity,
		ReservedQuantity: p.ReservedQuantity,
		Available:        p.Available(),
		UnitsSold:        p.UnitsSold,
	}

	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.code, l.name, l.kind, la.quantity, la.min_stock_level, la.max_stock_level,
		       COALESCE((
		           SELECT SUM(oi.quantity)::bigint
		           FROM order_items oi
		           JOIN orders o ON o.id = oi.order_id
		           WHERE o.shop_id = l.id AND oi.product_id = la.product_id
		             AND oi.item_kind = 'retail' AND o.status = 'completed'
		       ), 0)
		FROM location_allocations la
		JOIN locations l ON l.id = la.location_id
		WHERE la.product_id = $1
		ORDER BY l.kind, l.code
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations of product %d: %w", productID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ls LocationStock
		if err := rows.Scan(&ls.LocationID, &ls.Code, &ls.Name, &ls.Kind, &ls.Quantity,
			&ls.MinStockLevel, &ls.MaxStockLevel, &ls.Sold); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		if ls.Kind == LocationShop {
			ls.Remaining = unsoldRemaining(ls.Quantity, ls.Sold)
		} else {
			ls.Sold = 0
			ls.Remaining = ls.Quantity
		}
		ls.LowStock = ls.Quantity <= ls.MinStockLevel
		sum.TotalAssigned += ls.Quantity
		sum.Locations = append(sum.Locations, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allocations: %w", err)
	}

	sum.TotalOnHand = sum.PoolQuantity + sum.TotalAssigned
	// The pool is already net of allocations; only reserved units are held back.
	sum.AvailableForAssignment = sum.Available
	return sum, nil
}

func (s *reportingService) ListMovements(ctx context.Context, productID, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements of product %d: %w", productID, err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *reportingService) VerifyChain(ctx context.Context, productID int) (*ChainReport, error) {
	p, err := getProduct(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, previous_stock, new_stock
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movement chain of product %d: %w", productID, err)
	}
	defer rows.Close()

	var links []chainLink
	for rows.Next() {
		var l chainLink
		if err := rows.Scan(&l.ID, &l.Previous, &l.New); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read movement chain: %w", err)
	}

	report := replayChain(links, p.PoolQuantity)
	report.ProductID = productID
	return report, nil
}

type chainLink struct {
	ID       int64
	Previous int
	New      int
}

// replayChain checks that each link starts where the previous one ended and that the
// last link ends at the current pool value.
func replayChain(links []chainLink, currentPool int) *ChainReport {
	r := &ChainReport{Movements: len(links), CurrentPool: currentPool}
	if len(links) == 0 {
		r.FinalStock = currentPool
		r.Consistent = true
		return r
	}
	for i := 1; i < len(links); i++ {
		if links[i].Previous != links[i-1].New {
			r.Breaks = append(r.Breaks, ChainBreak{MovementID: links[i].ID, Expected: links[i-1].New, Got: links[i].Previous})
		}
	}
	r.FinalStock = links[len(links)-1].New
	r.Consistent = len(r.Breaks) == 0 && r.FinalStock == currentPool
	return r
}

func (s *reportingService) LowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.code, l.kind, p.id, p.sku, la.quantity, la.min_stock_level
		FROM location_allocations la
		JOIN locations l ON l.id = la.location_id
		JOIN products p  ON p.id = la.product_id
		WHERE l.is_active AND la.quantity <= la.min_stock_level
		ORDER BY l.code, p.sku
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	defer rows.Close()

	var out []LowStockRow
	for rows.Next() {
		var r LowStockRow
		if err := rows.Scan(&r.LocationID, &r.LocationCode, &r.LocationKind, &r.ProductID, &r.SKU,
			&r.Quantity, &r.MinStockLevel); err != nil {
			return nil, fmt.Errorf("failed to scan low stock row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *reportingService) Conservation(ctx context.Context, productID int) (*ConservationReport, error) {
	p, err := getProduct(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}
	r := &ConservationReport{ProductID: productID, Initial: p.PoolQuantity}

	// Inflows and sales are read from the movement log; sales from a location do not
	// touch the pool, so they are counted separately from pool sales.
	err = s.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT previous_stock FROM stock_movements WHERE product_id = $1 ORDER BY id LIMIT 1), $2),
			COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'adjustment' AND from_kind = 'sink'), 0)::bigint,
			COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'production'), 0)::bigint,
			COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'sale' AND to_kind = 'sink'), 0)::bigint
		FROM stock_movements
		WHERE product_id = $1
	`, productID, p.PoolQuantity).Scan(&r.Initial, &r.Adjustments, &r.Produced, &r.Sold)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate movements of product %d: %w", productID, err)
	}

	var assigned int
	if err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity), 0)::bigint FROM location_allocations WHERE product_id = $1",
		productID).Scan(&assigned); err != nil {
		return nil, fmt.Errorf("failed to sum allocations of product %d: %w", productID, err)
	}

	r.Expected = r.Initial + r.Adjustments + r.Produced - r.Sold
	r.OnHand = p.PoolQuantity + assigned
	r.Balanced = r.Expected == r.OnHand
	return r, nil
}

func (s *reportingService) ListReservations(ctx context.Context, orderID int) ([]Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations of order %d: %w", orderID, err)
	}
	defer rows.Close()
	return scanReservations(rows)
}
