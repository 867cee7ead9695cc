package core_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"inventory-engine/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	productTee  = 1 // general, pool 100
	productOud  = 2 // perfume 30ml, pool 0
	productWrap = 3 // service

	shopA     = 1
	shopB     = 2
	warehouse = 3

	bulkOud    = 1 // 900 ml
	bottle30   = 2 // 50 pcs
	silkRibbon = 3 // 20 m
)

type recordingNotifier struct {
	mu        sync.Mutex
	movements []core.Movement
}

func (r *recordingNotifier) MovementsCommitted(_ context.Context, m []core.Movement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, m...)
}

type engine struct {
	pool         *pgxpool.Pool
	ledger       core.StockLedger
	reservations core.ReservationLedger
	orders       core.OrderService
	reporting    core.ReportingService
	catalog      core.CatalogService
	notified     *recordingNotifier
}

func setupTestDB(t *testing.T) *engine {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live one.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_stock_engine.sql")
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE order_items, orders, order_sequences, reservations, stock_movements,
			location_allocations, locations, products, material_movements, materials
			RESTART IDENTITY CASCADE;

		INSERT INTO materials (kind, name, unit, balance) VALUES
		('bulk',      'Oud concentrate', 'ml',  900),
		('packaging', '30ml bottle',     'pcs', 50),
		('raw',       'Silk ribbon',     'm',   20);

		INSERT INTO products (sku, name, kind, size_spec, pool_quantity, bulk_material_id, packaging_material_id) VALUES
		('TEE-01', 'Logo tee',  'general', '',     100, NULL, NULL),
		('OUD-30', 'Oud 30ml',  'perfume', '30ml', 0,   1,    2),
		('WRAP',   'Gift wrap', 'service', '',     0,   NULL, NULL);

		INSERT INTO locations (kind, code, name) VALUES
		('shop',      'SHOP-A', 'High Street'),
		('shop',      'SHOP-B', 'Station Road'),
		('warehouse', 'WH-1',   'Central warehouse');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	notified := &recordingNotifier{}
	runner := core.NewTxRunner(pool, 2*time.Second)
	reservations := core.NewReservationLedger(runner, notified, nil)
	return &engine{
		pool:         pool,
		ledger:       core.NewStockLedger(runner, notified),
		reservations: reservations,
		orders: core.NewOrderService(runner, reservations, notified, nil, core.OrderConfig{
			ReservationTTL:          24 * time.Hour,
			ConfirmedReservationTTL: 48 * time.Hour,
		}),
		reporting: core.NewReportingService(pool),
		catalog:   core.NewCatalogService(runner, notified),
		notified:  notified,
	}
}

func (e *engine) summary(t *testing.T, productID int) *core.StockSummary {
	t.Helper()
	s, err := e.reporting.StockSummary(context.Background(), productID)
	if err != nil {
		t.Fatalf("StockSummary(%d) failed: %v", productID, err)
	}
	return s
}

func allocationAt(s *core.StockSummary, locationID int) int {
	for _, l := range s.Locations {
		if l.LocationID == locationID {
			return l.Quantity
		}
	}
	return -1
}

func (e *engine) materialBalance(t *testing.T, materialID int) decimal.Decimal {
	t.Helper()
	var bal decimal.Decimal
	if err := e.pool.QueryRow(context.Background(),
		"SELECT balance FROM materials WHERE id = $1", materialID).Scan(&bal); err != nil {
		t.Fatalf("Failed to read material %d: %v", materialID, err)
	}
	return bal
}

func (e *engine) verifyChain(t *testing.T, productID int) {
	t.Helper()
	report, err := e.reporting.VerifyChain(context.Background(), productID)
	if err != nil {
		t.Fatalf("VerifyChain(%d) failed: %v", productID, err)
	}
	if !report.Consistent {
		t.Errorf("movement chain of product %d is inconsistent: %+v", productID, report)
	}
	cons, err := e.reporting.Conservation(context.Background(), productID)
	if err != nil {
		t.Fatalf("Conservation(%d) failed: %v", productID, err)
	}
	if !cons.Balanced {
		t.Errorf("product %d does not conserve units: %+v", productID, cons)
	}
}

func one(qty int64) decimal.Decimal { return decimal.NewFromInt(qty) }

func retail(productID int, qty int64) core.OrderItemInput {
	return core.OrderItemInput{Kind: core.ItemRetail, ProductID: productID, Quantity: one(qty), UnitPrice: decimal.NewFromInt(10)}
}

// Pool=100. Assign 40 to Shop A.
func TestAssign_FromPool(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	res, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopA, ProductID: productTee, Quantity: 40, Actor: "test"})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if res.From.Before != 100 || res.From.After != 60 || res.To.Before != 0 || res.To.After != 40 {
		t.Errorf("unexpected balances: from %+v, to %+v", res.From, res.To)
	}

	s := e.summary(t, productTee)
	if s.PoolQuantity != 60 {
		t.Errorf("expected pool 60, got %d", s.PoolQuantity)
	}
	if got := allocationAt(s, shopA); got != 40 {
		t.Errorf("expected shop A 40, got %d", got)
	}
	if s.TotalOnHand != 100 {
		t.Errorf("expected 100 units on hand, got %d", s.TotalOnHand)
	}
	if s.TotalAssigned != 40 || s.AvailableForAssignment != 60 {
		t.Errorf("expected 40 assigned and 60 assignable, got %d/%d", s.TotalAssigned, s.AvailableForAssignment)
	}
	if len(e.notified.movements) != 1 || e.notified.movements[0].Type != core.MovementAssign {
		t.Errorf("expected one assign movement notified, got %+v", e.notified.movements)
	}
	e.verifyChain(t, productTee)
}

// Shop A holds 40 with 15 sold through completed orders.
func TestReassign_RespectsUnsoldStock(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	if _, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopA, ProductID: productTee, Quantity: 55, Actor: "test"}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		ShopID:        intp(shopA),
		PaymentStatus: core.PaymentCompleted,
		PaidAmount:    decimal.NewFromInt(150),
		Items:         []core.OrderItemInput{retail(productTee, 15)},
		Actor:         "cashier",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Items[0].Strategy != core.StrategyEager || order.Items[0].LocationID == nil || *order.Items[0].LocationID != shopA {
		t.Fatalf("expected eager consumption at shop A, got %+v", order.Items[0])
	}
	walkToCompleted(t, e, order.ID)

	s := e.summary(t, productTee)
	if got := allocationAt(s, shopA); got != 40 {
		t.Fatalf("expected shop A 40 after sale, got %d", got)
	}
	if s.UnitsSold != 15 {
		t.Errorf("expected 15 units sold, got %d", s.UnitsSold)
	}

	// Reassigning to 20 would drop below the 25 unsold units.
	_, err = e.ledger.Reassign(ctx, core.ReassignRequest{LocationID: shopA, ProductID: productTee, Quantity: 20, Actor: "test"})
	var unsold *core.UnsoldStockRemainingError
	if !errors.As(err, &unsold) {
		t.Fatalf("expected UnsoldStockRemainingError, got %v", err)
	}
	if unsold.Remaining != 25 {
		t.Errorf("expected 25 remaining, got %d", unsold.Remaining)
	}

	// Raising to 60 takes 20 from the pool (45 -> 25).
	res, err := e.ledger.Reassign(ctx, core.ReassignRequest{LocationID: shopA, ProductID: productTee, Quantity: 60, Actor: "test"})
	if err != nil {
		t.Fatalf("Reassign to 60 failed: %v", err)
	}
	if res.To.After != 60 || res.From.After != 25 {
		t.Errorf("unexpected balances: from %+v, to %+v", res.From, res.To)
	}

	// Raising to 100 needs 40 but the pool has 25: a 15-unit adjustment tops it up.
	res, err = e.ledger.Reassign(ctx, core.ReassignRequest{LocationID: shopA, ProductID: productTee, Quantity: 100, Actor: "test"})
	if err != nil {
		t.Fatalf("Reassign to 100 failed: %v", err)
	}
	if len(res.Movements) != 2 || res.Movements[0].Type != core.MovementAdjustment || res.Movements[0].Quantity != 15 {
		t.Fatalf("expected adjustment of 15 then reassign, got %+v", res.Movements)
	}
	if s := e.summary(t, productTee); s.PoolQuantity != 0 || allocationAt(s, shopA) != 100 {
		t.Errorf("expected pool 0 and shop A 100, got pool %d shop A %d", s.PoolQuantity, allocationAt(s, shopA))
	}
	e.verifyChain(t, productTee)
}

// Pool=60. A pending-payment order reserves 5; cancelling releases them.
func TestOrder_ReserveAndCancel(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	if _, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopA, ProductID: productTee, Quantity: 40}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		PaymentStatus: core.PaymentPending,
		Items:         []core.OrderItemInput{retail(productTee, 5)},
		Actor:         "test",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Items[0].Strategy != core.StrategyReserved {
		t.Fatalf("expected reserved strategy, got %s", order.Items[0].Strategy)
	}

	s := e.summary(t, productTee)
	if s.PoolQuantity != 60 || s.ReservedQuantity != 5 || s.Available != 55 {
		t.Errorf("expected pool 60 reserved 5 available 55, got %d/%d/%d", s.PoolQuantity, s.ReservedQuantity, s.Available)
	}

	if _, err := e.orders.CancelOrder(ctx, order.ID, "test"); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	s = e.summary(t, productTee)
	if s.PoolQuantity != 60 || s.ReservedQuantity != 0 || s.Available != 60 {
		t.Errorf("expected pool 60 reserved 0 available 60, got %d/%d/%d", s.PoolQuantity, s.ReservedQuantity, s.Available)
	}

	rs, err := e.reporting.ListReservations(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListReservations failed: %v", err)
	}
	if len(rs) != 1 || rs[0].Status != core.ReservationReleased {
		t.Errorf("expected one released reservation, got %+v", rs)
	}

	// Releasing again is a no-op.
	if err := e.reservations.Release(ctx, order.ID, "test"); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
	e.verifyChain(t, productTee)
}

// Fulfilment consumes the reservation from the pool as one sale.
func TestOrder_ConfirmAndFulfill(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	if _, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopA, ProductID: productTee, Quantity: 40}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{retail(productTee, 5)},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if _, err := e.orders.ConfirmOrder(ctx, order.ID, "test"); err != nil {
		t.Fatalf("ConfirmOrder failed: %v", err)
	}
	picking, err := e.orders.ProcessOrder(ctx, order.ID, "test")
	if err != nil {
		t.Fatalf("ProcessOrder failed: %v", err)
	}
	if len(picking.Lines) != 1 || picking.Lines[0].SKU != "TEE-01" {
		t.Errorf("unexpected picking list: %+v", picking)
	}
	fulfilled, err := e.orders.CompleteFulfillment(ctx, order.ID, "TRK-0001", "test")
	if err != nil {
		t.Fatalf("CompleteFulfillment failed: %v", err)
	}
	if fulfilled.Status != core.OrderFulfilled || fulfilled.TrackingNumber != "TRK-0001" {
		t.Errorf("unexpected order after fulfilment: %s %q", fulfilled.Status, fulfilled.TrackingNumber)
	}

	s := e.summary(t, productTee)
	if s.PoolQuantity != 55 || s.ReservedQuantity != 0 {
		t.Errorf("expected pool 55 reserved 0, got %d/%d", s.PoolQuantity, s.ReservedQuantity)
	}

	rs, err := e.reporting.ListReservations(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListReservations failed: %v", err)
	}
	if len(rs) != 1 || rs[0].Status != core.ReservationFulfilled {
		t.Errorf("expected one fulfilled reservation, got %+v", rs)
	}

	latest, err := e.reporting.ListMovements(ctx, productTee, 1)
	if err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	if len(latest) != 1 || latest[0].Type != core.MovementSale || latest[0].PreviousStock != 60 || latest[0].NewStock != 55 {
		t.Errorf("expected sale 60 -> 55, got %+v", latest)
	}
	e.verifyChain(t, productTee)
}

// Bulk 900ml, 30ml bottles: replenishing a shop by 10 bottles 300ml.
func TestAssign_PerfumeProduction(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	res, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopA, ProductID: productOud, Quantity: 10, Replenish: true, Actor: "test"})
	if err != nil {
		t.Fatalf("Assign with replenish failed: %v", err)
	}

	produced := 0
	for _, m := range res.Movements {
		if m.Type == core.MovementProduction {
			produced++
		}
	}
	if produced != 10 {
		t.Errorf("expected 10 production movements, got %d", produced)
	}
	if got := e.materialBalance(t, bulkOud); !got.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected 600ml bulk left, got %s", got)
	}
	if got := e.materialBalance(t, bottle30); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected 40 bottles left, got %s", got)
	}
	s := e.summary(t, productOud)
	if s.PoolQuantity != 0 || allocationAt(s, shopA) != 10 {
		t.Errorf("expected pool 0 and shop A 10, got %d/%d", s.PoolQuantity, allocationAt(s, shopA))
	}

	// 25 bottles need 750ml; nothing changes on shortage.
	_, err = e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopA, ProductID: productOud, Quantity: 25, Replenish: true})
	if !errors.Is(err, core.ErrInsufficientBulkMaterial) {
		t.Fatalf("expected ErrInsufficientBulkMaterial, got %v", err)
	}
	if got := e.materialBalance(t, bulkOud); !got.Equal(decimal.NewFromInt(600)) {
		t.Errorf("failed production must not consume bulk, got %s", got)
	}
	e.verifyChain(t, productOud)
}

func walkToCompleted(t *testing.T, e *engine, orderID int) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.orders.ConfirmOrder(ctx, orderID, "test"); err != nil {
		t.Fatalf("ConfirmOrder failed: %v", err)
	}
	if _, err := e.orders.ProcessOrder(ctx, orderID, "test"); err != nil {
		t.Fatalf("ProcessOrder failed: %v", err)
	}
	if _, err := e.orders.CompleteFulfillment(ctx, orderID, "", "test"); err != nil {
		t.Fatalf("CompleteFulfillment failed: %v", err)
	}
	if _, err := e.orders.CompleteOrder(ctx, orderID, "test"); err != nil {
		t.Fatalf("CompleteOrder failed: %v", err)
	}
}

func intp(v int) *int { return &v }
