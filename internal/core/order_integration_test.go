package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"inventory-engine/internal/core"

	"github.com/shopspring/decimal"
)

func TestCreateOrder_ReserveIsAllOrNothing(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	// Give the perfume a small pool so both lines can be checked.
	if _, err := e.pool.Exec(ctx, "UPDATE products SET pool_quantity = 3 WHERE id = $1", productOud); err != nil {
		t.Fatalf("Failed to seed perfume pool: %v", err)
	}

	_, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{retail(productTee, 150), retail(productOud, 5)},
		Actor: "test",
	})
	var short *core.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(short.Shortfalls) != 2 {
		t.Fatalf("expected both products listed as short, got %+v", short.Shortfalls)
	}

	orders, err := e.orders.ListOrders(ctx, core.OrderFilter{})
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("failed creation must not leave an order behind, got %d", len(orders))
	}
	if s := e.summary(t, productTee); s.ReservedQuantity != 0 {
		t.Errorf("failed creation must not reserve, got %d", s.ReservedQuantity)
	}
}

func TestCreateOrder_MaterialAndServiceItems(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		PaymentStatus: core.PaymentCompleted,
		Items: []core.OrderItemInput{
			{Kind: core.ItemMaterial, MaterialID: silkRibbon, Quantity: decimal.RequireFromString("2.5"), UnitPrice: decimal.NewFromInt(4)},
			{Kind: core.ItemRetail, ProductID: productWrap, Quantity: one(1), UnitPrice: decimal.NewFromInt(3)},
		},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Items[0].Strategy != core.StrategyDirect || order.Items[1].Strategy != core.StrategyNone {
		t.Errorf("unexpected strategies: %s, %s", order.Items[0].Strategy, order.Items[1].Strategy)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(13)) {
		t.Errorf("expected total 13, got %s", order.TotalAmount)
	}
	if got := e.materialBalance(t, silkRibbon); !got.Equal(decimal.RequireFromString("17.5")) {
		t.Errorf("expected 17.5m ribbon left, got %s", got)
	}

	_, err = e.orders.CreateOrder(ctx, core.CreateOrderInput{
		PaymentStatus: core.PaymentCompleted,
		Items: []core.OrderItemInput{
			{Kind: core.ItemMaterial, MaterialID: silkRibbon, Quantity: one(50), UnitPrice: decimal.NewFromInt(4)},
		},
	})
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for raw material, got %v", err)
	}
}

func TestCancelOrder_RestockOnce(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()
	if _, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: shopB, ProductID: productTee, Quantity: 10}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		ShopID:        intp(shopB),
		PaymentStatus: core.PaymentPartial,
		Items:         []core.OrderItemInput{retail(productTee, 4)},
		Actor:         "cashier",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if got := allocationAt(e.summary(t, productTee), shopB); got != 6 {
		t.Fatalf("expected shop B 6 after eager sale, got %d", got)
	}

	// Restocking requires a cancelled order.
	if _, err := e.orders.RestockCancelledOrder(ctx, order.ID, "test"); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a pending order, got %v", err)
	}

	cancelled, err := e.orders.CancelOrder(ctx, order.ID, "test")
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if cancelled.Status != core.OrderCancelled || cancelled.CancelledAt == nil {
		t.Errorf("unexpected cancelled order: %s %v", cancelled.Status, cancelled.CancelledAt)
	}
	if got := allocationAt(e.summary(t, productTee), shopB); got != 6 {
		t.Errorf("cancel alone must not restock, got %d", got)
	}

	for i := 0; i < 2; i++ {
		if _, err := e.orders.RestockCancelledOrder(ctx, order.ID, "test"); err != nil {
			t.Fatalf("RestockCancelledOrder #%d failed: %v", i+1, err)
		}
	}
	s := e.summary(t, productTee)
	if got := allocationAt(s, shopB); got != 10 {
		t.Errorf("expected shop B back to 10 after restock, got %d", got)
	}
	if s.UnitsSold != 0 {
		t.Errorf("expected sold counter wound back to 0, got %d", s.UnitsSold)
	}

	// Cancelling twice is an invalid transition.
	if _, err := e.orders.CancelOrder(ctx, order.ID, "test"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	e.verifyChain(t, productTee)
}

func TestOrderTransitions_Guarded(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{retail(productTee, 2)},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.OrderNumber == "" {
		t.Fatal("expected an order number")
	}

	if _, err := e.orders.ProcessOrder(ctx, order.ID, "test"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("pending -> processing: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := e.orders.CompleteOrder(ctx, order.ID, "test"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("pending -> completed: expected ErrInvalidTransition, got %v", err)
	}

	walkToCompleted(t, e, order.ID)

	if _, err := e.orders.CancelOrder(ctx, order.ID, "test"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("completed -> cancelled: expected ErrInvalidTransition, got %v", err)
	}
	if err := e.orders.DeleteOrder(ctx, order.ID, "test"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("deleting a completed order: expected ErrInvalidTransition, got %v", err)
	}

	byNumber, err := e.orders.GetOrderByNumber(ctx, order.OrderNumber)
	if err != nil {
		t.Fatalf("GetOrderByNumber failed: %v", err)
	}
	if byNumber.Status != core.OrderCompleted || byNumber.CompletedAt == nil {
		t.Errorf("expected completed order with timestamp, got %s", byNumber.Status)
	}

	if _, err := e.orders.GetOrder(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteOrder_ReleasesReservations(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{retail(productTee, 7)},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if err := e.orders.DeleteOrder(ctx, order.ID, "test"); err != nil {
		t.Fatalf("DeleteOrder failed: %v", err)
	}
	if _, err := e.orders.GetOrder(ctx, order.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected deleted order to be gone, got %v", err)
	}
	if s := e.summary(t, productTee); s.ReservedQuantity != 0 || s.Available != 100 {
		t.Errorf("expected reservation released, got reserved %d available %d", s.ReservedQuantity, s.Available)
	}
	rs, err := e.reporting.ListReservations(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListReservations failed: %v", err)
	}
	if len(rs) != 1 || rs[0].Status != core.ReservationReleased {
		t.Errorf("expected reservation history kept as released, got %+v", rs)
	}
}

func TestExpireSweep_Idempotent(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	order, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
		Items: []core.OrderItemInput{retail(productTee, 8)},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if _, err := e.pool.Exec(ctx,
		"UPDATE reservations SET expiry_date = NOW() - INTERVAL '1 minute' WHERE order_id = $1", order.ID); err != nil {
		t.Fatalf("Failed to backdate reservation: %v", err)
	}

	first, err := e.reservations.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if first.Expired != 1 {
		t.Errorf("expected 1 expired, got %+v", first)
	}
	second, err := e.reservations.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.Expired != 0 {
		t.Errorf("second sweep must expire nothing, got %+v", second)
	}

	if s := e.summary(t, productTee); s.ReservedQuantity != 0 || s.PoolQuantity != 100 {
		t.Errorf("expected reserved 0 pool 100, got %d/%d", s.ReservedQuantity, s.PoolQuantity)
	}

	e.verifyChain(t, productTee)
}

func TestExpireSweep_Concurrent(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := e.orders.CreateOrder(ctx, core.CreateOrderInput{
			Items: []core.OrderItemInput{retail(productTee, 3)},
			Actor: "test",
		}); err != nil {
			t.Fatalf("CreateOrder %d failed: %v", i, err)
		}
	}
	if _, err := e.pool.Exec(ctx, "UPDATE reservations SET expiry_date = NOW() - INTERVAL '1 minute'"); err != nil {
		t.Fatalf("Failed to backdate reservations: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		expired int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.reservations.ExpireSweep(ctx)
			if err != nil {
				t.Errorf("sweep failed: %v", err)
				return
			}
			mu.Lock()
			expired += res.Expired
			mu.Unlock()
		}()
	}
	wg.Wait()

	if expired != 5 {
		t.Errorf("expected exactly 5 expirations across sweeps, got %d", expired)
	}
	if s := e.summary(t, productTee); s.ReservedQuantity != 0 {
		t.Errorf("expected nothing reserved, got %d", s.ReservedQuantity)
	}
	e.verifyChain(t, productTee)
}

func TestAssign_ConcurrentNeverNegative(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		loc := shopA
		if i%2 == 1 {
			loc = warehouse
		}
		wg.Add(1)
		go func(loc int) {
			defer wg.Done()
			_, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: loc, ProductID: productTee, Quantity: 15, Actor: "worker"})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.Is(err, core.ErrInsufficientStock), errors.Is(err, core.ErrConcurrencyConflict), errors.Is(err, core.ErrBusy):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(loc)
	}
	wg.Wait()

	if succeeded > 6 {
		t.Fatalf("at most 6 assigns of 15 fit in 100, got %d", succeeded)
	}
	s := e.summary(t, productTee)
	if s.PoolQuantity < 0 {
		t.Fatalf("pool went negative: %d", s.PoolQuantity)
	}
	if s.PoolQuantity != 100-15*succeeded || s.TotalOnHand != 100 {
		t.Errorf("expected pool %d on hand 100, got %d/%d", 100-15*succeeded, s.PoolQuantity, s.TotalOnHand)
	}
	e.verifyChain(t, productTee)
}

func TestUnassign_ReturnsAllocation(t *testing.T) {
	e := setupTestDB(t)
	ctx := context.Background()

	if _, err := e.ledger.Assign(ctx, core.AssignRequest{LocationID: warehouse, ProductID: productTee, Quantity: 30, MinStockLevel: 40}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	low, err := e.reporting.LowStock(ctx)
	if err != nil {
		t.Fatalf("LowStock failed: %v", err)
	}
	if len(low) != 1 || low[0].LocationID != warehouse {
		t.Errorf("expected the warehouse allocation to be low, got %+v", low)
	}

	if _, err := e.ledger.Unassign(ctx, warehouse, productTee, "test"); err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}
	s := e.summary(t, productTee)
	if s.PoolQuantity != 100 || allocationAt(s, warehouse) != -1 {
		t.Errorf("expected pool 100 and no warehouse row, got %d/%d", s.PoolQuantity, allocationAt(s, warehouse))
	}
	if _, err := e.ledger.Unassign(ctx, warehouse, productTee, "test"); !errors.Is(err, core.ErrNotAssignedToLocation) {
		t.Errorf("expected ErrNotAssignedToLocation, got %v", err)
	}
	e.verifyChain(t, productTee)
}
