package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"inventory-engine/internal/core"
)

// SweepRunner runs one reservation expiry sweep. Implemented by scheduler.SweepJob,
// which also takes the cross-instance lock.
type SweepRunner interface {
	RunOnce(ctx context.Context) (core.SweepResult, bool, error)
}

// SummaryInvalidator drops cached stock summaries for changes that write no
// movement, such as completing an order.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, productIDs ...int)
}

// Deps are the collaborators of the application service. Invalidator may be nil.
type Deps struct {
	Ledger      core.StockLedger
	Orders      core.OrderService
	Reporting   core.ReportingService
	Catalog     core.CatalogService
	Sweeper     SweepRunner
	Invalidator SummaryInvalidator
	Log         *zap.Logger
	MaxRetries  int
}

type appService struct {
	ledger      core.StockLedger
	orders      core.OrderService
	reporting   core.ReportingService
	catalog     core.CatalogService
	sweeper     SweepRunner
	invalidator SummaryInvalidator
	log         *zap.Logger
	retries     int
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(d Deps) ApplicationService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	retries := d.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &appService{
		ledger:      d.Ledger,
		orders:      d.Orders,
		reporting:   d.Reporting,
		catalog:     d.Catalog,
		sweeper:     d.Sweeper,
		invalidator: d.Invalidator,
		log:         log,
		retries:     retries,
	}
}

// retry runs fn again while it fails with a concurrency conflict.
func retry[T any](ctx context.Context, s *appService, fn func() (T, error)) (T, error) {
	var out T
	err := core.RetryOnConflict(ctx, s.retries, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// ── Stock placement ──────────────────────────────────────────────────────────

func (s *appService) Assign(ctx context.Context, id Identity, req AssignRequest) (*core.TransferResult, error) {
	if err := Authorize(id, ActionAssign, &req.LocationID); err != nil {
		return nil, err
	}
	return retry(ctx, s, func() (*core.TransferResult, error) {
		return s.ledger.Assign(ctx, core.AssignRequest{
			LocationID:    req.LocationID,
			ProductID:     req.ProductID,
			Quantity:      req.Quantity,
			MinStockLevel: req.MinStockLevel,
			MaxStockLevel: req.MaxStockLevel,
			Replenish:     req.Replenish,
			Actor:         id.Actor(),
		})
	})
}

func (s *appService) Move(ctx context.Context, id Identity, req MoveRequest) (*core.TransferResult, error) {
	if err := Authorize(id, ActionTransfer, &req.FromLocationID, &req.ToLocationID); err != nil {
		return nil, err
	}
	return retry(ctx, s, func() (*core.TransferResult, error) {
		return s.ledger.Move(ctx, core.MoveRequest{
			FromLocationID: req.FromLocationID,
			ToLocationID:   req.ToLocationID,
			ProductID:      req.ProductID,
			Quantity:       req.Quantity,
			MinStockLevel:  req.MinStockLevel,
			MaxStockLevel:  req.MaxStockLevel,
			Actor:          id.Actor(),
		})
	})
}

func (s *appService) Reassign(ctx context.Context, id Identity, req ReassignRequest) (*core.TransferResult, error) {
	if err := Authorize(id, ActionReassign, &req.LocationID); err != nil {
		return nil, err
	}
	return retry(ctx, s, func() (*core.TransferResult, error) {
		return s.ledger.Reassign(ctx, core.ReassignRequest{
			LocationID: req.LocationID,
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			Actor:      id.Actor(),
		})
	})
}

func (s *appService) Unassign(ctx context.Context, id Identity, locationID, productID int) (*core.TransferResult, error) {
	if err := Authorize(id, ActionUnassign, &locationID); err != nil {
		return nil, err
	}
	return retry(ctx, s, func() (*core.TransferResult, error) {
		return s.ledger.Unassign(ctx, locationID, productID, id.Actor())
	})
}

func (s *appService) ReceiveStock(ctx context.Context, id Identity, req ReceiveStockRequest) (*core.TransferResult, error) {
	if err := Authorize(id, ActionReceiveStock); err != nil {
		return nil, err
	}
	ref := req.ReferenceID
	if ref == "" {
		ref = fmt.Sprintf("receipt:%d", req.ProductID)
	}
	return retry(ctx, s, func() (*core.TransferResult, error) {
		return s.catalog.ReceiveStock(ctx, req.ProductID, req.Quantity, ref, id.Actor())
	})
}

// ── Orders ───────────────────────────────────────────────────────────────────

func (s *appService) CreateOrder(ctx context.Context, id Identity, req CreateOrderRequest) (*OrderResult, error) {
	if err := Authorize(id, ActionCreateOrder, req.ShopID); err != nil {
		return nil, err
	}

	payment := core.PaymentPending
	if req.PaymentStatus != "" {
		p, err := core.ParsePaymentStatus(req.PaymentStatus)
		if err != nil {
			return nil, err
		}
		payment = p
	}

	items := make([]core.OrderItemInput, len(req.Items))
	for i, it := range req.Items {
		kind := core.ItemRetail
		if strings.EqualFold(it.Kind, string(core.ItemMaterial)) {
			kind = core.ItemMaterial
		}
		items[i] = core.OrderItemInput{
			Kind:       kind,
			ProductID:  it.ProductID,
			MaterialID: it.MaterialID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		}
	}
	in := core.CreateOrderInput{
		ShopID:        req.ShopID,
		PaymentStatus: payment,
		PaidAmount:    req.PaidAmount,
		Items:         items,
		Actor:         id.Actor(),
	}
	if err := core.ValidateOrderInput(in); err != nil {
		return nil, err
	}

	order, err := retry(ctx, s, func() (*core.Order, error) {
		return s.orders.CreateOrder(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order created",
		zap.Int("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("actor", id.Actor()))
	return &OrderResult{Order: order}, nil
}

func (s *appService) GetOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error) {
	order, err := s.authorizedOrder(ctx, id, ActionManageOrder, ref)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) ListOrders(ctx context.Context, id Identity, req ListOrdersRequest) (*OrderListResult, error) {
	filter := core.OrderFilter{ShopID: req.ShopID, Limit: req.Limit}
	if filter.ShopID == nil && id.Role != RoleAdmin {
		filter.ShopID = id.ShopID
	}
	if filter.ShopID != nil {
		if err := Authorize(id, ActionManageOrder, filter.ShopID); err != nil {
			return nil, err
		}
	} else if err := Authorize(id, ActionManageOrder); err != nil {
		return nil, err
	}
	if req.Status != "" {
		st, err := core.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &st
	}
	orders, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: orders}, nil
}

func (s *appService) ConfirmOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error) {
	return s.orderStep(ctx, id, ActionManageOrder, ref, "confirmed", s.orders.ConfirmOrder)
}

func (s *appService) ProcessOrder(ctx context.Context, id Identity, ref string) (*core.PickingList, error) {
	order, err := s.authorizedOrder(ctx, id, ActionManageOrder, ref)
	if err != nil {
		return nil, err
	}
	return retry(ctx, s, func() (*core.PickingList, error) {
		return s.orders.ProcessOrder(ctx, order.ID, id.Actor())
	})
}

func (s *appService) CompleteFulfillment(ctx context.Context, id Identity, ref, trackingNumber string) (*OrderResult, error) {
	return s.orderStep(ctx, id, ActionManageOrder, ref, "fulfilled",
		func(ctx context.Context, orderID int, actor string) (*core.Order, error) {
			return s.orders.CompleteFulfillment(ctx, orderID, trackingNumber, actor)
		})
}

func (s *appService) CompleteOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error) {
	res, err := s.orderStep(ctx, id, ActionManageOrder, ref, "completed", s.orders.CompleteOrder)
	if err != nil {
		return nil, err
	}
	// Completion moves shop sold counts without writing a movement.
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, orderProductIDs(res.Order)...)
	}
	return res, nil
}

func (s *appService) CancelOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error) {
	return s.orderStep(ctx, id, ActionManageOrder, ref, "cancelled", s.orders.CancelOrder)
}

func (s *appService) DeleteOrder(ctx context.Context, id Identity, ref string) error {
	order, err := s.authorizedOrder(ctx, id, ActionDeleteOrder, ref)
	if err != nil {
		return err
	}
	err = core.RetryOnConflict(ctx, s.retries, func() error {
		return s.orders.DeleteOrder(ctx, order.ID, id.Actor())
	})
	if err != nil {
		return err
	}
	s.log.Info("order deleted", zap.Int("order_id", order.ID), zap.String("actor", id.Actor()))
	return nil
}

func (s *appService) RestockCancelledOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error) {
	return s.orderStep(ctx, id, ActionRestockOrder, ref, "restocked", s.orders.RestockCancelledOrder)
}

func (s *appService) UpdatePayment(ctx context.Context, id Identity, ref string, req UpdatePaymentRequest) (*OrderResult, error) {
	status, err := core.ParsePaymentStatus(req.Status)
	if err != nil {
		return nil, err
	}
	return s.orderStep(ctx, id, ActionManageOrder, ref, "payment updated",
		func(ctx context.Context, orderID int, actor string) (*core.Order, error) {
			return s.orders.UpdatePaymentStatus(ctx, orderID, status, req.PaidAmount, actor)
		})
}

func (s *appService) ListReservations(ctx context.Context, id Identity, ref string) ([]core.Reservation, error) {
	order, err := s.authorizedOrder(ctx, id, ActionManageOrder, ref)
	if err != nil {
		return nil, err
	}
	return s.reporting.ListReservations(ctx, order.ID)
}

func (s *appService) RunSweep(ctx context.Context, id Identity) (*SweepRunResult, error) {
	if err := Authorize(id, ActionSweep); err != nil {
		return nil, err
	}
	res, ran, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	return &SweepRunResult{Ran: ran, Result: res}, nil
}

// ── Reporting ────────────────────────────────────────────────────────────────

func (s *appService) StockSummary(ctx context.Context, id Identity, productID int) (*core.StockSummary, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.reporting.StockSummary(ctx, productID)
}

func (s *appService) ListMovements(ctx context.Context, id Identity, productID, limit int) ([]core.Movement, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.reporting.ListMovements(ctx, productID, limit)
}

func (s *appService) VerifyChain(ctx context.Context, id Identity, productID int) (*core.ChainReport, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.reporting.VerifyChain(ctx, productID)
}

func (s *appService) LowStock(ctx context.Context, id Identity) ([]core.LowStockRow, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	rows, err := s.reporting.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	if id.ShopID == nil {
		return rows, nil
	}
	own := rows[:0]
	for _, r := range rows {
		if r.LocationID == *id.ShopID {
			own = append(own, r)
		}
	}
	return own, nil
}

func (s *appService) Conservation(ctx context.Context, id Identity, productID int) (*core.ConservationReport, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.reporting.Conservation(ctx, productID)
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *appService) ListProducts(ctx context.Context, id Identity) ([]core.Product, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.catalog.ListProducts(ctx)
}

func (s *appService) CreateProduct(ctx context.Context, id Identity, in core.ProductInput) (*core.Product, error) {
	if err := Authorize(id, ActionManageCatalog); err != nil {
		return nil, err
	}
	return s.catalog.CreateProduct(ctx, in)
}

func (s *appService) ListLocations(ctx context.Context, id Identity) ([]core.Location, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.catalog.ListLocations(ctx)
}

func (s *appService) CreateLocation(ctx context.Context, id Identity, in core.LocationInput) (*core.Location, error) {
	if err := Authorize(id, ActionManageCatalog); err != nil {
		return nil, err
	}
	return s.catalog.CreateLocation(ctx, in)
}

func (s *appService) SetLocationActive(ctx context.Context, id Identity, locationID int, active bool) (*core.Location, error) {
	if err := Authorize(id, ActionManageCatalog); err != nil {
		return nil, err
	}
	return s.catalog.SetLocationActive(ctx, locationID, active)
}

func (s *appService) ListMaterials(ctx context.Context, id Identity) ([]core.Material, error) {
	if err := Authorize(id, ActionViewStock); err != nil {
		return nil, err
	}
	return s.catalog.ListMaterials(ctx)
}

func (s *appService) CreateMaterial(ctx context.Context, id Identity, in core.MaterialInput) (*core.Material, error) {
	if err := Authorize(id, ActionManageCatalog); err != nil {
		return nil, err
	}
	return s.catalog.CreateMaterial(ctx, in)
}

func (s *appService) ReceiveMaterial(ctx context.Context, id Identity, req ReceiveMaterialRequest) (*core.MaterialMovement, error) {
	if err := Authorize(id, ActionReceiveStock); err != nil {
		return nil, err
	}
	ref := req.ReferenceID
	if ref == "" {
		ref = fmt.Sprintf("receipt:material:%d", req.MaterialID)
	}
	return retry(ctx, s, func() (*core.MaterialMovement, error) {
		return s.catalog.ReceiveMaterial(ctx, req.MaterialID, req.Amount, ref)
	})
}

// ── private helpers ───────────────────────────────────────────────────────────

// resolveOrder looks up an order by numeric ID or order number string.
func (s *appService) resolveOrder(ctx context.Context, ref string) (*core.Order, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.Atoi(ref); err == nil {
		return s.orders.GetOrder(ctx, id)
	}
	return s.orders.GetOrderByNumber(ctx, ref)
}

// authorizedOrder resolves ref and checks the caller may act on the order's shop.
func (s *appService) authorizedOrder(ctx context.Context, id Identity, action Action, ref string) (*core.Order, error) {
	// Role checks first so a forbidden caller learns nothing about the order.
	if err := Authorize(id, action); err != nil {
		return nil, err
	}
	order, err := s.resolveOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := Authorize(id, action, order.ShopID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *appService) orderStep(ctx context.Context, id Identity, action Action, ref, event string,
	fn func(ctx context.Context, orderID int, actor string) (*core.Order, error)) (*OrderResult, error) {
	order, err := s.authorizedOrder(ctx, id, action, ref)
	if err != nil {
		return nil, err
	}
	updated, err := retry(ctx, s, func() (*core.Order, error) {
		return fn(ctx, order.ID, id.Actor())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order "+event,
		zap.Int("order_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("actor", id.Actor()))
	return &OrderResult{Order: updated}, nil
}

func orderProductIDs(o *core.Order) []int {
	if o == nil {
		return nil
	}
	seen := make(map[int]bool, len(o.Items))
	var ids []int
	for _, it := range o.Items {
		if it.ProductID == nil || seen[*it.ProductID] {
			continue
		}
		seen[*it.ProductID] = true
		ids = append(ids, *it.ProductID)
	}
	return ids
}
