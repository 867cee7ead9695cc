package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService drives the order lifecycle and calls the stock and reservation ledgers
// at each transition, inside the same transaction as the status change.
type OrderService interface {
	// CreateOrder stores a pending order. Retail items are reserved when payment is
	// pending and consumed eagerly otherwise; material items deduct their balance.
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	// ConfirmOrder revalidates the order's reservations and extends them.
	ConfirmOrder(ctx context.Context, orderID int, actor string) (*Order, error)
	// ProcessOrder moves the order to processing and returns its picking list.
	ProcessOrder(ctx context.Context, orderID int, actor string) (*PickingList, error)
	// CompleteFulfillment records the tracking number and turns reservations into sales.
	CompleteFulfillment(ctx context.Context, orderID int, trackingNumber, actor string) (*Order, error)
	CompleteOrder(ctx context.Context, orderID int, actor string) (*Order, error)
	// CancelOrder releases reservations. Eagerly consumed stock stays consumed; see
	// RestockCancelledOrder.
	CancelOrder(ctx context.Context, orderID int, actor string) (*Order, error)
	// DeleteOrder hard-deletes a pending or confirmed order after releasing its
	// reservations. Reservation rows are kept as history.
	DeleteOrder(ctx context.Context, orderID int, actor string) error
	// RestockCancelledOrder returns the eagerly consumed items of a cancelled order to
	// where they were taken from. Each item is restocked at most once.
	RestockCancelledOrder(ctx context.Context, orderID int, actor string) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int, status PaymentStatus, paidAmount decimal.Decimal, actor string) (*Order, error)

	// Queries
	GetOrder(ctx context.Context, orderID int) (*Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// OrderConfig carries the reservation windows.
type OrderConfig struct {
	ReservationTTL          time.Duration
	ConfirmedReservationTTL time.Duration
}

// OrderFilter narrows ListOrders. Zero values mean no filter; Limit 0 means 100.
type OrderFilter struct {
	Status *OrderStatus
	ShopID *int
	Limit  int
}

type orderService struct {
	runner       *TxRunner
	reservations ReservationLedger
	notifier     MovementNotifier
	log          *zap.Logger
	cfg          OrderConfig
	now          func() time.Time
}

func NewOrderService(runner *TxRunner, reservations ReservationLedger, notifier MovementNotifier, log *zap.Logger, cfg OrderConfig) OrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 24 * time.Hour
	}
	if cfg.ConfirmedReservationTTL <= 0 {
		cfg.ConfirmedReservationTTL = 48 * time.Hour
	}
	return &orderService{
		runner:       runner,
		reservations: reservations,
		notifier:     notifier,
		log:          log,
		cfg:          cfg,
		now:          time.Now,
	}
}

// orderHeader is the locked part of an order a transition needs.
type orderHeader struct {
	ID            int
	OrderNumber   string
	Status        OrderStatus
	ShopID        *int
	PaymentStatus PaymentStatus
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID int) (*orderHeader, error) {
	var h orderHeader
	err := tx.QueryRow(ctx, `
		SELECT id, order_number, status, shop_id, payment_status
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&h.ID, &h.OrderNumber, &h.Status, &h.ShopID, &h.PaymentStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", orderID)
		}
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	return &h, nil
}

func transitionTx(ctx context.Context, tx pgx.Tx, orderID int, to OrderStatus) error {
	col := statusTimestampColumn(to)
	if col == "" {
		return fmt.Errorf("%w: no timestamp for status %s", ErrInvalidInput, to)
	}
	_, err := tx.Exec(ctx,
		"UPDATE orders SET status = $2, "+col+" = NOW(), updated_at = NOW() WHERE id = $1",
		orderID, string(to))
	if err != nil {
		return fmt.Errorf("failed to move order %d to %s: %w", orderID, to, err)
	}
	return nil
}

// mutate locks the order, runs fn and, after commit, notifies and re-reads the order.
func (s *orderService) mutate(ctx context.Context, orderID int, fn func(tx pgx.Tx, h *orderHeader) ([]Movement, error)) (*Order, error) {
	var movements []Movement
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		h, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		movements, err = fn(tx, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.MovementsCommitted(ctx, movements)
	return s.GetOrder(ctx, orderID)
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// ValidateOrderInput checks an order request without touching the store.
func ValidateOrderInput(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order must have at least one item", ErrInvalidInput)
	}
	if in.PaymentStatus != "" {
		if _, err := ParsePaymentStatus(string(in.PaymentStatus)); err != nil {
			return err
		}
	}
	if in.PaidAmount.IsNegative() {
		return fmt.Errorf("%w: paid amount cannot be negative", ErrInvalidInput)
	}
	for i, it := range in.Items {
		line := i + 1
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: unit price cannot be negative", ErrInvalidInput, line)
		}
		if !it.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %d: got %s", ErrInvalidQuantity, line, it.Quantity)
		}
		switch it.Kind {
		case ItemRetail, "":
			if it.ProductID <= 0 {
				return fmt.Errorf("%w: item %d: product id is required", ErrInvalidInput, line)
			}
			if !it.Quantity.Equal(it.Quantity.Truncate(0)) {
				return fmt.Errorf("%w: item %d: retail quantity must be whole units, got %s", ErrInvalidQuantity, line, it.Quantity)
			}
		case ItemMaterial:
			if it.MaterialID <= 0 {
				return fmt.Errorf("%w: item %d: material id is required", ErrInvalidInput, line)
			}
		default:
			return fmt.Errorf("%w: item %d: unknown kind %q", ErrInvalidInput, line, it.Kind)
		}
	}
	return nil
}

type plannedItem struct {
	line       int
	input      OrderItemInput
	kind       ItemKind
	strategy   ConsumptionStrategy
	locationID *int
	lineTotal  decimal.Decimal
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := ValidateOrderInput(in); err != nil {
		return nil, err
	}
	if in.PaymentStatus == "" {
		in.PaymentStatus = PaymentPending
	}

	now := s.now()
	var (
		orderID     int
		orderNumber string
		movements   []Movement
	)
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		// 1. Validate the shop.
		if in.ShopID != nil {
			loc, err := getLocation(ctx, tx, *in.ShopID)
			if err != nil {
				return err
			}
			if loc.Kind != LocationShop || !loc.IsActive {
				return fmt.Errorf("%w: location %d is not an active shop", ErrInvalidInput, loc.ID)
			}
		}

		// 2. Plan each item: strategy, source, line total.
		total := decimal.Zero
		plan := make([]plannedItem, 0, len(in.Items))
		for i, it := range in.Items {
			p := plannedItem{line: i + 1, input: it, kind: it.Kind, lineTotal: it.Quantity.Mul(it.UnitPrice)}
			if p.kind == "" {
				p.kind = ItemRetail
			}
			if p.kind == ItemRetail {
				prod, err := getProduct(ctx, tx, it.ProductID)
				if err != nil {
					return fmt.Errorf("item %d: %w", p.line, err)
				}
				p.strategy = retailStrategy(prod.Kind, in.PaymentStatus)
				if p.strategy == StrategyEager && in.ShopID != nil {
					p.locationID = in.ShopID
				}
			} else {
				p.strategy = StrategyDirect
			}
			total = total.Add(p.lineTotal)
			plan = append(plan, p)
		}

		// 3. Header and items.
		var err error
		if orderNumber, err = nextOrderNumberTx(ctx, tx, now.Year()); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO orders (order_number, status, shop_id, payment_status, total_amount, paid_amount, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, orderNumber, string(OrderPending), in.ShopID, string(in.PaymentStatus), total, in.PaidAmount, in.Actor).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		for _, p := range plan {
			var productID, materialID *int
			if p.kind == ItemRetail {
				productID = intPtr(p.input.ProductID)
			} else {
				materialID = intPtr(p.input.MaterialID)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO order_items (order_id, line_number, item_kind, product_id, material_id,
				                         quantity, unit_price, line_total, strategy, location_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, orderID, p.line, string(p.kind), productID, materialID,
				p.input.Quantity, p.input.UnitPrice, p.lineTotal, string(p.strategy), p.locationID)
			if err != nil {
				return fmt.Errorf("failed to insert order item %d: %w", p.line, err)
			}
		}

		// 4. Ledger calls, products before materials, each in ascending id order.
		movs, err := s.consumeTx(ctx, tx, orderID, in.Actor, now, plan)
		movements = movs
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.MovementsCommitted(ctx, movements)
	s.log.Info("order created",
		zap.Int("order_id", orderID),
		zap.String("order_number", orderNumber),
		zap.String("payment_status", string(in.PaymentStatus)),
		zap.Int("items", len(in.Items)),
	)
	return s.GetOrder(ctx, orderID)
}

// consumeTx performs the one ledger operation each planned item needs.
func (s *orderService) consumeTx(ctx context.Context, tx pgx.Tx, orderID int, actor string, now time.Time, plan []plannedItem) ([]Movement, error) {
	ref := orderRef(orderID)
	var (
		movements []Movement
		reserve   []ReserveItem
		eager     []plannedItem
		direct    []plannedItem
	)
	for _, p := range plan {
		switch p.strategy {
		case StrategyReserved:
			reserve = append(reserve, ReserveItem{ProductID: p.input.ProductID, Quantity: int(p.input.Quantity.IntPart())})
		case StrategyEager:
			eager = append(eager, p)
		case StrategyDirect:
			direct = append(direct, p)
		}
	}

	sort.SliceStable(eager, func(i, j int) bool { return eager[i].input.ProductID < eager[j].input.ProductID })
	for _, p := range eager {
		qty := int(p.input.Quantity.IntPart())
		var (
			res *TransferResult
			err error
		)
		if p.locationID != nil {
			res, err = ConsumeAtLocationTx(ctx, tx, *p.locationID, p.input.ProductID, qty, ref, actor)
		} else {
			res, err = ConsumeFromPoolTx(ctx, tx, p.input.ProductID, qty, ref, actor)
		}
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", p.line, err)
		}
		movements = append(movements, res.Movements...)
	}

	if len(reserve) > 0 {
		_, movs, err := s.reservations.ReserveTx(ctx, tx, orderID, now.Add(s.cfg.ReservationTTL), reserve, actor)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movs...)
	}

	sort.SliceStable(direct, func(i, j int) bool { return direct[i].input.MaterialID < direct[j].input.MaterialID })
	for _, p := range direct {
		if _, err := ConsumeMaterialTx(ctx, tx, p.input.MaterialID, p.input.Quantity, ref); err != nil {
			return nil, fmt.Errorf("item %d: %w", p.line, err)
		}
	}
	return movements, nil
}

func (s *orderService) ConfirmOrder(ctx context.Context, orderID int, actor string) (*Order, error) {
	return s.mutate(ctx, orderID, func(tx pgx.Tx, h *orderHeader) ([]Movement, error) {
		if err := ValidateTransition(h.Status, OrderConfirmed); err != nil {
			return nil, err
		}
		now := s.now()

		// Holds that lapsed while pending are taken again before revalidating.
		until := now.Add(s.cfg.ConfirmedReservationTTL)
		movements, reacquired, err := s.reacquireLapsedTx(ctx, tx, orderID, until, actor)
		if err != nil {
			return nil, err
		}
		if err := s.reservations.RevalidateTx(ctx, tx, orderID); err != nil {
			return nil, err
		}
		if err := s.reservations.ExtendTx(ctx, tx, orderID, until); err != nil {
			return nil, err
		}
		if err := transitionTx(ctx, tx, orderID, OrderConfirmed); err != nil {
			return nil, err
		}
		s.log.Info("order confirmed", zap.Int("order_id", orderID), zap.Int("reacquired", reacquired))
		return movements, nil
	})
}

// reacquireLapsedTx locks every reserved product of the order in ascending id order,
// then reserves again the part of each line whose hold is no longer active. It returns
// the reservation movements and the number of products reacquired.
func (s *orderService) reacquireLapsedTx(ctx context.Context, tx pgx.Tx, orderID int, until time.Time, actor string) ([]Movement, int, error) {
	items, err := fetchOrderItemsQ(ctx, tx, orderID)
	if err != nil {
		return nil, 0, err
	}
	need := make(map[int]int)
	for _, it := range items {
		if it.Strategy == StrategyReserved && it.ProductID != nil {
			need[*it.ProductID] += int(it.Quantity.IntPart())
		}
	}
	ids := make([]int, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	// One ascending pass over all products; later locks in this tx re-enter held rows.
	for _, id := range ids {
		if _, err := lockProduct(ctx, tx, id); err != nil {
			return nil, 0, err
		}
	}

	active, err := s.reservations.ActiveQuantitiesTx(ctx, tx, orderID)
	if err != nil {
		return nil, 0, err
	}
	var lapsed []ReserveItem
	for _, id := range ids {
		if missing := need[id] - active[id]; missing > 0 {
			lapsed = append(lapsed, ReserveItem{ProductID: id, Quantity: missing})
		}
	}
	if len(lapsed) == 0 {
		return nil, 0, nil
	}
	_, movements, err := s.reservations.ReserveTx(ctx, tx, orderID, until, lapsed, actor)
	if err != nil {
		return nil, 0, err
	}
	return movements, len(lapsed), nil
}

func (s *orderService) ProcessOrder(ctx context.Context, orderID int, actor string) (*PickingList, error) {
	var list *PickingList
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		h, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(h.Status, OrderProcessing); err != nil {
			return err
		}
		if err := transitionTx(ctx, tx, orderID, OrderProcessing); err != nil {
			return err
		}
		list, err = buildPickingList(ctx, tx, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order processing", zap.Int("order_id", orderID), zap.String("actor", actor))
	return list, nil
}

func (s *orderService) CompleteFulfillment(ctx context.Context, orderID int, trackingNumber, actor string) (*Order, error) {
	return s.mutate(ctx, orderID, func(tx pgx.Tx, h *orderHeader) ([]Movement, error) {
		if err := ValidateTransition(h.Status, OrderFulfilled); err != nil {
			return nil, err
		}
		// Every reserved line ships as a sale: holds that expired after confirmation
		// are taken again, or the fulfilment fails with the shortfall.
		reacquiredMovs, reacquired, err := s.reacquireLapsedTx(ctx, tx, orderID, s.now().Add(s.cfg.ConfirmedReservationTTL), actor)
		if err != nil {
			return nil, err
		}
		sales, err := s.reservations.FulfillTx(ctx, tx, orderID, actor)
		if err != nil {
			return nil, err
		}
		movements := append(reacquiredMovs, sales...)
		if reacquired > 0 {
			s.log.Warn("expired holds reacquired at fulfilment", zap.Int("order_id", orderID), zap.Int("products", reacquired))
		}
		if _, err := tx.Exec(ctx,
			"UPDATE orders SET tracking_number = $2 WHERE id = $1", orderID, trackingNumber); err != nil {
			return nil, fmt.Errorf("failed to set tracking number on order %d: %w", orderID, err)
		}
		if err := transitionTx(ctx, tx, orderID, OrderFulfilled); err != nil {
			return nil, err
		}
		s.log.Info("order fulfilled", zap.Int("order_id", orderID), zap.Int("sales", len(sales)))
		return movements, nil
	})
}

func (s *orderService) CompleteOrder(ctx context.Context, orderID int, actor string) (*Order, error) {
	return s.mutate(ctx, orderID, func(tx pgx.Tx, h *orderHeader) ([]Movement, error) {
		if err := ValidateTransition(h.Status, OrderCompleted); err != nil {
			return nil, err
		}
		if err := transitionTx(ctx, tx, orderID, OrderCompleted); err != nil {
			return nil, err
		}
		s.log.Info("order completed", zap.Int("order_id", orderID), zap.String("actor", actor))
		return nil, nil
	})
}

func (s *orderService) CancelOrder(ctx context.Context, orderID int, actor string) (*Order, error) {
	return s.mutate(ctx, orderID, func(tx pgx.Tx, h *orderHeader) ([]Movement, error) {
		if err := ValidateTransition(h.Status, OrderCancelled); err != nil {
			return nil, err
		}
		movements, err := s.reservations.ReleaseTx(ctx, tx, orderID, actor)
		if err != nil {
			return nil, err
		}
		if err := transitionTx(ctx, tx, orderID, OrderCancelled); err != nil {
			return nil, err
		}
		s.log.Info("order cancelled",
			zap.Int("order_id", orderID),
			zap.String("from", string(h.Status)),
			zap.Int("released", len(movements)),
		)
		return movements, nil
	})
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID int, actor string) error {
	var movements []Movement
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		h, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !h.Status.Deletable() {
			return &InvalidTransitionError{From: h.Status, To: orderDeleted}
		}
		if movements, err = s.reservations.ReleaseTx(ctx, tx, orderID, actor); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
			return fmt.Errorf("failed to delete items of order %d: %w", orderID, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM orders WHERE id = $1", orderID); err != nil {
			return fmt.Errorf("failed to delete order %d: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.MovementsCommitted(ctx, movements)
	s.log.Info("order deleted", zap.Int("order_id", orderID), zap.String("actor", actor))
	return nil
}

func (s *orderService) RestockCancelledOrder(ctx context.Context, orderID int, actor string) (*Order, error) {
	return s.mutate(ctx, orderID, func(tx pgx.Tx, h *orderHeader) ([]Movement, error) {
		if h.Status != OrderCancelled {
			return nil, fmt.Errorf("%w: order %d is %s; only cancelled orders can be restocked", ErrInvalidInput, orderID, h.Status)
		}
		items, err := fetchOrderItemsQ(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(items, func(i, j int) bool {
			return derefInt(items[i].ProductID) < derefInt(items[j].ProductID)
		})

		ref := orderRef(orderID)
		var movements []Movement
		for _, it := range items {
			if it.Strategy != StrategyEager || it.ProductID == nil || it.RestockedAt != nil {
				continue
			}
			to := PoolEndpoint()
			if it.LocationID != nil {
				to = LocationEndpoint(*it.LocationID)
			}
			res, err := RestockTx(ctx, tx, to, *it.ProductID, int(it.Quantity.IntPart()), ref, actor)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", it.LineNumber, err)
			}
			if _, err := tx.Exec(ctx, "UPDATE order_items SET restocked_at = NOW() WHERE id = $1", it.ID); err != nil {
				return nil, fmt.Errorf("failed to mark item %d restocked: %w", it.LineNumber, err)
			}
			movements = append(movements, res.Movements...)
		}
		s.log.Info("cancelled order restocked", zap.Int("order_id", orderID), zap.Int("items", len(movements)))
		return movements, nil
	})
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, orderID int, status PaymentStatus, paidAmount decimal.Decimal, actor string) (*Order, error) {
	if _, err := ParsePaymentStatus(string(status)); err != nil {
		return nil, err
	}
	if paidAmount.IsNegative() {
		return nil, fmt.Errorf("%w: paid amount cannot be negative", ErrInvalidInput)
	}
	return s.mutate(ctx, orderID, func(tx pgx.Tx, h *orderHeader) ([]Movement, error) {
		if h.Status == OrderCancelled {
			return nil, fmt.Errorf("%w: order %d is cancelled", ErrInvalidInput, orderID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET payment_status = $2, paid_amount = $3, updated_at = NOW()
			WHERE id = $1
		`, orderID, string(status), paidAmount); err != nil {
			return nil, fmt.Errorf("failed to update payment of order %d: %w", orderID, err)
		}
		s.log.Info("order payment updated",
			zap.Int("order_id", orderID),
			zap.String("payment_status", string(status)),
			zap.String("actor", actor),
		)
		return nil, nil
	})
}

// ── Queries ──────────────────────────────────────────────────────────────────

const orderColumns = `
	id, order_number, status, shop_id, payment_status, total_amount, paid_amount,
	COALESCE(tracking_number, ''), created_by, created_at,
	confirmed_at, processing_at, fulfilled_at, completed_at, cancelled_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Status, &o.ShopID, &o.PaymentStatus, &o.TotalAmount, &o.PaidAmount,
		&o.TrackingNumber, &o.CreatedBy, &o.CreatedAt,
		&o.ConfirmedAt, &o.ProcessingAt, &o.FulfilledAt, &o.CompletedAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int) (*Order, error) {
	o, err := scanOrder(s.runner.Pool().QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", orderID)
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}
	if o.Items, err = fetchOrderItemsQ(ctx, s.runner.Pool(), orderID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	var id int
	err := s.runner.Pool().QueryRow(ctx, "SELECT id FROM orders WHERE order_number = $1", orderNumber).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", orderNumber)
		}
		return nil, fmt.Errorf("failed to lookup order by number: %w", err)
	}
	return s.GetOrder(ctx, id)
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE 1 = 1"
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ShopID != nil {
		args = append(args, *filter.ShopID)
		query += fmt.Sprintf(" AND shop_id = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.runner.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func fetchOrderItemsQ(ctx context.Context, q pgxQuerier, orderID int) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, line_number, item_kind, product_id, material_id,
		       quantity, unit_price, line_total, strategy, location_id, restocked_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_number
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.LineNumber, &it.Kind, &it.ProductID, &it.MaterialID,
			&it.Quantity, &it.UnitPrice, &it.LineTotal, &it.Strategy, &it.LocationID, &it.RestockedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func buildPickingList(ctx context.Context, tx pgx.Tx, h *orderHeader) (*PickingList, error) {
	rows, err := tx.Query(ctx, `
		SELECT oi.line_number, oi.product_id, oi.material_id,
		       COALESCE(p.sku, ''), COALESCE(p.name, m.name, ''),
		       oi.quantity, oi.strategy, oi.location_id
		FROM order_items oi
		LEFT JOIN products p  ON p.id = oi.product_id
		LEFT JOIN materials m ON m.id = oi.material_id
		WHERE oi.order_id = $1
		ORDER BY oi.line_number
	`, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query picking lines: %w", err)
	}
	defer rows.Close()

	list := &PickingList{OrderID: h.ID, OrderNumber: h.OrderNumber}
	for rows.Next() {
		var l PickLine
		if err := rows.Scan(&l.LineNumber, &l.ProductID, &l.MaterialID, &l.SKU, &l.Name,
			&l.Quantity, &l.Strategy, &l.LocationID); err != nil {
			return nil, fmt.Errorf("failed to scan picking line: %w", err)
		}
		list.Lines = append(list.Lines, l)
	}
	return list, rows.Err()
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
