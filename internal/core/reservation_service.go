package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ReservationLedger holds pool stock for orders without moving it. A reservation is
// created active and ends exactly once as released, fulfilled or expired.
type ReservationLedger interface {
	// TX-scoped operations: used by OrderService to keep reservation changes atomic
	// with order state transitions.

	// ReserveTx reserves every item or none. On shortage the returned
	// *InsufficientStockError lists each short product.
	ReserveTx(ctx context.Context, tx pgx.Tx, orderID int, expiresAt time.Time, items []ReserveItem, actor string) ([]Reservation, []Movement, error)
	// ReleaseTx releases the order's active reservations. Nothing active is a no-op.
	ReleaseTx(ctx context.Context, tx pgx.Tx, orderID int, actor string) ([]Movement, error)
	// FulfillTx turns the order's active reservations into sales from the pool.
	FulfillTx(ctx context.Context, tx pgx.Tx, orderID int, actor string) ([]Movement, error)
	// RevalidateTx checks that the pool still backs every active reservation of the order.
	RevalidateTx(ctx context.Context, tx pgx.Tx, orderID int) error
	// ExtendTx moves the expiry of the order's active reservations to until.
	ExtendTx(ctx context.Context, tx pgx.Tx, orderID int, until time.Time) error
	// ActiveQuantitiesTx returns the actively reserved quantity per product of the order.
	ActiveQuantitiesTx(ctx context.Context, tx pgx.Tx, orderID int) (map[int]int, error)

	// Standalone operations (own transaction, notify after commit).
	Reserve(ctx context.Context, orderID int, ttl time.Duration, items []ReserveItem, actor string) ([]Reservation, error)
	Release(ctx context.Context, orderID int, actor string) error
	Fulfill(ctx context.Context, orderID int, actor string) error
	// ExpireSweep expires every active reservation past its expiry date, one
	// transaction per reservation. A failing reservation is logged and skipped.
	ExpireSweep(ctx context.Context) (SweepResult, error)
}

// ReserveItem is one product line to reserve.
type ReserveItem struct {
	ProductID int
	Quantity  int
}

// SweepResult summarises one ExpireSweep run.
type SweepResult struct {
	Scanned int           `json:"scanned"`
	Expired int           `json:"expired"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
}

type reservationLedger struct {
	runner   *TxRunner
	notifier MovementNotifier
	log      *zap.Logger
	now      func() time.Time
}

func NewReservationLedger(runner *TxRunner, notifier MovementNotifier, log *zap.Logger) ReservationLedger {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &reservationLedger{runner: runner, notifier: notifier, log: log, now: time.Now}
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (r *reservationLedger) ReserveTx(ctx context.Context, tx pgx.Tx, orderID int, expiresAt time.Time, items []ReserveItem, actor string) ([]Reservation, []Movement, error) {
	if len(items) == 0 {
		return nil, nil, nil
	}

	need := make(map[int]int)
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
		need[it.ProductID] += it.Quantity
	}

	// 1. Lock every product in ascending id order and collect shortfalls.
	ids := make([]int, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	products := make(map[int]*Product, len(ids))
	var shortfalls []Shortfall
	for _, id := range ids {
		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		products[id] = p
		if avail := p.Available(); avail < need[id] {
			shortfalls = append(shortfalls, Shortfall{ProductID: id, Requested: need[id], Available: avail})
		}
	}
	if len(shortfalls) > 0 {
		first := shortfalls[0]
		return nil, nil, &InsufficientStockError{
			ProductID:  first.ProductID,
			Requested:  first.Requested,
			Available:  first.Available,
			Shortfalls: shortfalls,
		}
	}

	// 2. All covered: create the holds.
	ref := orderRef(orderID)
	reservations := make([]Reservation, 0, len(items))
	movements := make([]Movement, 0, len(items))
	for _, it := range items {
		p := products[it.ProductID]
		p.ReservedQuantity += it.Quantity

		res := Reservation{
			OrderID:    orderID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Status:     ReservationActive,
			ExpiryDate: expiresAt,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO reservations (order_id, product_id, quantity, status, expiry_date)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, reservation_date
		`, orderID, it.ProductID, it.Quantity, string(ReservationActive), expiresAt).Scan(&res.ID, &res.ReservationDate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to insert reservation for product %d: %w", it.ProductID, err)
		}
		reservations = append(reservations, res)

		m := Movement{
			ProductID:     p.ID,
			Type:          MovementReservation,
			Quantity:      it.Quantity,
			PreviousStock: p.PoolQuantity,
			NewStock:      p.PoolQuantity,
			From:          PoolEndpoint(),
			To:            PoolEndpoint(),
			ReferenceID:   ref,
			Actor:         actor,
		}
		if err := insertMovement(ctx, tx, &m); err != nil {
			return nil, nil, err
		}
		movements = append(movements, m)
	}
	for _, id := range ids {
		if err := writeProductQuantities(ctx, tx, products[id]); err != nil {
			return nil, nil, err
		}
	}
	return reservations, movements, nil
}

func (r *reservationLedger) ReleaseTx(ctx context.Context, tx pgx.Tx, orderID int, actor string) ([]Movement, error) {
	return r.resolveActive(ctx, tx, orderID, ReservationReleased, actor)
}

func (r *reservationLedger) FulfillTx(ctx context.Context, tx pgx.Tx, orderID int, actor string) ([]Movement, error) {
	return r.resolveActive(ctx, tx, orderID, ReservationFulfilled, actor)
}

// resolveActive ends every active reservation of the order with the given status.
// Products are locked before the reservation rows, in ascending id order.
func (r *reservationLedger) resolveActive(ctx context.Context, tx pgx.Tx, orderID int, status ReservationStatus, actor string) ([]Movement, error) {
	productIDs, err := activeProductIDs(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, nil
	}
	products := make(map[int]*Product, len(productIDs))
	for _, id := range productIDs {
		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}

	active, err := lockActiveReservations(ctx, tx, "order_id = $1", orderID)
	if err != nil {
		return nil, err
	}

	ref := orderRef(orderID)
	var movements []Movement
	for _, res := range active {
		p, ok := products[res.ProductID]
		if !ok {
			// Reserved by a concurrent writer after the product scan; lock it now.
			if p, err = lockProduct(ctx, tx, res.ProductID); err != nil {
				return nil, err
			}
			products[res.ProductID] = p
		}
		m, err := endReservation(ctx, tx, p, res, status, ref, actor)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	for _, p := range products {
		if err := writeProductQuantities(ctx, tx, p); err != nil {
			return nil, err
		}
	}
	return movements, nil
}

// endReservation applies one terminal transition to a locked reservation and its
// locked product. The product row is written by the caller.
func endReservation(ctx context.Context, tx pgx.Tx, p *Product, res Reservation, status ReservationStatus, ref, actor string) (*Movement, error) {
	if p.ReservedQuantity < res.Quantity {
		return nil, fmt.Errorf("product %d reserved quantity %d is below reservation %d (%d units)",
			p.ID, p.ReservedQuantity, res.ID, res.Quantity)
	}

	m := Movement{
		ProductID:     p.ID,
		Quantity:      res.Quantity,
		PreviousStock: p.PoolQuantity,
		From:          PoolEndpoint(),
		To:            PoolEndpoint(),
		ReferenceID:   ref,
		Actor:         actor,
	}
	switch status {
	case ReservationReleased:
		m.Type = MovementRelease
	case ReservationExpired:
		m.Type = MovementExpiry
	case ReservationFulfilled:
		if p.PoolQuantity < res.Quantity {
			return nil, &InsufficientStockError{ProductID: p.ID, Requested: res.Quantity, Available: p.PoolQuantity}
		}
		m.Type = MovementSale
		m.To = SinkEndpoint()
		p.PoolQuantity -= res.Quantity
		p.UnitsSold += res.Quantity
	default:
		return nil, fmt.Errorf("%w: reservation cannot end as %s", ErrInvalidInput, status)
	}
	p.ReservedQuantity -= res.Quantity
	m.NewStock = p.PoolQuantity

	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, res.ID, string(status)); err != nil {
		return nil, fmt.Errorf("failed to mark reservation %d %s: %w", res.ID, status, err)
	}
	if err := insertMovement(ctx, tx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *reservationLedger) RevalidateTx(ctx context.Context, tx pgx.Tx, orderID int) error {
	qty, err := r.ActiveQuantitiesTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var shortfalls []Shortfall
	for _, id := range ids {
		p, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		// Other holds come first; this order's units are backed by what is left.
		backing := p.PoolQuantity - (p.ReservedQuantity - qty[id])
		if backing < qty[id] {
			shortfalls = append(shortfalls, Shortfall{ProductID: id, Requested: qty[id], Available: backing})
		}
	}
	if len(shortfalls) > 0 {
		first := shortfalls[0]
		return &InsufficientStockError{
			ProductID:  first.ProductID,
			Requested:  first.Requested,
			Available:  first.Available,
			Shortfalls: shortfalls,
		}
	}
	return nil
}

func (r *reservationLedger) ExtendTx(ctx context.Context, tx pgx.Tx, orderID int, until time.Time) error {
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET expiry_date = $2
		WHERE order_id = $1 AND status = 'active'
	`, orderID, until); err != nil {
		return fmt.Errorf("failed to extend reservations of order %d: %w", orderID, err)
	}
	return nil
}

func (r *reservationLedger) ActiveQuantitiesTx(ctx context.Context, tx pgx.Tx, orderID int) (map[int]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id, SUM(quantity)::bigint
		FROM reservations
		WHERE order_id = $1 AND status = 'active'
		GROUP BY product_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active reservations of order %d: %w", orderID, err)
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var productID, qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan active reservation: %w", err)
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (r *reservationLedger) Reserve(ctx context.Context, orderID int, ttl time.Duration, items []ReserveItem, actor string) ([]Reservation, error) {
	var (
		reservations []Reservation
		movements    []Movement
	)
	err := r.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		reservations, movements, err = r.ReserveTx(ctx, tx, orderID, r.now().Add(ttl), items, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.notifier.MovementsCommitted(ctx, movements)
	return reservations, nil
}

func (r *reservationLedger) Release(ctx context.Context, orderID int, actor string) error {
	return r.runResolve(ctx, func(tx pgx.Tx) ([]Movement, error) { return r.ReleaseTx(ctx, tx, orderID, actor) })
}

func (r *reservationLedger) Fulfill(ctx context.Context, orderID int, actor string) error {
	return r.runResolve(ctx, func(tx pgx.Tx) ([]Movement, error) { return r.FulfillTx(ctx, tx, orderID, actor) })
}

func (r *reservationLedger) runResolve(ctx context.Context, fn func(tx pgx.Tx) ([]Movement, error)) error {
	var movements []Movement
	err := r.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		movements, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}
	r.notifier.MovementsCommitted(ctx, movements)
	return nil
}

func (r *reservationLedger) ExpireSweep(ctx context.Context) (SweepResult, error) {
	start := r.now()
	var result SweepResult

	rows, err := r.runner.Pool().Query(ctx, `
		SELECT id FROM reservations
		WHERE status = 'active' AND expiry_date < $1
		ORDER BY id
	`, start)
	if err != nil {
		return result, ClassifyError(fmt.Errorf("failed to scan expired reservations: %w", err))
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return result, fmt.Errorf("failed to scan reservation id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to read expired reservations: %w", err)
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Elapsed = r.now().Sub(start)
			return result, ClassifyError(err)
		}

		var m *Movement
		err := r.runner.InTx(ctx, func(tx pgx.Tx) error {
			var err error
			m, err = r.expireOneTx(ctx, tx, id, start)
			return err
		})
		switch {
		case err != nil:
			result.Failed++
			r.log.Error("reservation expiry failed",
				zap.Int64("reservation_id", id),
				zap.Error(err),
			)
		case m == nil:
			// Resolved by another writer between the scan and the lock.
			result.Skipped++
		default:
			result.Expired++
			r.notifier.MovementsCommitted(ctx, []Movement{*m})
		}
	}

	result.Elapsed = r.now().Sub(start)
	r.log.Info("reservation sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// expireOneTx expires a single reservation if it is still active and past due.
// It returns a nil movement when there was nothing to do.
func (r *reservationLedger) expireOneTx(ctx context.Context, tx pgx.Tx, id int64, asOf time.Time) (*Movement, error) {
	var productID int
	err := tx.QueryRow(ctx, "SELECT product_id FROM reservations WHERE id = $1", id).Scan(&productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read reservation %d: %w", id, err)
	}
	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	active, err := lockActiveReservations(ctx, tx, "id = $1 AND expiry_date < $2", id, asOf)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	m, err := endReservation(ctx, tx, p, active[0], ReservationExpired, orderRef(active[0].OrderID), "system:sweep")
	if err != nil {
		return nil, err
	}
	if err := writeProductQuantities(ctx, tx, p); err != nil {
		return nil, err
	}
	return m, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

const reservationColumns = `id, order_id, product_id, quantity, status, reservation_date, expiry_date, resolved_at`

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(
			&res.ID, &res.OrderID, &res.ProductID, &res.Quantity, &res.Status,
			&res.ReservationDate, &res.ExpiryDate, &res.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// lockActiveReservations locks the active reservations matching where, ordered by
// product then id.
func lockActiveReservations(ctx context.Context, tx pgx.Tx, where string, args ...any) ([]Reservation, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'active' AND `+where+`
		ORDER BY product_id, id
		FOR UPDATE
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func activeProductIDs(ctx context.Context, tx pgx.Tx, orderID int) ([]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT product_id FROM reservations
		WHERE order_id = $1 AND status = 'active'
		ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reserved products of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func orderRef(orderID int) string { return fmt.Sprintf("order:%d", orderID) }
