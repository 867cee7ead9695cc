package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// StockLedger is the single authoritative mutator of pool and allocation quantities.
// Every move of units between the pool, a location and the outside world goes through
// TransferTx, which locks the product row, checks the source, mutates both sides and
// appends one movement in the caller's transaction.
type StockLedger interface {
	// TX-scoped operations: the caller owns the transaction boundary.
	TransferTx(ctx context.Context, tx pgx.Tx, req TransferRequest) (*TransferResult, error)
	ReassignTx(ctx context.Context, tx pgx.Tx, req ReassignRequest) (*TransferResult, error)
	UnassignTx(ctx context.Context, tx pgx.Tx, locationID, productID int, actor string) (*TransferResult, error)

	// Standalone operations (own transaction, notify after commit).
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Assign(ctx context.Context, req AssignRequest) (*TransferResult, error)
	Move(ctx context.Context, req MoveRequest) (*TransferResult, error)
	Reassign(ctx context.Context, req ReassignRequest) (*TransferResult, error)
	Unassign(ctx context.Context, locationID, productID int, actor string) (*TransferResult, error)
}

// TransferRequest moves Quantity units of one product between two endpoints.
// Type is derived from the endpoints when empty. MinStockLevel and MaxStockLevel seed a
// destination allocation row that does not exist yet. Replenish lets a Pool→shop
// transfer synthesize missing pool units first (production for perfumes, an adjustment
// otherwise). Restock marks a Sink inflow as sold units coming back, which winds the
// sold counter back; other Sink inflows are new stock.
type TransferRequest struct {
	From          Endpoint
	To            Endpoint
	ProductID     int
	Quantity      int
	Type          MovementType
	MinStockLevel int
	MaxStockLevel int
	Replenish     bool
	Restock       bool
	ReferenceID   string
	Actor         string
}

// AssignRequest moves units from the pool to a location.
type AssignRequest struct {
	LocationID    int
	ProductID     int
	Quantity      int
	MinStockLevel int
	MaxStockLevel int
	Replenish     bool
	Actor         string
}

// MoveRequest moves units between two locations.
type MoveRequest struct {
	FromLocationID int
	ToLocationID   int
	ProductID      int
	Quantity       int
	MinStockLevel  int
	MaxStockLevel  int
	Actor          string
}

// ReassignRequest sets the allocation of a product at a location to an absolute
// quantity. The delta is moved to or from the pool.
type ReassignRequest struct {
	LocationID int
	ProductID  int
	Quantity   int
	Actor      string
}

// EndpointBalance is the balance of one side of a transfer. Pool balances are
// pool_quantity values; sink balances are always zero.
type EndpointBalance struct {
	Endpoint Endpoint `json:"endpoint"`
	Before   int      `json:"before"`
	After    int      `json:"after"`
}

// TransferResult reports the effect of one ledger call. Movements holds every movement
// written in order, including the adjustment or production rows of a replenish.
type TransferResult struct {
	ProductID         int                `json:"product_id"`
	Quantity          int                `json:"quantity"`
	From              EndpointBalance    `json:"from"`
	To                EndpointBalance    `json:"to"`
	Movements         []Movement         `json:"movements"`
	MaterialMovements []MaterialMovement `json:"material_movements,omitempty"`
}

type stockLedger struct {
	runner   *TxRunner
	notifier MovementNotifier
}

func NewStockLedger(runner *TxRunner, notifier MovementNotifier) StockLedger {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &stockLedger{runner: runner, notifier: notifier}
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (l *stockLedger) TransferTx(ctx context.Context, tx pgx.Tx, req TransferRequest) (*TransferResult, error) {
	return transferTx(ctx, tx, req)
}

func transferTx(ctx context.Context, tx pgx.Tx, req TransferRequest) (*TransferResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, req.Quantity)
	}
	if req.Type == "" {
		req.Type = defaultMovementType(req.From, req.To)
	}
	if err := validateRoute(req.From, req.To, req.Type); err != nil {
		return nil, err
	}

	// 1. Lock the product; this serializes every writer of the product's chain.
	product, err := lockProduct(ctx, tx, req.ProductID)
	if err != nil {
		return nil, err
	}

	result := &TransferResult{ProductID: req.ProductID, Quantity: req.Quantity}

	// 2. Resolve location endpoints.
	var fromLoc, toLoc *Location
	if req.From.IsLocation() {
		if fromLoc, err = getLocation(ctx, tx, req.From.LocationID); err != nil {
			return nil, err
		}
	}
	if req.To.IsLocation() {
		if toLoc, err = getLocation(ctx, tx, req.To.LocationID); err != nil {
			return nil, err
		}
		if !toLoc.IsActive {
			return nil, fmt.Errorf("%w: location %d is inactive", ErrInvalidEndpoint, toLoc.ID)
		}
	}

	// 3. Replenish the pool before a shop receives units it does not have.
	if req.Replenish && req.From.IsPool() && toLoc != nil && toLoc.Kind == LocationShop {
		if err := replenishPoolTx(ctx, tx, product, req.Quantity, req.ReferenceID, req.Actor, result); err != nil {
			return nil, err
		}
	}

	poolBefore := product.PoolQuantity
	m := Movement{
		ProductID:   product.ID,
		Type:        req.Type,
		Quantity:    req.Quantity,
		From:        req.From,
		To:          req.To,
		ReferenceID: req.ReferenceID,
		Actor:       req.Actor,
	}

	// 4. Debit the source.
	switch req.From.Kind {
	case EndpointPool:
		if avail := product.Available(); avail < req.Quantity {
			return nil, &InsufficientStockError{ProductID: product.ID, Requested: req.Quantity, Available: avail}
		}
		product.PoolQuantity -= req.Quantity
		result.From = EndpointBalance{Endpoint: req.From, Before: poolBefore, After: product.PoolQuantity}
	case EndpointLocation:
		alloc, err := lockAllocation(ctx, tx, fromLoc.ID, product.ID)
		if err != nil {
			return nil, err
		}
		if alloc == nil {
			return nil, &NotAssignedError{LocationID: fromLoc.ID, ProductID: product.ID}
		}
		if alloc.Quantity < req.Quantity {
			return nil, &InsufficientStockError{
				ProductID:  product.ID,
				LocationID: intPtr(fromLoc.ID),
				AtShop:     fromLoc.Kind == LocationShop,
				Requested:  req.Quantity,
				Available:  alloc.Quantity,
			}
		}
		before := alloc.Quantity
		alloc.Quantity -= req.Quantity
		if err := updateAllocationQuantity(ctx, tx, alloc); err != nil {
			return nil, err
		}
		m.FromBefore, m.FromAfter = intPtr(before), intPtr(alloc.Quantity)
		result.From = EndpointBalance{Endpoint: req.From, Before: before, After: alloc.Quantity}
	case EndpointSink:
		// Units re-enter from outside; only returned sales touch the sold counter.
		if req.Restock {
			product.UnitsSold -= req.Quantity
			if product.UnitsSold < 0 {
				product.UnitsSold = 0
			}
		}
		result.From = EndpointBalance{Endpoint: req.From}
	}

	// 5. Credit the destination.
	switch req.To.Kind {
	case EndpointPool:
		before := product.PoolQuantity
		product.PoolQuantity += req.Quantity
		result.To = EndpointBalance{Endpoint: req.To, Before: before, After: product.PoolQuantity}
	case EndpointLocation:
		alloc, err := lockAllocation(ctx, tx, toLoc.ID, product.ID)
		if err != nil {
			return nil, err
		}
		before := 0
		if alloc == nil {
			alloc = &Allocation{
				LocationID:    toLoc.ID,
				LocationKind:  toLoc.Kind,
				ProductID:     product.ID,
				Quantity:      req.Quantity,
				MinStockLevel: req.MinStockLevel,
				MaxStockLevel: req.MaxStockLevel,
			}
			if err := insertAllocation(ctx, tx, alloc); err != nil {
				return nil, err
			}
		} else {
			before = alloc.Quantity
			alloc.Quantity += req.Quantity
			if err := updateAllocationQuantity(ctx, tx, alloc); err != nil {
				return nil, err
			}
		}
		m.ToBefore, m.ToAfter = intPtr(before), intPtr(alloc.Quantity)
		result.To = EndpointBalance{Endpoint: req.To, Before: before, After: alloc.Quantity}
	case EndpointSink:
		// Sales leave the system; the product-level sold counter mirrors them.
		product.UnitsSold += req.Quantity
		result.To = EndpointBalance{Endpoint: req.To}
	}

	// 6. Persist the product row and append the movement.
	if err := writeProductQuantities(ctx, tx, product); err != nil {
		return nil, err
	}
	m.PreviousStock, m.NewStock = poolBefore, product.PoolQuantity
	if err := insertMovement(ctx, tx, &m); err != nil {
		return nil, err
	}
	result.Movements = append(result.Movements, m)
	return result, nil
}

// replenishPoolTx makes sure the pool can release qty units to a shop. Perfumes are
// bottled from bulk material for the whole quantity; other products get an adjustment
// for the shortfall only.
func replenishPoolTx(ctx context.Context, tx pgx.Tx, product *Product, qty int, ref, actor string, result *TransferResult) error {
	if product.Kind == ProductPerfume {
		movs, matMovs, err := produceTx(ctx, tx, product, qty, ref, actor)
		if err != nil {
			return err
		}
		result.Movements = append(result.Movements, movs...)
		result.MaterialMovements = append(result.MaterialMovements, matMovs...)
		return nil
	}

	shortfall := qty - product.Available()
	if shortfall <= 0 {
		return nil
	}
	before := product.PoolQuantity
	product.PoolQuantity += shortfall
	if err := writeProductQuantities(ctx, tx, product); err != nil {
		return err
	}
	m := Movement{
		ProductID:     product.ID,
		Type:          MovementAdjustment,
		Quantity:      shortfall,
		PreviousStock: before,
		NewStock:      product.PoolQuantity,
		From:          SinkEndpoint(),
		To:            PoolEndpoint(),
		ReferenceID:   ref,
		Actor:         actor,
	}
	if err := insertMovement(ctx, tx, &m); err != nil {
		return err
	}
	result.Movements = append(result.Movements, m)
	return nil
}

func (l *stockLedger) ReassignTx(ctx context.Context, tx pgx.Tx, req ReassignRequest) (*TransferResult, error) {
	if req.Quantity < 0 {
		return nil, fmt.Errorf("%w: target quantity cannot be negative, got %d", ErrInvalidQuantity, req.Quantity)
	}

	// Product first, then allocation: the same order TransferTx uses.
	product, err := lockProduct(ctx, tx, req.ProductID)
	if err != nil {
		return nil, err
	}
	loc, err := getLocation(ctx, tx, req.LocationID)
	if err != nil {
		return nil, err
	}
	alloc, err := lockAllocation(ctx, tx, loc.ID, product.ID)
	if err != nil {
		return nil, err
	}
	if alloc == nil {
		return nil, &NotAssignedError{LocationID: loc.ID, ProductID: product.ID}
	}

	current := alloc.Quantity
	ref := fmt.Sprintf("reassign:%d:%d", loc.ID, product.ID)

	switch {
	case req.Quantity == current:
		bal := EndpointBalance{Endpoint: LocationEndpoint(loc.ID), Before: current, After: current}
		return &TransferResult{ProductID: product.ID, From: bal, To: bal}, nil

	case req.Quantity < current:
		if loc.Kind == LocationShop {
			sold, err := soldAtLocation(ctx, tx, loc.ID, product.ID)
			if err != nil {
				return nil, err
			}
			if remaining := unsoldRemaining(current, sold); req.Quantity < remaining {
				return nil, &UnsoldStockRemainingError{
					LocationID: loc.ID,
					ProductID:  product.ID,
					Remaining:  remaining,
					Requested:  req.Quantity,
				}
			}
		}
		return transferTx(ctx, tx, TransferRequest{
			From:        LocationEndpoint(loc.ID),
			To:          PoolEndpoint(),
			ProductID:   product.ID,
			Quantity:    current - req.Quantity,
			Type:        MovementReassign,
			ReferenceID: ref,
			Actor:       req.Actor,
		})

	default:
		return transferTx(ctx, tx, TransferRequest{
			From:        PoolEndpoint(),
			To:          LocationEndpoint(loc.ID),
			ProductID:   product.ID,
			Quantity:    req.Quantity - current,
			Type:        MovementReassign,
			Replenish:   loc.Kind == LocationShop,
			ReferenceID: ref,
			Actor:       req.Actor,
		})
	}
}

// UnassignTx returns the whole allocation to the pool and removes the row.
func (l *stockLedger) UnassignTx(ctx context.Context, tx pgx.Tx, locationID, productID int, actor string) (*TransferResult, error) {
	if _, err := lockProduct(ctx, tx, productID); err != nil {
		return nil, err
	}
	alloc, err := lockAllocation(ctx, tx, locationID, productID)
	if err != nil {
		return nil, err
	}
	if alloc == nil {
		return nil, &NotAssignedError{LocationID: locationID, ProductID: productID}
	}

	result := &TransferResult{
		ProductID: productID,
		From:      EndpointBalance{Endpoint: LocationEndpoint(locationID)},
		To:        EndpointBalance{Endpoint: PoolEndpoint()},
	}
	if alloc.Quantity > 0 {
		result, err = transferTx(ctx, tx, TransferRequest{
			From:        LocationEndpoint(locationID),
			To:          PoolEndpoint(),
			ProductID:   productID,
			Quantity:    alloc.Quantity,
			Type:        MovementReassign,
			ReferenceID: fmt.Sprintf("unassign:%d:%d", locationID, productID),
			Actor:       actor,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := deleteAllocation(ctx, tx, locationID, productID); err != nil {
		return nil, err
	}
	return result, nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (l *stockLedger) run(ctx context.Context, fn func(tx pgx.Tx) (*TransferResult, error)) (*TransferResult, error) {
	var result *TransferResult
	err := l.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.notifier.MovementsCommitted(ctx, result.Movements)
	return result, nil
}

func (l *stockLedger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	return l.run(ctx, func(tx pgx.Tx) (*TransferResult, error) {
		return transferTx(ctx, tx, req)
	})
}

func (l *stockLedger) Assign(ctx context.Context, req AssignRequest) (*TransferResult, error) {
	return l.Transfer(ctx, TransferRequest{
		From:          PoolEndpoint(),
		To:            LocationEndpoint(req.LocationID),
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		Type:          MovementAssign,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		Replenish:     req.Replenish,
		ReferenceID:   fmt.Sprintf("assign:%d:%d", req.LocationID, req.ProductID),
		Actor:         req.Actor,
	})
}

func (l *stockLedger) Move(ctx context.Context, req MoveRequest) (*TransferResult, error) {
	return l.Transfer(ctx, TransferRequest{
		From:          LocationEndpoint(req.FromLocationID),
		To:            LocationEndpoint(req.ToLocationID),
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		Type:          MovementTransfer,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		ReferenceID:   fmt.Sprintf("transfer:%d:%d:%d", req.FromLocationID, req.ToLocationID, req.ProductID),
		Actor:         req.Actor,
	})
}

func (l *stockLedger) Reassign(ctx context.Context, req ReassignRequest) (*TransferResult, error) {
	return l.run(ctx, func(tx pgx.Tx) (*TransferResult, error) {
		return l.ReassignTx(ctx, tx, req)
	})
}

func (l *stockLedger) Unassign(ctx context.Context, locationID, productID int, actor string) (*TransferResult, error) {
	return l.run(ctx, func(tx pgx.Tx) (*TransferResult, error) {
		return l.UnassignTx(ctx, tx, locationID, productID, actor)
	})
}
