package app

import (
	"context"

	"inventory-engine/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call. It
// authorizes the caller, retries conflicting transactions and delegates to core.
// Implementations contain no display logic.
type ApplicationService interface {
	// Stock placement.
	Assign(ctx context.Context, id Identity, req AssignRequest) (*core.TransferResult, error)
	Move(ctx context.Context, id Identity, req MoveRequest) (*core.TransferResult, error)
	// Reassign sets the allocation of a location to an absolute quantity.
	Reassign(ctx context.Context, id Identity, req ReassignRequest) (*core.TransferResult, error)
	// Unassign removes an allocation and returns its units to the pool.
	Unassign(ctx context.Context, id Identity, locationID, productID int) (*core.TransferResult, error)
	ReceiveStock(ctx context.Context, id Identity, req ReceiveStockRequest) (*core.TransferResult, error)

	// Orders.
	CreateOrder(ctx context.Context, id Identity, req CreateOrderRequest) (*OrderResult, error)
	// ref may be a numeric ID or an order number.
	GetOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error)
	ListOrders(ctx context.Context, id Identity, req ListOrdersRequest) (*OrderListResult, error)
	ConfirmOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error)
	ProcessOrder(ctx context.Context, id Identity, ref string) (*core.PickingList, error)
	CompleteFulfillment(ctx context.Context, id Identity, ref, trackingNumber string) (*OrderResult, error)
	CompleteOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error)
	CancelOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error)
	DeleteOrder(ctx context.Context, id Identity, ref string) error
	RestockCancelledOrder(ctx context.Context, id Identity, ref string) (*OrderResult, error)
	UpdatePayment(ctx context.Context, id Identity, ref string, req UpdatePaymentRequest) (*OrderResult, error)
	ListReservations(ctx context.Context, id Identity, ref string) ([]core.Reservation, error)

	// Reservation expiry.
	RunSweep(ctx context.Context, id Identity) (*SweepRunResult, error)

	// Reporting.
	StockSummary(ctx context.Context, id Identity, productID int) (*core.StockSummary, error)
	ListMovements(ctx context.Context, id Identity, productID, limit int) ([]core.Movement, error)
	VerifyChain(ctx context.Context, id Identity, productID int) (*core.ChainReport, error)
	LowStock(ctx context.Context, id Identity) ([]core.LowStockRow, error)
	Conservation(ctx context.Context, id Identity, productID int) (*core.ConservationReport, error)

	// Catalog.
	ListProducts(ctx context.Context, id Identity) ([]core.Product, error)
	CreateProduct(ctx context.Context, id Identity, in core.ProductInput) (*core.Product, error)
	ListLocations(ctx context.Context, id Identity) ([]core.Location, error)
	CreateLocation(ctx context.Context, id Identity, in core.LocationInput) (*core.Location, error)
	SetLocationActive(ctx context.Context, id Identity, locationID int, active bool) (*core.Location, error)
	ListMaterials(ctx context.Context, id Identity) ([]core.Material, error)
	CreateMaterial(ctx context.Context, id Identity, in core.MaterialInput) (*core.Material, error)
	ReceiveMaterial(ctx context.Context, id Identity, req ReceiveMaterialRequest) (*core.MaterialMovement, error)
}
