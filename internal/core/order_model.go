package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment status of an order. See order_state.go for the
// transition table.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderFulfilled  OrderStatus = "fulfilled"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus decides the consumption strategy of retail items at creation time.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPartial   PaymentStatus = "partial"
	PaymentCompleted PaymentStatus = "completed"
)

// ItemKind separates regular retail items from atelier/raw-material items.
type ItemKind string

const (
	ItemRetail   ItemKind = "retail"
	ItemMaterial ItemKind = "material"
)

// ConsumptionStrategy is chosen once when the item is created and stored on the row,
// so later transitions know which ledger call applies.
type ConsumptionStrategy string

const (
	// StrategyReserved holds pool stock; fulfilled or released later.
	StrategyReserved ConsumptionStrategy = "reserved"
	// StrategyEager deducted stock at creation, from the order's shop or, for global
	// orders, from the pool.
	StrategyEager ConsumptionStrategy = "eager"
	// StrategyDirect deducted a raw-material balance at creation.
	StrategyDirect ConsumptionStrategy = "direct"
	// StrategyNone is used for service products, which hold no stock.
	StrategyNone ConsumptionStrategy = "none"
)

// Order is an order header. ShopID nil means an admin/global order.
//
//	pending → confirmed → processing → fulfilled → completed
//	any non-terminal → cancelled
type Order struct {
	ID             int             `json:"id"`
	OrderNumber    string          `json:"order_number"`
	Status         OrderStatus     `json:"status"`
	ShopID         *int            `json:"shop_id,omitempty"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	CreatedBy      string          `json:"created_by"`
	Items          []OrderItem     `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	ProcessingAt   *time.Time      `json:"processing_at,omitempty"`
	FulfilledAt    *time.Time      `json:"fulfilled_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
}

// OrderItem is one line of an order. Exactly one of ProductID and MaterialID is set.
type OrderItem struct {
	ID          int                 `json:"id"`
	OrderID     int                 `json:"order_id"`
	LineNumber  int                 `json:"line_number"`
	Kind        ItemKind            `json:"kind"`
	ProductID   *int                `json:"product_id,omitempty"`
	MaterialID  *int                `json:"material_id,omitempty"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	LineTotal   decimal.Decimal     `json:"line_total"`
	Strategy    ConsumptionStrategy `json:"strategy"`
	LocationID  *int                `json:"location_id,omitempty"`
	RestockedAt *time.Time          `json:"restocked_at,omitempty"`
}

// OrderItemInput is used when creating an order. Retail items carry ProductID and
// a whole-unit Quantity; material items carry MaterialID and an amount in the
// material's unit.
type OrderItemInput struct {
	Kind       ItemKind
	ProductID  int
	MaterialID int
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// CreateOrderInput is the input of OrderService.CreateOrder.
type CreateOrderInput struct {
	ShopID        *int
	PaymentStatus PaymentStatus
	PaidAmount    decimal.Decimal
	Items         []OrderItemInput
	Actor         string
}

// PickingList is the read-only projection produced when an order enters processing.
type PickingList struct {
	OrderID     int        `json:"order_id"`
	OrderNumber string     `json:"order_number"`
	Lines       []PickLine `json:"lines"`
}

// PickLine tells the picker what to take and from where.
type PickLine struct {
	LineNumber int                 `json:"line_number"`
	ProductID  *int                `json:"product_id,omitempty"`
	MaterialID *int                `json:"material_id,omitempty"`
	SKU        string              `json:"sku"`
	Name       string              `json:"name"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Strategy   ConsumptionStrategy `json:"strategy"`
	LocationID *int                `json:"location_id,omitempty"`
}
