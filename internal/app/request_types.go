package app

import (
	"github.com/shopspring/decimal"
)

// AssignRequest moves units from the pool to a location.
type AssignRequest struct {
	LocationID    int  `json:"location_id"`
	ProductID     int  `json:"product_id"`
	Quantity      int  `json:"quantity"`
	MinStockLevel int  `json:"min_stock_level"`
	MaxStockLevel int  `json:"max_stock_level"`
	Replenish     bool `json:"replenish"`
}

// MoveRequest moves units between two locations.
type MoveRequest struct {
	FromLocationID int `json:"from_location_id"`
	ToLocationID   int `json:"to_location_id"`
	ProductID      int `json:"product_id"`
	Quantity       int `json:"quantity"`
	MinStockLevel  int `json:"min_stock_level"`
	MaxStockLevel  int `json:"max_stock_level"`
}

// ReassignRequest sets a location's allocation to Quantity.
type ReassignRequest struct {
	LocationID int `json:"location_id"`
	ProductID  int `json:"product_id"`
	Quantity   int `json:"quantity"`
}

// ReceiveStockRequest books new units into the pool.
type ReceiveStockRequest struct {
	ProductID   int    `json:"product_id"`
	Quantity    int    `json:"quantity"`
	ReferenceID string `json:"reference_id"`
}

type ReceiveMaterialRequest struct {
	MaterialID  int             `json:"material_id"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
}

// CreateOrderRequest is the input for creating an order. ShopID nil places a global
// order served from the pool.
type CreateOrderRequest struct {
	ShopID        *int               `json:"shop_id"`
	PaymentStatus string             `json:"payment_status"`
	PaidAmount    decimal.Decimal    `json:"paid_amount"`
	Items         []OrderItemRequest `json:"items"`
}

// OrderItemRequest is one line of a CreateOrderRequest. Kind "material" carries a
// MaterialID; anything else is a retail line carrying a ProductID.
type OrderItemRequest struct {
	Kind       string          `json:"kind"`
	ProductID  int             `json:"product_id"`
	MaterialID int             `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type ListOrdersRequest struct {
	Status string
	ShopID *int
	Limit  int
}

type UpdatePaymentRequest struct {
	Status     string          `json:"status"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
}
