package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductKind classifies catalog products. Only perfume products go through the
// bottling (production) path when a shop is replenished.
type ProductKind string

const (
	ProductGeneral      ProductKind = "general"
	ProductPerfume      ProductKind = "perfume"
	ProductService      ProductKind = "service"
	ProductMaterialWrap ProductKind = "raw_material_wrapper"
)

// LocationKind distinguishes the two kinds of named stock locations.
type LocationKind string

const (
	LocationShop      LocationKind = "shop"
	LocationWarehouse LocationKind = "warehouse"
)

// Product is the catalog row as seen by the stock engine. PoolQuantity is the single
// canonical unassigned-stock field; catalog edits never write it.
type Product struct {
	ID                  int         `json:"id"`
	SKU                 string      `json:"sku"`
	Name                string      `json:"name"`
	Kind                ProductKind `json:"kind"`
	SizeSpec            string      `json:"size_spec"`
	PoolQuantity        int         `json:"pool_quantity"`
	ReservedQuantity    int         `json:"reserved_quantity"`
	UnitsSold           int         `json:"units_sold"`
	MinStockLevel       int         `json:"min_stock_level"`
	BulkMaterialID      *int        `json:"bulk_material_id,omitempty"`
	PackagingMaterialID *int        `json:"packaging_material_id,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

// Available is the pool quantity not held by active reservations.
func (p Product) Available() int {
	return p.PoolQuantity - p.ReservedQuantity
}

// Location is a shop or warehouse.
type Location struct {
	ID       int          `json:"id"`
	Kind     LocationKind `json:"kind"`
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	IsActive bool         `json:"is_active"`
}

// Allocation is the (location, product) quantity row with its thresholds.
type Allocation struct {
	LocationID    int          `json:"location_id"`
	LocationKind  LocationKind `json:"location_kind"`
	ProductID     int          `json:"product_id"`
	Quantity      int          `json:"quantity"`
	MinStockLevel int          `json:"min_stock_level"`
	MaxStockLevel int          `json:"max_stock_level"`
	LastUpdated   time.Time    `json:"last_updated"`
}

// ReservationStatus values. Every status other than active is terminal.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a time-boxed hold on pool stock for one order item.
type Reservation struct {
	ID              int64             `json:"id"`
	OrderID         int               `json:"order_id"`
	ProductID       int               `json:"product_id"`
	Quantity        int               `json:"quantity"`
	Status          ReservationStatus `json:"status"`
	ReservationDate time.Time         `json:"reservation_date"`
	ExpiryDate      time.Time         `json:"expiry_date"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
}

// MovementType is the type of an append-only stock movement record.
type MovementType string

const (
	MovementAssign      MovementType = "assign"
	MovementTransfer    MovementType = "transfer"
	MovementReassign    MovementType = "reassign"
	MovementReservation MovementType = "reservation"
	MovementRelease     MovementType = "release"
	MovementSale        MovementType = "sale"
	MovementAdjustment  MovementType = "adjustment"
	MovementExpiry      MovementType = "expiry"
	MovementProduction  MovementType = "production"
)

// Movement is one row of the stock audit log. PreviousStock and NewStock are pool
// values, so the rows of one product form a chain in commit order. The From/To
// balances are set when that endpoint is a location.
type Movement struct {
	ID            int64        `json:"id"`
	ProductID     int          `json:"product_id"`
	Type          MovementType `json:"type"`
	Quantity      int          `json:"quantity"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	From          Endpoint     `json:"from"`
	To            Endpoint     `json:"to"`
	FromBefore    *int         `json:"from_before,omitempty"`
	FromAfter     *int         `json:"from_after,omitempty"`
	ToBefore      *int         `json:"to_before,omitempty"`
	ToAfter       *int         `json:"to_after,omitempty"`
	ReferenceID   string       `json:"reference_id"`
	Actor         string       `json:"actor"`
	CreatedAt     time.Time    `json:"created_at"`
}

// MaterialKind classifies material balances.
type MaterialKind string

const (
	MaterialBulk      MaterialKind = "bulk"
	MaterialPackaging MaterialKind = "packaging"
	MaterialRaw       MaterialKind = "raw"
)

// Material is a bulk liquid, packaging or atelier raw-material balance.
type Material struct {
	ID      int             `json:"id"`
	Kind    MaterialKind    `json:"kind"`
	Name    string          `json:"name"`
	Unit    string          `json:"unit"`
	Balance decimal.Decimal `json:"balance"`
}

// MaterialMovement records one change to a material balance.
type MaterialMovement struct {
	ID              int64           `json:"id"`
	MaterialID      int             `json:"material_id"`
	Type            MovementType    `json:"type"`
	Quantity        decimal.Decimal `json:"quantity"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	ReferenceID     string          `json:"reference_id"`
	CreatedAt       time.Time       `json:"created_at"`
}
