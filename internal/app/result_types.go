package app

import "inventory-engine/internal/core"

// OrderResult is returned by order lifecycle operations.
type OrderResult struct {
	Order *core.Order `json:"order"`
}

// OrderListResult is returned by ListOrders.
type OrderListResult struct {
	Orders []core.Order `json:"orders"`
}

// SweepRunResult is returned by RunSweep. Ran is false when another instance held
// the sweep lock.
type SweepRunResult struct {
	Ran    bool             `json:"ran"`
	Result core.SweepResult `json:"result"`
}
