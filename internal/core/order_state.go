package core

import "fmt"

// orderTransitions is the complete edge table of the order state machine. Completed and
// cancelled have no outgoing edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderFulfilled, OrderCancelled},
	OrderFulfilled:  {OrderCompleted, OrderCancelled},
}

// orderDeleted is not a stored status; it names the pseudo-transition of DeleteOrder in
// InvalidTransitionError.
const orderDeleted OrderStatus = "deleted"

// AllOrderStatuses lists every stored status in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderPending, OrderConfirmed, OrderProcessing, OrderFulfilled, OrderCompleted, OrderCancelled}
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns *InvalidTransitionError unless from → to is allowed.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Deletable reports whether an order in this status may be hard-deleted.
func (s OrderStatus) Deletable() bool {
	return s == OrderPending || s == OrderConfirmed
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AllOrderStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, s)
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch p := PaymentStatus(s); p {
	case PaymentPending, PaymentPartial, PaymentCompleted:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, s)
}

// statusTimestampColumn is the orders column stamped when entering status.
func statusTimestampColumn(s OrderStatus) string {
	switch s {
	case OrderConfirmed:
		return "confirmed_at"
	case OrderProcessing:
		return "processing_at"
	case OrderFulfilled:
		return "fulfilled_at"
	case OrderCompleted:
		return "completed_at"
	case OrderCancelled:
		return "cancelled_at"
	}
	return ""
}

// retailStrategy decides how a retail item is consumed when the order is created.
func retailStrategy(kind ProductKind, payment PaymentStatus) ConsumptionStrategy {
	switch {
	case kind == ProductService:
		return StrategyNone
	case payment == PaymentPending:
		return StrategyReserved
	default:
		return StrategyEager
	}
}
