package core

import "context"

// MovementNotifier is told about movements once their transaction has committed.
// Implementations must not block for long and must not fail the caller; stock state is
// already durable when they run.
type MovementNotifier interface {
	MovementsCommitted(ctx context.Context, movements []Movement)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) MovementsCommitted(context.Context, []Movement) {}

// MultiNotifier fans out to every notifier in order.
type MultiNotifier []MovementNotifier

func (m MultiNotifier) MovementsCommitted(ctx context.Context, movements []Movement) {
	if len(movements) == 0 {
		return
	}
	for _, n := range m {
		if n != nil {
			n.MovementsCommitted(ctx, movements)
		}
	}
}
