package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"inventory-engine/internal/core"
)

func TestSummaryKey(t *testing.T) {
	assert.Equal(t, "stockengine:summary:42", summaryKey(42))
	assert.Equal(t, "stockengine:lock:reservation-sweep", lockKey("reservation-sweep"))
}

func TestMovedProducts(t *testing.T) {
	ids := movedProducts([]core.Movement{
		{ProductID: 3}, {ProductID: 1}, {ProductID: 3}, {ProductID: 2}, {ProductID: 1},
	})
	assert.Equal(t, []int{3, 1, 2}, ids)
	assert.Empty(t, movedProducts(nil))
}
