package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inventory-engine/internal/core"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisher_MovementsCommitted(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w, log: zap.NewNop()}

	p.MovementsCommitted(context.Background(), []core.Movement{
		{ID: 7, ProductID: 12, Type: core.MovementSale, Quantity: 2, PreviousStock: 10, NewStock: 10,
			From: core.LocationEndpoint(3), To: core.SinkEndpoint(), ReferenceID: "order:5"},
	})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "12", string(w.msgs[0].Key))
	assert.Equal(t, "sale", string(w.msgs[0].Headers[0].Value))

	var ev map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "location:3", ev["from"])
	assert.Equal(t, "sink", ev["to"])
	assert.Equal(t, "order:5", ev["reference_id"])
	assert.NotEmpty(t, ev["event_id"])
}

func TestPublisher_EmptyAndFailingWrites(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Publisher{w: w, log: zap.NewNop()}

	p.MovementsCommitted(context.Background(), nil)
	assert.Empty(t, w.msgs)

	assert.NotPanics(t, func() {
		p.MovementsCommitted(context.Background(), []core.Movement{{ProductID: 1, Type: core.MovementAssign}})
	})
}
