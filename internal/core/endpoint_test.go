package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{"pool", PoolEndpoint(), false},
		{"sink", SinkEndpoint(), false},
		{"location:12", LocationEndpoint(12), false},
		{"location:0", Endpoint{}, true},
		{"location:x", Endpoint{}, true},
		{"warehouse", Endpoint{}, true},
		{"", Endpoint{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestEndpointJSON(t *testing.T) {
	type wire struct {
		From Endpoint `json:"from"`
		To   Endpoint `json:"to"`
	}
	b, err := json.Marshal(wire{From: PoolEndpoint(), To: LocationEndpoint(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"pool","to":"location:3"}`, string(b))

	var back wire
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, LocationEndpoint(3), back.To)

	assert.Error(t, json.Unmarshal([]byte(`{"from":"moon"}`), &back))
}

func TestValidateRoute(t *testing.T) {
	assert.NoError(t, validateRoute(PoolEndpoint(), LocationEndpoint(1), MovementAssign))
	assert.NoError(t, validateRoute(LocationEndpoint(1), LocationEndpoint(2), MovementTransfer))
	assert.NoError(t, validateRoute(LocationEndpoint(1), SinkEndpoint(), MovementSale))
	assert.NoError(t, validateRoute(SinkEndpoint(), PoolEndpoint(), MovementAdjustment))

	for name, err := range map[string]error{
		"same location":   validateRoute(LocationEndpoint(1), LocationEndpoint(1), MovementTransfer),
		"pool to pool":    validateRoute(PoolEndpoint(), PoolEndpoint(), MovementAdjustment),
		"sink to sink":    validateRoute(SinkEndpoint(), SinkEndpoint(), MovementAdjustment),
		"sink as sale":    validateRoute(SinkEndpoint(), PoolEndpoint(), MovementSale),
		"bad location id": validateRoute(PoolEndpoint(), Endpoint{Kind: EndpointLocation}, MovementAssign),
		"unknown kind":    validateRoute(Endpoint{Kind: "moon"}, PoolEndpoint(), MovementAssign),
	} {
		assert.Truef(t, errors.Is(err, ErrInvalidEndpoint), "%s: got %v", name, err)
	}
}

func TestDefaultMovementType(t *testing.T) {
	assert.Equal(t, MovementAssign, defaultMovementType(PoolEndpoint(), LocationEndpoint(1)))
	assert.Equal(t, MovementReassign, defaultMovementType(LocationEndpoint(1), PoolEndpoint()))
	assert.Equal(t, MovementTransfer, defaultMovementType(LocationEndpoint(1), LocationEndpoint(2)))
	assert.Equal(t, MovementSale, defaultMovementType(LocationEndpoint(1), SinkEndpoint()))
	assert.Equal(t, MovementAdjustment, defaultMovementType(SinkEndpoint(), PoolEndpoint()))
}
