package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

type fakeService struct {
	app.ApplicationService
	reassigned app.ReassignRequest
	sweepRan   bool
}

func (f *fakeService) Reassign(_ context.Context, _ app.Identity, req app.ReassignRequest) (*core.TransferResult, error) {
	f.reassigned = req
	return &core.TransferResult{
		ProductID: req.ProductID,
		Quantity:  2,
		From:      core.EndpointBalance{Endpoint: core.LocationEndpoint(req.LocationID), Before: 5, After: 3},
		To:        core.EndpointBalance{Endpoint: core.PoolEndpoint(), Before: 10, After: 12},
	}, nil
}

func (f *fakeService) RunSweep(context.Context, app.Identity) (*app.SweepRunResult, error) {
	return &app.SweepRunResult{Ran: f.sweepRan, Result: core.SweepResult{Scanned: 2, Expired: 2}}, nil
}

func (f *fakeService) VerifyChain(_ context.Context, _ app.Identity, productID int) (*core.ChainReport, error) {
	return &core.ChainReport{ProductID: productID, Movements: 3, Consistent: false,
		Breaks: []core.ChainBreak{{MovementID: 2, Expected: 5, Got: 4}}}, nil
}

var operator = app.SystemIdentity("stockctl")

func TestRun_Reassign(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer

	err := Run(context.Background(), svc, operator, []string{"reassign", "4", "7", "3"}, &out)
	require.NoError(t, err)
	assert.Equal(t, app.ReassignRequest{LocationID: 4, ProductID: 7, Quantity: 3}, svc.reassigned)
	assert.Contains(t, out.String(), "location:4 5 -> 3, pool 10 -> 12")
}

func TestRun_Sweep(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), &fakeService{sweepRan: true}, operator, []string{"sweep"}, &out))
	assert.Contains(t, out.String(), "expired 2")

	out.Reset()
	require.NoError(t, Run(context.Background(), &fakeService{}, operator, []string{"sweep"}, &out))
	assert.Contains(t, out.String(), "skipped")
}

func TestRun_VerifyReportsBreaks(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), &fakeService{}, operator, []string{"verify", "9"}, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "movement 2: expected previous 5, got 4")
}

func TestRun_BadArguments(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, Run(context.Background(), &fakeService{}, operator, nil, &out))
	assert.Error(t, Run(context.Background(), &fakeService{}, operator, []string{"assign", "1", "2"}, &out))
	assert.Error(t, Run(context.Background(), &fakeService{}, operator, []string{"assign", "1", "x", "3"}, &out))
	assert.Error(t, Run(context.Background(), &fakeService{}, operator, []string{"launch"}, &out))
}
