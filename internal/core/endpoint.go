package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EndpointKind tags the two sides of a transfer.
type EndpointKind string

const (
	EndpointPool     EndpointKind = "pool"
	EndpointLocation EndpointKind = "location"
	// EndpointSink is outside the system: sold, produced or restocked units.
	EndpointSink EndpointKind = "sink"
)

// Endpoint is Pool, Location(id) or Sink. LocationID is only meaningful for locations.
type Endpoint struct {
	Kind       EndpointKind
	LocationID int
}

func PoolEndpoint() Endpoint { return Endpoint{Kind: EndpointPool} }

func LocationEndpoint(id int) Endpoint { return Endpoint{Kind: EndpointLocation, LocationID: id} }

func SinkEndpoint() Endpoint { return Endpoint{Kind: EndpointSink} }

func (e Endpoint) IsPool() bool     { return e.Kind == EndpointPool }
func (e Endpoint) IsLocation() bool { return e.Kind == EndpointLocation }
func (e Endpoint) IsSink() bool     { return e.Kind == EndpointSink }

// String renders "pool", "sink" or "location:<id>".
func (e Endpoint) String() string {
	if e.Kind == EndpointLocation {
		return "location:" + strconv.Itoa(e.LocationID)
	}
	return string(e.Kind)
}

// ParseEndpoint is the inverse of String.
func ParseEndpoint(s string) (Endpoint, error) {
	switch {
	case s == string(EndpointPool):
		return PoolEndpoint(), nil
	case s == string(EndpointSink):
		return SinkEndpoint(), nil
	case strings.HasPrefix(s, "location:"):
		id, err := strconv.Atoi(strings.TrimPrefix(s, "location:"))
		if err != nil || id <= 0 {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
		}
		return LocationEndpoint(id), nil
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
}

func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEndpoint(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// locationIDOrNil is used for the nullable from/to location columns.
func (e Endpoint) locationIDOrNil() *int {
	if e.Kind != EndpointLocation {
		return nil
	}
	id := e.LocationID
	return &id
}

// validateRoute checks the endpoint pair of a transfer. Sink may only be a source
// for restocks and adjustments, which callers request with an explicit type.
func validateRoute(from, to Endpoint, typ MovementType) error {
	for _, e := range []Endpoint{from, to} {
		switch e.Kind {
		case EndpointPool, EndpointSink:
		case EndpointLocation:
			if e.LocationID <= 0 {
				return fmt.Errorf("%w: location id must be positive", ErrInvalidEndpoint)
			}
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidEndpoint, e.Kind)
		}
	}
	if from == to {
		return fmt.Errorf("%w: source and destination are both %s", ErrInvalidEndpoint, from)
	}
	if from.IsSink() && to.IsSink() {
		return fmt.Errorf("%w: sink to sink", ErrInvalidEndpoint)
	}
	if from.IsSink() && typ != MovementAdjustment {
		return fmt.Errorf("%w: sink can only be a source for adjustments", ErrInvalidEndpoint)
	}
	return nil
}

// defaultMovementType picks the movement type when the caller did not name one.
func defaultMovementType(from, to Endpoint) MovementType {
	switch {
	case to.IsSink():
		return MovementSale
	case from.IsSink():
		return MovementAdjustment
	case from.IsPool():
		return MovementAssign
	case to.IsPool():
		return MovementReassign
	default:
		return MovementTransfer
	}
}
