package geocode

import (
	"context"
	"fmt"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Candidate is a single forward-search hit.
type Candidate struct {
	Coordinate  Coordinate `json:"coordinate"`
	DisplayName string     `json:"display_name"`
}

// Provider is a uniform interface over one external geocoding backend.
//
// ForwardSearch returns a nil or empty slice when nothing matches; only
// transport, auth, or configuration failures produce an error.
// ReverseLookup returns ErrNoAddress when the backend has no address for the
// coordinate, which is distinct from a transport error.
type Provider interface {
	Name() string
	ForwardSearch(ctx context.Context, query, regionHint string) ([]Candidate, error)
	ReverseLookup(ctx context.Context, coord Coordinate) (string, error)
}
