package location

import (
	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
)

// Coordinate is the lat/lng pair shared with the geocode package.
type Coordinate = geocode.Coordinate

// Source identifies how a location was produced.
type Source string

const (
	SourceMapClick     Source = "map_click"
	SourceSearch       Source = "search"
	SourceCityShortcut Source = "city_shortcut"
	SourceGPS          Source = "gps"
	SourceFallback     Source = "fallback"
)

// ResolvedLocation is one settled answer to "where does the service happen".
// Immutable once created: a new resolution replaces it wholesale.
type ResolvedLocation struct {
	Coordinate `json:"coordinate"`
	Address    *string `json:"address"`
	Source     Source  `json:"source"`
	Confirmed  bool    `json:"confirmed"`
}

// Geofence is the rectangular lat/lng box of the serviceable region.
type Geofence struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the coordinate lies inside the fence.
func (g Geofence) Contains(c Coordinate) bool {
	return c.Lat >= g.MinLat && c.Lat <= g.MaxLat &&
		c.Lng >= g.MinLng && c.Lng <= g.MaxLng
}

// SearchResult is the outcome of a forward search. The primary provider
// resolves immediately to its top hit; the fallback provider hands back the
// candidate list for the user to pick from. Exactly one field is set.
type SearchResult struct {
	Resolved   *ResolvedLocation   `json:"resolved,omitempty"`
	Candidates []geocode.Candidate `json:"candidates,omitempty"`
	// Degraded is set when the result came from the fallback provider.
	Degraded bool `json:"degraded"`
}
