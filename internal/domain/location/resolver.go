package location

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
)

// PositionSource supplies the device's current position. The HTTP layer
// adapts a client-reported fix into one; tests use fakes.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (Coordinate, error)
}

// Config carries the resolver's operator-set knobs.
type Config struct {
	Fence         Geofence
	Anchor        Coordinate
	AnchorAddress string
	RegionHint    string
	// DeviceWait is the hard ceiling on a device position request.
	DeviceWait time.Duration
	// Cities maps city-shortcut names (lowercased) to coordinates.
	Cities map[string]Coordinate
}

// Resolver reconciles the geocoding providers and the device position source
// into single ResolvedLocation values.
type Resolver struct {
	primary  geocode.Provider
	fallback geocode.Provider
	cfg      Config
}

// NewResolver creates a Resolver. primary may be an unconfigured provider;
// fallback must always be usable.
func NewResolver(primary, fallback geocode.Provider, cfg Config) *Resolver {
	if cfg.DeviceWait <= 0 {
		cfg.DeviceWait = 10 * time.Second
	}
	return &Resolver{primary: primary, fallback: fallback, cfg: cfg}
}

// ResolveFromSearch forward-geocodes a free-text query. The primary provider
// is always tried first; the fallback is a failure-recovery path only, never
// raced. A primary hit resolves immediately to the top-ranked candidate; a
// fallback hit returns the candidate list for an explicit user pick.
func (r *Resolver) ResolveFromSearch(ctx context.Context, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoMatches
	}

	candidates, err := r.primary.ForwardSearch(ctx, query, r.cfg.RegionHint)
	if err == nil {
		if len(candidates) == 0 {
			return nil, ErrNoMatches
		}
		resolved := r.fromCandidate(candidates[0], SourceSearch)
		return &SearchResult{Resolved: &resolved}, nil
	}

	if !errors.Is(err, geocode.ErrNotConfigured) {
		log.Warn().Err(err).Str("query", query).Msg("primary geocoder failed, using fallback")
	}

	candidates, err = r.fallback.ForwardSearch(ctx, query, r.cfg.RegionHint)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("fallback geocoder failed")
		return nil, ErrSearchFailed
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatches
	}

	return &SearchResult{Candidates: candidates, Degraded: true}, nil
}

// ResolveFromCandidate confirms a candidate the user picked from a fallback
// search result.
func (r *Resolver) ResolveFromCandidate(candidate geocode.Candidate) ResolvedLocation {
	return r.fromCandidate(candidate, SourceSearch)
}

// ResolveFromCoordinate accepts a raw coordinate (map click, city shortcut,
// GPS fix) and enriches it with a best-effort reverse-geocoded address.
// Geofence violation downgrades Confirmed, never rejects.
func (r *Resolver) ResolveFromCoordinate(ctx context.Context, coord Coordinate, source Source) ResolvedLocation {
	resolved := ResolvedLocation{
		Coordinate: coord,
		Source:     source,
		Confirmed:  r.cfg.Fence.Contains(coord),
	}
	if !resolved.Confirmed {
		log.Info().
			Float64("lat", coord.Lat).
			Float64("lng", coord.Lng).
			Str("source", string(source)).
			Msg("coordinate outside geofence, kept unconfirmed")
	}

	if address, ok := r.reverseLookup(ctx, coord); ok {
		resolved.Address = &address
	}
	return resolved
}

// ResolveFromCity resolves a configured city shortcut.
func (r *Resolver) ResolveFromCity(ctx context.Context, city string) (ResolvedLocation, error) {
	coord, ok := r.cfg.Cities[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return ResolvedLocation{}, ErrUnknownCity
	}
	return r.ResolveFromCoordinate(ctx, coord, SourceCityShortcut), nil
}

// ResolveFromDevice requests the device position under a hard timeout. Any
// failure, timeout, or out-of-fence fix falls back to the anchor location.
// It never fails outward: the booking form must always have some location.
func (r *Resolver) ResolveFromDevice(ctx context.Context, src PositionSource) ResolvedLocation {
	deviceCtx, cancel := context.WithTimeout(ctx, r.cfg.DeviceWait)
	defer cancel()

	coord, err := src.CurrentPosition(deviceCtx)
	if err != nil {
		log.Warn().Err(err).Msg("device position failed, using anchor location")
		return r.anchorLocation()
	}

	if !r.cfg.Fence.Contains(coord) {
		log.Info().
			Float64("lat", coord.Lat).
			Float64("lng", coord.Lng).
			Msg("device position outside service region, using anchor location")
		return r.anchorLocation()
	}

	return r.ResolveFromCoordinate(ctx, coord, SourceGPS)
}

// Anchor returns the operator-configured default location.
func (r *Resolver) Anchor() ResolvedLocation {
	return r.anchorLocation()
}

func (r *Resolver) anchorLocation() ResolvedLocation {
	resolved := ResolvedLocation{
		Coordinate: r.cfg.Anchor,
		Source:     SourceFallback,
		Confirmed:  false,
	}
	if r.cfg.AnchorAddress != "" {
		address := r.cfg.AnchorAddress
		resolved.Address = &address
	}
	return resolved
}

func (r *Resolver) fromCandidate(candidate geocode.Candidate, source Source) ResolvedLocation {
	resolved := ResolvedLocation{
		Coordinate: candidate.Coordinate,
		Source:     source,
		Confirmed:  r.cfg.Fence.Contains(candidate.Coordinate),
	}
	if candidate.DisplayName != "" {
		name := candidate.DisplayName
		resolved.Address = &name
	}
	return resolved
}

// reverseLookup asks whichever provider is configured for an address.
// Address is optional: any failure leaves it unset.
func (r *Resolver) reverseLookup(ctx context.Context, coord Coordinate) (string, bool) {
	address, err := r.primary.ReverseLookup(ctx, coord)
	if err == nil {
		return address, true
	}
	if !errors.Is(err, geocode.ErrNotConfigured) && !errors.Is(err, geocode.ErrNoAddress) {
		log.Warn().Err(err).Msg("primary reverse lookup failed, using fallback")
	}
	if errors.Is(err, geocode.ErrNoAddress) {
		return "", false
	}

	address, err = r.fallback.ReverseLookup(ctx, coord)
	if err != nil {
		log.Debug().Err(err).Msg("fallback reverse lookup failed, keeping coordinate without address")
		return "", false
	}
	return address, true
}
