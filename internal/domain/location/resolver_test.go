package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
)

type fakeProvider struct {
	name           string
	forwardCalls   int
	reverseCalls   int
	candidates     []geocode.Candidate
	forwardErr     error
	reverseAddress string
	reverseErr     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ForwardSearch(ctx context.Context, query, regionHint string) ([]geocode.Candidate, error) {
	f.forwardCalls++
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	return f.candidates, nil
}

func (f *fakeProvider) ReverseLookup(ctx context.Context, coord geocode.Coordinate) (string, error) {
	f.reverseCalls++
	if f.reverseErr != nil {
		return "", f.reverseErr
	}
	return f.reverseAddress, nil
}

type fakePosition struct {
	coord Coordinate
	err   error
	delay time.Duration
}

func (f *fakePosition) CurrentPosition(ctx context.Context) (Coordinate, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Coordinate{}, ctx.Err()
		}
	}
	return f.coord, f.err
}

func lankaFence() Geofence {
	return Geofence{MinLat: 5.9, MaxLat: 9.8, MinLng: 79.6, MaxLng: 81.9}
}

func newTestResolver(primary, fallback geocode.Provider) *Resolver {
	return NewResolver(primary, fallback, Config{
		Fence:         lankaFence(),
		Anchor:        Coordinate{Lat: 6.9271, Lng: 79.8612},
		AnchorAddress: "Colombo, Sri Lanka",
		RegionHint:    "lk",
		DeviceWait:    100 * time.Millisecond,
		Cities:        DefaultCities(),
	})
}

func TestSearchPrimaryResolvesTopCandidate(t *testing.T) {
	primary := &fakeProvider{name: "primary", candidates: []geocode.Candidate{
		{Coordinate: Coordinate{Lat: 7.8731, Lng: 80.7718}, DisplayName: "Kandy, Sri Lanka"},
		{Coordinate: Coordinate{Lat: 7.2906, Lng: 80.6337}, DisplayName: "Kandy Lake"},
	}}
	fallback := &fakeProvider{name: "fallback"}

	result, err := newTestResolver(primary, fallback).ResolveFromSearch(context.Background(), "Kandy")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if result.Resolved == nil {
		t.Fatal("primary success must auto-resolve")
	}
	if result.Resolved.Coordinate.Lat != 7.8731 {
		t.Fatalf("expected top-ranked candidate, got %+v", result.Resolved.Coordinate)
	}
	if !result.Resolved.Confirmed {
		t.Fatal("Kandy lies inside the fence, expected confirmed")
	}
	if result.Candidates != nil || result.Degraded {
		t.Fatal("primary path must not return a candidate list")
	}
	if fallback.forwardCalls != 0 {
		t.Fatalf("fallback must not be called on primary success, got %d calls", fallback.forwardCalls)
	}
}

func TestSearchFallbackInvokedExactlyOnce(t *testing.T) {
	primary := &fakeProvider{name: "primary", forwardErr: errors.New("primary network error")}
	fallback := &fakeProvider{name: "fallback", candidates: []geocode.Candidate{
		{Coordinate: Coordinate{Lat: 6.0535, Lng: 80.2210}, DisplayName: "Galle, Sri Lanka"},
	}}

	result, err := newTestResolver(primary, fallback).ResolveFromSearch(context.Background(), "Galle")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if primary.forwardCalls != 1 {
		t.Fatalf("primary must be tried exactly once, got %d", primary.forwardCalls)
	}
	if fallback.forwardCalls != 1 {
		t.Fatalf("fallback must be invoked exactly once, got %d", fallback.forwardCalls)
	}
	if !result.Degraded {
		t.Fatal("fallback result must be marked degraded")
	}
	if result.Resolved != nil {
		t.Fatal("fallback success returns candidates for explicit pick, not an auto-resolve")
	}
	if len(result.Candidates) != 1 || result.Candidates[0].DisplayName != "Galle, Sri Lanka" {
		t.Fatalf("unexpected candidates: %+v", result.Candidates)
	}
}

func TestSearchUnconfiguredPrimaryFallsBackSilently(t *testing.T) {
	primary := &fakeProvider{name: "primary", forwardErr: geocode.ErrNotConfigured}
	fallback := &fakeProvider{name: "fallback", candidates: []geocode.Candidate{
		{Coordinate: Coordinate{Lat: 6.9271, Lng: 79.8612}, DisplayName: "Colombo"},
	}}

	result, err := newTestResolver(primary, fallback).ResolveFromSearch(context.Background(), "Colombo")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !result.Degraded {
		t.Fatal("unconfigured primary must yield a degraded fallback result")
	}
}

func TestSearchNoMatchesAnywhere(t *testing.T) {
	primary := &fakeProvider{name: "primary", forwardErr: errors.New("boom")}
	fallback := &fakeProvider{name: "fallback"}

	_, err := newTestResolver(primary, fallback).ResolveFromSearch(context.Background(), "xyzzy")
	if !errors.Is(err, ErrNoMatches) {
		t.Fatalf("expected ErrNoMatches, got %v", err)
	}
}

func TestSearchBothProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", forwardErr: errors.New("down")}
	fallback := &fakeProvider{name: "fallback", forwardErr: errors.New("also down")}

	_, err := newTestResolver(primary, fallback).ResolveFromSearch(context.Background(), "Galle")
	if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
}

func TestGeofenceValidation(t *testing.T) {
	primary := &fakeProvider{name: "primary", reverseErr: geocode.ErrNotConfigured}
	fallback := &fakeProvider{name: "fallback", reverseAddress: "somewhere"}
	r := newTestResolver(primary, fallback)

	colombo := r.ResolveFromCoordinate(context.Background(), Coordinate{Lat: 6.9271, Lng: 79.8612}, SourceMapClick)
	if !colombo.Confirmed {
		t.Fatal("Colombo must validate as confirmed")
	}

	newYork := r.ResolveFromCoordinate(context.Background(), Coordinate{Lat: 40.7, Lng: -74.0}, SourceMapClick)
	if newYork.Confirmed {
		t.Fatal("New York must stay unconfirmed")
	}
	// soft fail: the coordinate itself is kept
	if newYork.Coordinate.Lat != 40.7 {
		t.Fatalf("out-of-fence coordinate must be kept, got %+v", newYork.Coordinate)
	}
}

func TestReverseLookupFailureKeepsCoordinate(t *testing.T) {
	primary := &fakeProvider{name: "primary", reverseErr: errors.New("timeout")}
	fallback := &fakeProvider{name: "fallback", reverseErr: errors.New("down")}
	r := newTestResolver(primary, fallback)

	resolved := r.ResolveFromCoordinate(context.Background(), Coordinate{Lat: 7.0, Lng: 80.0}, SourceMapClick)
	if resolved.Address != nil {
		t.Fatalf("expected nil address, got %v", *resolved.Address)
	}
	if !resolved.Confirmed {
		t.Fatal("in-fence coordinate must still confirm without an address")
	}
}

func TestCityShortcut(t *testing.T) {
	primary := &fakeProvider{name: "primary", reverseAddress: "Kandy, Central Province"}
	fallback := &fakeProvider{name: "fallback"}
	r := newTestResolver(primary, fallback)

	resolved, err := r.ResolveFromCity(context.Background(), "Kandy")
	if err != nil {
		t.Fatalf("city shortcut failed: %v", err)
	}
	if resolved.Source != SourceCityShortcut {
		t.Fatalf("expected city_shortcut source, got %s", resolved.Source)
	}
	if resolved.Coordinate.Lat != 7.8731 || resolved.Coordinate.Lng != 80.7718 {
		t.Fatalf("unexpected coordinate: %+v", resolved.Coordinate)
	}
	if !resolved.Confirmed {
		t.Fatal("Kandy must confirm")
	}

	if _, err := r.ResolveFromCity(context.Background(), "Atlantis"); !errors.Is(err, ErrUnknownCity) {
		t.Fatalf("expected ErrUnknownCity, got %v", err)
	}
}

func TestDeviceResolutionSuccess(t *testing.T) {
	primary := &fakeProvider{name: "primary", reverseAddress: "Galle Road, Colombo"}
	fallback := &fakeProvider{name: "fallback"}
	r := newTestResolver(primary, fallback)

	resolved := r.ResolveFromDevice(context.Background(), &fakePosition{coord: Coordinate{Lat: 6.9, Lng: 79.9}})
	if resolved.Source != SourceGPS {
		t.Fatalf("expected gps source, got %s", resolved.Source)
	}
	if !resolved.Confirmed {
		t.Fatal("in-fence device fix must confirm")
	}
}

func TestDeviceErrorFallsBackToAnchor(t *testing.T) {
	r := newTestResolver(&fakeProvider{name: "primary"}, &fakeProvider{name: "fallback"})

	resolved := r.ResolveFromDevice(context.Background(), &fakePosition{err: errors.New("permission denied")})
	if resolved.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %s", resolved.Source)
	}
	if resolved.Confirmed {
		t.Fatal("anchor substitution must be unconfirmed")
	}
	if resolved.Coordinate.Lat != 6.9271 || resolved.Coordinate.Lng != 79.8612 {
		t.Fatalf("expected anchor coordinate, got %+v", resolved.Coordinate)
	}
	if resolved.Address == nil || *resolved.Address != "Colombo, Sri Lanka" {
		t.Fatal("anchor address must be carried")
	}
}

func TestDeviceOutsideFenceFallsBackToAnchor(t *testing.T) {
	r := newTestResolver(&fakeProvider{name: "primary"}, &fakeProvider{name: "fallback"})

	// New York GPS fix: out of the service region entirely
	resolved := r.ResolveFromDevice(context.Background(), &fakePosition{coord: Coordinate{Lat: 40.7, Lng: -74.0}})
	if resolved.Source != SourceFallback || resolved.Confirmed {
		t.Fatalf("out-of-fence device fix must substitute the anchor, got %+v", resolved)
	}
}

func TestDeviceTimeoutFallsBackToAnchor(t *testing.T) {
	r := newTestResolver(&fakeProvider{name: "primary"}, &fakeProvider{name: "fallback"})

	start := time.Now()
	resolved := r.ResolveFromDevice(context.Background(), &fakePosition{
		coord: Coordinate{Lat: 6.9, Lng: 79.9},
		delay: time.Second,
	})
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("device wait must be bounded by the configured timeout")
	}
	if resolved.Source != SourceFallback {
		t.Fatalf("timeout must be treated as a device error, got %s", resolved.Source)
	}
}
