package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 8 * time.Second

// MapboxProvider is the primary geocoder. It needs an access token; without
// one every call returns ErrNotConfigured and callers fall back.
type MapboxProvider struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewMapboxProvider creates the primary geocoding client.
func NewMapboxProvider(baseURL, token string, timeout time.Duration) *MapboxProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &MapboxProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (p *MapboxProvider) Name() string { return "mapbox" }

// Configured reports whether an access token is present.
func (p *MapboxProvider) Configured() bool {
	return p != nil && strings.TrimSpace(p.token) != ""
}

type mapboxResponse struct {
	Features []struct {
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"` // [lng, lat]
	} `json:"features"`
}

// ForwardSearch queries the Mapbox geocoding v5 endpoint.
func (p *MapboxProvider) ForwardSearch(ctx context.Context, query, regionHint string) ([]Candidate, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("access_token", p.token)
	params.Set("limit", "5")
	if regionHint != "" {
		params.Set("country", regionHint)
	}

	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		p.baseURL, url.PathEscape(query), params.Encode())

	var result mapboxResponse
	if err := p.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(result.Features))
	for _, f := range result.Features {
		if len(f.Center) != 2 {
			continue
		}
		candidates = append(candidates, Candidate{
			Coordinate:  Coordinate{Lat: f.Center[1], Lng: f.Center[0]},
			DisplayName: f.PlaceName,
		})
	}
	return candidates, nil
}

// ReverseLookup resolves a coordinate to an address string.
func (p *MapboxProvider) ReverseLookup(ctx context.Context, coord Coordinate) (string, error) {
	if !p.Configured() {
		return "", ErrNotConfigured
	}

	params := url.Values{}
	params.Set("access_token", p.token)
	params.Set("limit", "1")

	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%f,%f.json?%s",
		p.baseURL, coord.Lng, coord.Lat, params.Encode())

	var result mapboxResponse
	if err := p.get(ctx, endpoint, &result); err != nil {
		return "", err
	}

	if len(result.Features) == 0 || result.Features[0].PlaceName == "" {
		return "", ErrNoAddress
	}
	return result.Features[0].PlaceName, nil
}

func (p *MapboxProvider) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("mapbox request error: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return classifyRequestError(ctx, "mapbox", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("mapbox http error: status=%d body=<failed to read body: %v>", resp.StatusCode, readErr)
		}
		return fmt.Errorf("mapbox http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mapbox decode error: %w", err)
	}
	return nil
}
