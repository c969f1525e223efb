package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const nominatimUserAgent = "FixPoint/1.0 booking-api"

// NominatimProvider is the fallback geocoder: public, unauthenticated,
// lower-quality results. Always available.
type NominatimProvider struct {
	baseURL string
	http    *http.Client
}

// NewNominatimProvider creates the fallback geocoding client.
func NewNominatimProvider(baseURL string, timeout time.Duration) *NominatimProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &NominatimProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (p *NominatimProvider) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type nominatimReverse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// ForwardSearch queries the Nominatim search endpoint.
func (p *NominatimProvider) ForwardSearch(ctx context.Context, query, regionHint string) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "5")
	if regionHint != "" {
		params.Set("countrycodes", strings.ToLower(regionHint))
	}

	endpoint := fmt.Sprintf("%s/search?%s", p.baseURL, params.Encode())

	var places []nominatimPlace
	if err := p.get(ctx, endpoint, &places); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(places))
	for _, place := range places {
		lat, latErr := strconv.ParseFloat(place.Lat, 64)
		lng, lngErr := strconv.ParseFloat(place.Lon, 64)
		if latErr != nil || lngErr != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Coordinate:  Coordinate{Lat: lat, Lng: lng},
			DisplayName: place.DisplayName,
		})
	}
	return candidates, nil
}

// ReverseLookup resolves a coordinate to an address string.
// Nominatim signals "nothing here" with an error field in a 200 body.
func (p *NominatimProvider) ReverseLookup(ctx context.Context, coord Coordinate) (string, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Lng, 'f', -1, 64))
	params.Set("format", "jsonv2")

	endpoint := fmt.Sprintf("%s/reverse?%s", p.baseURL, params.Encode())

	var result nominatimReverse
	if err := p.get(ctx, endpoint, &result); err != nil {
		return "", err
	}

	if result.Error != "" || result.DisplayName == "" {
		return "", ErrNoAddress
	}
	return result.DisplayName, nil
}

func (p *NominatimProvider) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("nominatim request error: %w", err)
	}
	req.Header.Set("User-Agent", nominatimUserAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return classifyRequestError(ctx, "nominatim", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("nominatim http error: status=%d body=<failed to read body: %v>", resp.StatusCode, readErr)
		}
		return fmt.Errorf("nominatim http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nominatim decode error: %w", err)
	}
	return nil
}
