package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// GeocodeCandidate is one forward-geocoding result. Coordinates are kept as
// the provider's raw strings and validated by the caller.
type GeocodeCandidate struct {
	Lat string
	Lon string
}

// Geocoder abstraction for free-text address lookup
type Geocoder interface {
	Search(ctx context.Context, query string) ([]GeocodeCandidate, error)
}

// MapboxGeocoder implements Geocoder using Mapbox API v6
type MapboxGeocoder struct {
	AccessToken string
	Client      *http.Client
}

func (g *MapboxGeocoder) Search(ctx context.Context, query string) ([]GeocodeCandidate, error) {
	if g.AccessToken == "" {
		return nil, errors.New("mapbox access token missing")
	}

	u := fmt.Sprintf("https://api.mapbox.com/search/geocode/v6/forward?q=%s&access_token=%s&limit=3", url.QueryEscape(query), g.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mapbox error (%d): %s", resp.StatusCode, string(body))
	}

	var data struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	candidates := make([]GeocodeCandidate, 0, len(data.Features))
	for _, feat := range data.Features {
		if len(feat.Geometry.Coordinates) < 2 {
			continue
		}
		// GeoJSON order is [lng, lat]
		candidates = append(candidates, GeocodeCandidate{
			Lat: strconv.FormatFloat(feat.Geometry.Coordinates[1], 'f', -1, 64),
			Lon: strconv.FormatFloat(feat.Geometry.Coordinates[0], 'f', -1, 64),
		})
	}
	return candidates, nil
}

// NominatimGeocoder implements Geocoder using OSM Nominatim
// CAUTION: Requires User-Agent and has strict rate limits (1 req/sec)
type NominatimGeocoder struct {
	UserAgent string
	Client    *http.Client
	mu        sync.Mutex
	lastCall  time.Time
}

func (g *NominatimGeocoder) Search(ctx context.Context, query string) ([]GeocodeCandidate, error) {
	g.mu.Lock()
	elapsed := time.Since(g.lastCall)
	if elapsed < time.Second {
		time.Sleep(time.Second - elapsed)
	}
	g.lastCall = time.Now()
	g.mu.Unlock()

	u := fmt.Sprintf("https://nominatim.openstreetmap.org/search?format=jsonv2&q=%s&limit=3", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error: %d", resp.StatusCode)
	}

	var data []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	candidates := make([]GeocodeCandidate, 0, len(data))
	for _, entry := range data {
		candidates = append(candidates, GeocodeCandidate{Lat: entry.Lat, Lon: entry.Lon})
	}
	return candidates, nil
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) Search(ctx context.Context, query string) ([]GeocodeCandidate, error) {
	candidates, err := g.Primary.Search(ctx, query)
	if err != nil || len(candidates) == 0 {
		return g.Secondary.Search(ctx, query)
	}
	return candidates, nil
}
