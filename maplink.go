package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
)

// Map services encode coordinates in several URL shapes. Patterns are tried
// in order; a match whose numbers fail validation does not stop the scan.
var coordinatePatterns = []struct {
	Name string
	re   *regexp.Regexp
}{
	{"query_pair", regexp.MustCompile(`[?&]q=(-?[0-9][0-9.]*),(-?[0-9][0-9.]*)`)},
	{"at_segment", regexp.MustCompile(`@(-?[0-9][0-9.]*),(-?[0-9][0-9.]*)`)},
	{"marker_pair", regexp.MustCompile(`!3d(-?[0-9][0-9.]*)!4d(-?[0-9][0-9.]*)`)},
	{"ll_pair", regexp.MustCompile(`[?&]ll=(-?[0-9][0-9.]*),(-?[0-9][0-9.]*)`)},
	{"query_encoded", regexp.MustCompile(`[?&]query=(-?[0-9][0-9.]*)%2C(-?[0-9][0-9.]*)`)},
	{"json_latlng", regexp.MustCompile(`"lat"\s*:\s*(-?[0-9][0-9.]*)\s*,\s*"lng"\s*:\s*(-?[0-9][0-9.]*)`)},
	{"json_center", regexp.MustCompile(`"center"\s*:\s*\{\s*"lat"\s*:\s*(-?[0-9][0-9.]*)\s*,\s*"lng"\s*:\s*(-?[0-9][0-9.]*)`)},
}

// parseCoordinatePair validates a candidate latitude/longitude string pair.
func parseCoordinatePair(latRaw, lngRaw string) (*Coordinates, bool) {
	lat, errLat := strconv.ParseFloat(latRaw, 64)
	lng, errLng := strconv.ParseFloat(lngRaw, 64)
	if errLat != nil || errLng != nil {
		return nil, false
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return nil, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, false
	}
	return &Coordinates{Latitude: lat, Longitude: lng}, true
}

// extractCoordinates scans text (a map link URL or a response body) for an
// embedded coordinate pair. Returns the matched pattern name for logging.
func extractCoordinates(text string) (*Coordinates, string) {
	for _, pattern := range coordinatePatterns {
		matches := pattern.re.FindAllStringSubmatch(text, -1)
		for _, match := range matches {
			if coords, ok := parseCoordinatePair(match[1], match[2]); ok {
				return coords, pattern.Name
			}
		}
	}
	return nil, ""
}

// resolveMapLinkRemote follows a map link's redirect chain (short links
// redirect to canonical URLs that carry coordinates) and re-runs pattern
// extraction against the final URL, then against the response body.
func (a *App) resolveMapLinkRemote(ctx context.Context, link string) (*Coordinates, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	if coords, pattern := extractCoordinates(finalURL); coords != nil {
		return coords, "final_url:" + pattern, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRedirectBodyBytes))
	if err != nil {
		return nil, "", err
	}
	if coords, pattern := extractCoordinates(string(body)); coords != nil {
		return coords, "body:" + pattern, nil
	}

	return nil, "", fmt.Errorf("no coordinates in resolved link")
}
