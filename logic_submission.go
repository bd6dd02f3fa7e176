package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	strategyLinkPattern    = "link_pattern"
	strategyLinkRedirect   = "link_redirect"
	strategyAddressGeocode = "address_geocode"
)

// resolutionAttempt records why one strategy produced no coordinates.
type resolutionAttempt struct {
	Strategy string
	Reason   string
}

// coordinateResolution carries the outcome of the full strategy chain.
// Coords is nil when every strategy failed; Attempts keeps the failure
// trail so tests and logs can inspect each strategy's reason.
type coordinateResolution struct {
	Coords   *Coordinates
	Strategy string
	Pattern  string
	Attempts []resolutionAttempt
}

func validateSubmissionPayload(payload SubmissionPayload) error {
	required := []string{payload.Name, payload.Address, payload.City, payload.State, payload.SweetType}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			return &apiError{Status: 400, Code: "missing_fields", Message: missingFieldsMessage}
		}
	}

	if payload.CrowdLevel != "" && !containsString(crowdLevels, payload.CrowdLevel) {
		return &apiError{Status: 400, Code: "invalid_crowd_level", Message: "Crowd level must be Low, Medium or High"}
	}

	if payload.Target != "" && !containsString(submissionTargets, payload.Target) {
		return &apiError{Status: 400, Code: "invalid_payload", Message: "Target must be pending or approved"}
	}

	return nil
}

// normalizeSessions drops empty date entries and numbers the rest
// contiguously from 1 in input order.
func normalizeSessions(dates []string) []TaraweehSession {
	sessions := make([]TaraweehSession, 0, len(dates))
	for _, date := range dates {
		if strings.TrimSpace(date) == "" {
			continue
		}
		sessions = append(sessions, TaraweehSession{
			EndDate:       date,
			SessionNumber: len(sessions) + 1,
		})
	}
	return sessions
}

// resolveCoordinates runs the ordered strategy chain: direct pattern
// extraction from the link, then the link's redirect chain, then a
// free-text geocode of the address. The first hit wins; failures degrade
// to a nil result and never abort the submission.
func (a *App) resolveCoordinates(ctx context.Context, payload SubmissionPayload) coordinateResolution {
	resolution := coordinateResolution{}

	link := strings.TrimSpace(payload.GoogleMapsLink)
	if link != "" {
		if coords, pattern := extractCoordinates(link); coords != nil {
			resolution.Coords = coords
			resolution.Strategy = strategyLinkPattern
			resolution.Pattern = pattern
			return resolution
		}
		resolution.Attempts = append(resolution.Attempts, resolutionAttempt{
			Strategy: strategyLinkPattern,
			Reason:   "no recognized coordinate pattern in link",
		})

		coords, pattern, err := a.resolveMapLinkRemote(ctx, link)
		if coords != nil {
			resolution.Coords = coords
			resolution.Strategy = strategyLinkRedirect
			resolution.Pattern = pattern
			return resolution
		}
		resolution.Attempts = append(resolution.Attempts, resolutionAttempt{
			Strategy: strategyLinkRedirect,
			Reason:   err.Error(),
		})
	}

	query := fmt.Sprintf("%s, %s, %s", payload.Address, payload.City, payload.State)
	candidates, err := a.geocoder.Search(ctx, query)
	if err != nil {
		resolution.Attempts = append(resolution.Attempts, resolutionAttempt{
			Strategy: strategyAddressGeocode,
			Reason:   err.Error(),
		})
		return resolution
	}
	if len(candidates) == 0 {
		resolution.Attempts = append(resolution.Attempts, resolutionAttempt{
			Strategy: strategyAddressGeocode,
			Reason:   "no results",
		})
		return resolution
	}

	coords, ok := parseCoordinatePair(candidates[0].Lat, candidates[0].Lon)
	if !ok {
		resolution.Attempts = append(resolution.Attempts, resolutionAttempt{
			Strategy: strategyAddressGeocode,
			Reason:   fmt.Sprintf("invalid candidate %q,%q", candidates[0].Lat, candidates[0].Lon),
		})
		return resolution
	}

	resolution.Coords = coords
	resolution.Strategy = strategyAddressGeocode
	return resolution
}

// buildSubmissionRecord normalizes a validated payload into the shape the
// destination tables share. FirstEndDate feeds the denormalized column on
// the primary pending table.
func buildSubmissionRecord(payload SubmissionPayload, coords *Coordinates, sessions []TaraweehSession) SubmissionRecord {
	rec := SubmissionRecord{
		ID:        uuid.NewString(),
		Name:      payload.Name,
		Address:   payload.Address,
		City:      payload.City,
		State:     payload.State,
		Coords:    coords,
		SweetType: payload.SweetType,
	}
	if payload.DistributionTime != "" {
		value := payload.DistributionTime
		rec.DistributionTime = &value
	}
	if payload.CrowdLevel != "" {
		value := payload.CrowdLevel
		rec.CrowdLevel = &value
	}
	if len(sessions) > 0 {
		value := sessions[0].EndDate
		rec.FirstEndDate = &value
	}
	return rec
}
