package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubGeocoder struct {
	candidates []GeocodeCandidate
	err        error
	queries    []string
}

func (g *stubGeocoder) Search(ctx context.Context, query string) ([]GeocodeCandidate, error) {
	g.queries = append(g.queries, query)
	return g.candidates, g.err
}

const validSubmission = `{
	"name": "Masjid-e-Noor",
	"address": "12 Charminar Road",
	"city": "Hyderabad",
	"state": "Telangana",
	"googleMapsLink": "https://www.google.com/maps/@17.3616,78.4747,17z",
	"sweet_type": "Sheer Khurma",
	"distribution_time": "After Isha",
	"crowd_level": "High",
	"taraweehDates": ["", "2026-03-20", "2026-03-27"]
}`

func TestSubmitHandlerRejectsMalformedJSON(t *testing.T) {
	_, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_payload")
}

func TestSubmitHandlerRejectsMissingFields(t *testing.T) {
	app, router := newTestServer(t)

	inserted := false
	app.insertPendingSubmission = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error) {
		inserted = true
		return pendingInsertResult{}, nil
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(`{"name":"Masjid","city":"Delhi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing_fields")
	assert.Contains(t, w.Body.String(), missingFieldsMessage)
	assert.False(t, inserted)
}

func TestSubmitHandlerRejectsUnknownCrowdLevel(t *testing.T) {
	_, router := newTestServer(t)

	payload := `{"name":"Masjid","address":"Street 1","city":"Delhi","state":"Delhi","sweet_type":"Dates","crowd_level":"Packed"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_crowd_level")
}

func TestSubmitHandlerPendingFlow(t *testing.T) {
	app, router := newTestServer(t)

	var capturedRec SubmissionRecord
	var capturedSessions []TaraweehSession
	app.insertPendingSubmission = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error) {
		capturedRec = rec
		capturedSessions = sessions
		return pendingInsertResult{ID: rec.ID, Strategy: "pending_with_end_date"}, nil
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(validSubmission))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeJSONBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "pending", body["mode"])
	assert.Equal(t, capturedRec.ID, body["submissionId"])

	// coordinates extracted from the map link, no geocoder round trip
	if assert.NotNil(t, capturedRec.Coords) {
		assert.InDelta(t, 17.3616, capturedRec.Coords.Latitude, 0.0001)
		assert.InDelta(t, 78.4747, capturedRec.Coords.Longitude, 0.0001)
	}
	assert.Empty(t, app.geocoder.(*stubGeocoder).queries)

	// blank dates dropped, numbering stays contiguous
	if assert.Len(t, capturedSessions, 2) {
		assert.Equal(t, "2026-03-20", capturedSessions[0].EndDate)
		assert.Equal(t, 1, capturedSessions[0].SessionNumber)
		assert.Equal(t, "2026-03-27", capturedSessions[1].EndDate)
		assert.Equal(t, 2, capturedSessions[1].SessionNumber)
	}

	if assert.NotNil(t, capturedRec.FirstEndDate) {
		assert.Equal(t, "2026-03-20", *capturedRec.FirstEndDate)
	}
	if assert.NotNil(t, capturedRec.CrowdLevel) {
		assert.Equal(t, "High", *capturedRec.CrowdLevel)
	}
}

func TestSubmitHandlerDuplicateResubmissionCreatesTwoRecords(t *testing.T) {
	app, router := newTestServer(t)

	var ids []string
	app.insertPendingSubmission = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error) {
		ids = append(ids, rec.ID)
		return pendingInsertResult{ID: rec.ID}, nil
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(validSubmission))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	if assert.Len(t, ids, 2) {
		assert.NotEqual(t, ids[0], ids[1])
	}
}

func TestSubmitHandlerApprovedTargetRequiresSession(t *testing.T) {
	app, router := newTestServer(t)

	inserted := false
	app.insertApprovedMosque = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error) {
		inserted = true
		return rec.ID, nil
	}

	payload := strings.Replace(validSubmission, `"taraweehDates"`, `"target": "approved", "taraweehDates"`, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, inserted)
}

func TestSubmitHandlerApprovedTargetWithSession(t *testing.T) {
	app, router := newTestServer(t)

	var insertedID string
	app.insertApprovedMosque = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error) {
		insertedID = rec.ID
		return rec.ID, nil
	}

	payload := strings.Replace(validSubmission, `"taraweehDates"`, `"target": "approved", "taraweehDates"`, 1)

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPost, "/api/submit", payload)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeJSONBody(t, w)
	assert.Equal(t, "approved", body["mode"])
	assert.Equal(t, insertedID, body["submissionId"])
}

func TestSubmitHandlerRateLimitsPendingSubmissions(t *testing.T) {
	app, router := newTestServer(t)
	app.insertPendingSubmission = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error) {
		return pendingInsertResult{ID: rec.ID}, nil
	}

	for i := 0; i < submitRateLimitRequests; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(validSubmission))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(validSubmission))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")
}

func TestSubmitHandlerPersistsEvenWhenCoordinatesUnresolved(t *testing.T) {
	app, router := newTestServer(t)
	app.geocoder = &stubGeocoder{candidates: []GeocodeCandidate{}}

	var capturedRec SubmissionRecord
	app.insertPendingSubmission = func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error) {
		capturedRec = rec
		return pendingInsertResult{ID: rec.ID, Strategy: "pending_with_end_date"}, nil
	}

	payload := `{"name":"Masjid","address":"Unknown Lane","city":"Delhi","state":"Delhi","sweet_type":"Dates"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, capturedRec.Coords)
}

func TestCounterHandlers(t *testing.T) {
	app, router := newTestServer(t)

	var capturedID, capturedCounter string
	app.incrementMosqueCounter = func(ctx context.Context, id, counter string) (int, error) {
		capturedID = id
		capturedCounter = counter
		return 42, nil
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/mosques/m1/view", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "m1", capturedID)
	assert.Equal(t, "views", capturedCounter)
	body := decodeJSONBody(t, w)
	assert.Equal(t, float64(42), body["views"])

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/mosques/m1/upvote", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "upvotes", capturedCounter)
}

func TestCounterHandlerUnknownMosque(t *testing.T) {
	app, router := newTestServer(t)
	app.incrementMosqueCounter = func(ctx context.Context, id, counter string) (int, error) {
		return 0, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Mosque not found"}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/mosques/missing/view", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMosquesHandlerReturnsEmptySlice(t *testing.T) {
	app, router := newTestServer(t)
	app.listApprovedMosques = func(ctx context.Context) ([]Mosque, error) {
		return nil, nil
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/mosques", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestStatesHandler(t *testing.T) {
	_, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/states", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Telangana")
	assert.Contains(t, w.Body.String(), "Delhi")
}

func TestHealthz(t *testing.T) {
	_, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
