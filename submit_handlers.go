package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (a *App) listMosquesHandler(c *gin.Context) {
	mosques, err := a.listApprovedMosques(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if mosques == nil {
		mosques = []Mosque{}
	}
	c.JSON(http.StatusOK, mosques)
}

func (a *App) mosqueDetailsHandler(c *gin.Context) {
	mosque, err := a.getApprovedMosque(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, mosque)
}

func (a *App) mosqueViewHandler(c *gin.Context) {
	a.counterHandler(c, "views")
}

func (a *App) mosqueUpvoteHandler(c *gin.Context) {
	a.counterHandler(c, "upvotes")
}

func (a *App) counterHandler(c *gin.Context, counter string) {
	id := c.Param("id")
	if id == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Missing mosque id"})
		return
	}

	value, err := a.incrementMosqueCounter(c.Request.Context(), id, counter)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, counter: value})
}

func (a *App) statesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"states": indiaStates})
}

// submitHandler is the submission intake pipeline: validate, gate the
// approved target on an admin session, resolve coordinates, normalize
// sessions and persist to the selected destination.
func (a *App) submitHandler(c *gin.Context) {
	var payload SubmissionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid submission payload"})
		return
	}

	if err := validateSubmissionPayload(payload); err != nil {
		writeAPIError(c, err)
		return
	}

	target := payload.Target
	if target == "" {
		target = "pending"
	}

	if target == "approved" {
		if _, err := a.adminSessionFromRequest(c); err != nil {
			writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Unauthorized"})
			return
		}
	} else if !a.checkRateLimit("submit:"+c.ClientIP(), submitRateLimitRequests, submitRateLimitWindow, time.Now()) {
		writeAPIError(c, &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many submissions, try again later"})
		return
	}

	resolution := a.resolveCoordinates(c.Request.Context(), payload)
	for _, attempt := range resolution.Attempts {
		a.log.Info("coordinate strategy produced no result", "strategy", attempt.Strategy, "reason", attempt.Reason)
	}
	if resolution.Coords != nil {
		a.log.Info("coordinates resolved", "strategy", resolution.Strategy, "pattern", resolution.Pattern)
	}

	sessions := normalizeSessions(payload.TaraweehDates)
	rec := buildSubmissionRecord(payload, resolution.Coords, sessions)

	if target == "approved" {
		id, err := a.insertApprovedMosque(c.Request.Context(), rec, sessions)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "mode": "approved", "submissionId": id})
		return
	}

	result, err := a.insertPendingSubmission(c.Request.Context(), rec, sessions)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	a.notifySubmissionReceived(rec)

	c.JSON(http.StatusOK, gin.H{"success": true, "mode": "pending", "submissionId": result.ID})
}
