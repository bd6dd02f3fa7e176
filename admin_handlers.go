package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (a *App) adminLoginHandler(c *gin.Context) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid login payload"})
		return
	}
	payload.Email = strings.TrimSpace(payload.Email)

	if err := a.authenticateAdmin(c.Request.Context(), payload.Email, payload.Password); err != nil {
		writeAPIError(c, err)
		return
	}

	if err := a.startAdminSession(c, AdminSession{Email: payload.Email}); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": payload.Email})
}

func (a *App) adminLogoutHandler(c *gin.Context) {
	a.clearAdminSession(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *App) adminSessionHandler(c *gin.Context) {
	session, err := a.adminSessionFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "email": session.Email})
}

func (a *App) adminPendingHandler(c *gin.Context) {
	pending, err := a.listPendingSubmissions(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if pending == nil {
		pending = []PendingSubmission{}
	}
	c.JSON(http.StatusOK, pending)
}

func (a *App) adminApproveHandler(c *gin.Context) {
	mosque, err := a.approvePendingSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}

	session, _ := getAdminSession(c)
	a.log.Info("submission approved", "mosque_id", mosque.ID, "admin", session.Email)

	c.JSON(http.StatusOK, gin.H{"success": true, "mosque": mosque})
}

func (a *App) adminRejectHandler(c *gin.Context) {
	id := c.Param("id")
	if err := a.rejectPendingSubmission(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}

	session, _ := getAdminSession(c)
	a.log.Info("submission rejected", "submission_id", id, "admin", session.Email)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *App) adminApprovedHandler(c *gin.Context) {
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

func (a *App) adminDeleteApprovedHandler(c *gin.Context) {
	if err := a.deleteApprovedMosque(c.Request.Context(), c.Param("id")); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *App) adminStatsHandler(c *gin.Context) {
	stats, err := a.loadDashboardStats(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *App) adminAnalyticsHandler(c *gin.Context) {
	sortBy := strings.TrimSpace(c.Query("sort"))
	if sortBy == "" {
		sortBy = "views"
	}
	if !containsString(analyticsSorts, sortBy) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Sort must be views or upvotes"})
		return
	}

	mosques, err := a.listRankedMosques(c.Request.Context(), sortBy)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if mosques == nil {
		mosques = []Mosque{}
	}
	c.JSON(http.StatusOK, gin.H{"sort": sortBy, "mosques": mosques})
}

func (a *App) adminExportHandler(c *gin.Context) {
	format := strings.TrimSpace(c.Query("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Format must be csv or pdf"})
		return
	}

	mosques, err := a.listApprovedMosques(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	stamp := time.Now().UTC().Format("2006-01-02")
	switch format {
	case "pdf":
		data, err := buildDirectoryPDF(mosques, stamp)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="mosques-%s.pdf"`, stamp))
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		data, err := buildDirectoryCSV(mosques)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="mosques-%s.csv"`, stamp))
		c.Data(http.StatusOK, "text/csv", []byte(data))
	}
}
