package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func (a *App) createAdminSessionToken(session AdminSession) (string, error) {
	claims := jwt.MapClaims{
		"email": session.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(adminSessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyAdminSessionToken(tokenString string) (*AdminSession, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("invalid session payload")
	}
	return &AdminSession{Email: email}, nil
}

func (a *App) storeAuthenticateAdmin(ctx context.Context, email, password string) error {
	var passwordHash string
	var isActive bool
	err := a.db.QueryRowContext(ctx, `
		SELECT password_hash, is_active
		FROM admins
		WHERE email = $1
	`, email).Scan(&passwordHash, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid credentials"}
		}
		return err
	}
	if !isActive || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid credentials"}
	}
	return nil
}

func (a *App) startAdminSession(c *gin.Context, session AdminSession) error {
	token, err := a.createAdminSessionToken(session)
	if err != nil {
		return err
	}
	secure := strings.EqualFold(a.cfg.Env, "production")
	c.SetCookie(adminCookieName, token, int(adminSessionDuration.Seconds()), "/", "", secure, true)
	return nil
}

func (a *App) clearAdminSession(c *gin.Context) {
	secure := strings.EqualFold(a.cfg.Env, "production")
	c.SetCookie(adminCookieName, "", -1, "/", "", secure, true)
}

// adminSessionFromRequest reads and verifies the admin cookie without
// aborting the request; the submit handler uses it to gate the approved
// target per payload.
func (a *App) adminSessionFromRequest(c *gin.Context) (*AdminSession, error) {
	token, err := c.Cookie(adminCookieName)
	if err != nil {
		return nil, err
	}
	return a.verifyAdminSessionToken(token)
}

func (a *App) requireAdminSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := a.adminSessionFromRequest(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Admin session required"})
			c.Abort()
			return
		}
		c.Set("adminSession", *session)
		c.Next()
	}
}

func getAdminSession(c *gin.Context) (AdminSession, error) {
	value, ok := c.Get("adminSession")
	if !ok {
		return AdminSession{}, fmt.Errorf("missing session")
	}
	session, ok := value.(AdminSession)
	if !ok {
		return AdminSession{}, fmt.Errorf("invalid session")
	}
	return session, nil
}

func (a *App) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	bucket, ok := a.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		a.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	a.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

func (a *App) startRateLimiterCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
			}
		}
	}()
}

func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	for key, bucket := range a.rateBuckets {
		if now.Sub(bucket.start) >= submitRateLimitWindow {
			delete(a.rateBuckets, key)
		}
	}
	a.rateLimiterMu.Unlock()
}
