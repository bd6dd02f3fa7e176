package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	adminCookieName            = "taraweeh_admin_session"
	adminSessionDuration       = 24 * time.Hour
	submitRateLimitRequests    = 8
	submitRateLimitWindow      = 5 * time.Minute
	rateLimiterCleanupInterval = time.Minute
	externalHTTPTimeout        = 10 * time.Second
	maxRedirectBodyBytes       = 512 * 1024
	devCORSOriginLocalhost     = "http://localhost:3000"
	devCORSOriginLoopback      = "http://127.0.0.1:3000"

	missingCoordinatesMessage = "Could not determine the mosque's location. Please include a map link or a more precise address."
	missingFieldsMessage      = "Missing required fields"
)

var (
	crowdLevels       = []string{"Low", "Medium", "High"}
	submissionTargets = []string{"pending", "approved"}
	analyticsSorts    = []string{"views", "upvotes"}

	indiaStates = []string{
		"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh",
		"Delhi", "Goa", "Gujarat", "Haryana", "Himachal Pradesh", "Jammu and Kashmir",
		"Jharkhand", "Karnataka", "Kerala", "Madhya Pradesh", "Maharashtra",
		"Manipur", "Meghalaya", "Mizoram", "Nagaland", "Odisha", "Punjab",
		"Rajasthan", "Sikkim", "Tamil Nadu", "Telangana", "Tripura", "Uttar Pradesh",
		"Uttarakhand", "West Bengal",
	}
)

type Config struct {
	Addr                   string
	Env                    string
	DatabaseURL            string
	PublicBaseURL          string
	AppSigningSecret       string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	GeocoderProvider       string
	MapboxAccessToken      string
	NominatimUserAgent     string
	ResendAPIKey           string
	NotifyEmailTo          string
	MailerFromAddresses    map[string]string
}

// Coordinates is a validated latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type TaraweehSession struct {
	EndDate       string `json:"taraweeh_end_date"`
	SessionNumber int    `json:"session_number"`
}

type Mosque struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	City             string            `json:"city"`
	State            string            `json:"state"`
	Latitude         float64           `json:"latitude"`
	Longitude        float64           `json:"longitude"`
	SweetType        string            `json:"sweet_type"`
	DistributionTime *string           `json:"distribution_time"`
	CrowdLevel       *string           `json:"crowd_level"`
	Views            int               `json:"views"`
	Upvotes          int               `json:"upvotes"`
	CreatedAt        string            `json:"created_at"`
	ApprovedAt       string            `json:"approved_at"`
	Sessions         []TaraweehSession `json:"taraweeh_sessions"`
}

type PendingSubmission struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	City             string            `json:"city"`
	State            string            `json:"state"`
	Latitude         *float64          `json:"latitude"`
	Longitude        *float64          `json:"longitude"`
	SweetType        string            `json:"sweet_type"`
	DistributionTime *string           `json:"distribution_time"`
	CrowdLevel       *string           `json:"crowd_level"`
	TaraweehEndDate  *string           `json:"taraweeh_end_date"`
	Status           string            `json:"status"`
	CreatedAt        string            `json:"created_at"`
	Sessions         []TaraweehSession `json:"taraweeh_sessions"`
}

// SubmissionPayload is the raw submit request body.
type SubmissionPayload struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	City             string   `json:"city"`
	State            string   `json:"state"`
	GoogleMapsLink   string   `json:"googleMapsLink"`
	SweetType        string   `json:"sweet_type"`
	DistributionTime string   `json:"distribution_time"`
	CrowdLevel       string   `json:"crowd_level"`
	TaraweehDates    []string `json:"taraweehDates"`
	Target           string   `json:"target"`
}

// SubmissionRecord is a validated payload plus resolved coordinates,
// ready for insertion into one of the destination tables.
type SubmissionRecord struct {
	ID               string
	Name             string
	Address          string
	City             string
	State            string
	Coords           *Coordinates
	SweetType        string
	DistributionTime *string
	CrowdLevel       *string
	FirstEndDate     *string
}

type AdminSession struct {
	Email string `json:"email"`
}

type DashboardStats struct {
	ApprovedCount int      `json:"approved"`
	PendingCount  int      `json:"pending"`
	TotalViews    int      `json:"views"`
	TotalUpvotes  int      `json:"upvotes"`
	Recent        []Mosque `json:"recent"`
}

type pendingInsertResult struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
}

type rateBucket struct {
	start time.Time
	count int
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

type App struct {
	cfg        *Config
	db         *sql.DB
	log        *slog.Logger
	geocoder   Geocoder
	mailer     *Mailer
	httpClient *http.Client

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	// test hooks for handlers
	insertApprovedMosque     func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error)
	insertPendingSubmission  func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error)
	listApprovedMosques      func(ctx context.Context) ([]Mosque, error)
	getApprovedMosque        func(ctx context.Context, id string) (*Mosque, error)
	incrementMosqueCounter   func(ctx context.Context, id, counter string) (int, error)
	deleteApprovedMosque     func(ctx context.Context, id string) error
	listPendingSubmissions   func(ctx context.Context) ([]PendingSubmission, error)
	approvePendingSubmission func(ctx context.Context, id string) (*Mosque, error)
	rejectPendingSubmission  func(ctx context.Context, id string) error
	loadDashboardStats       func(ctx context.Context) (*DashboardStats, error)
	listRankedMosques        func(ctx context.Context, sortBy string) ([]Mosque, error)
	authenticateAdmin        func(ctx context.Context, email, password string) error
}

func main() {
	if err := loadDotEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		panic(err)
	}

	httpClient := &http.Client{Timeout: externalHTTPTimeout}

	var geocoder Geocoder
	mapbox := &MapboxGeocoder{AccessToken: cfg.MapboxAccessToken, Client: httpClient}
	nominatim := &NominatimGeocoder{UserAgent: cfg.NominatimUserAgent, Client: httpClient}

	switch cfg.GeocoderProvider {
	case "mapbox":
		geocoder = mapbox
	case "nominatim":
		geocoder = nominatim
	default:
		geocoder = &FallbackGeocoder{Primary: nominatim, Secondary: mapbox}
	}

	var mailProvider MailProvider
	if cfg.ResendAPIKey != "" {
		mailProvider = NewResendProvider(cfg.ResendAPIKey)
		logger.Info("mailer initialized", "provider", "resend")
	} else {
		mailProvider = NewLogProvider(logger)
		logger.Info("mailer initialized", "provider", "log")
	}
	mailClient := NewMailer(mailProvider, cfg.MailerFromAddresses[mailProvider.Name()])

	app := &App{
		cfg:         cfg,
		db:          db,
		log:         logger,
		geocoder:    geocoder,
		mailer:      mailClient,
		httpClient:  httpClient,
		rateBuckets: make(map[string]rateBucket),
	}
	app.initStoreHooks()

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	app.startRateLimiterCleanup(cleanupCtx, rateLimiterCleanupInterval)

	logger.Info("runtime configuration", "env", cfg.Env, "addr", cfg.Addr, "geocoder", cfg.GeocoderProvider)

	if err := app.runMigrations(ctx); err != nil {
		panic(err)
	}

	if err := app.bootstrapAdmin(ctx); err != nil {
		panic(err)
	}

	router := app.buildRouter()

	app.log.Info("starting taraweeh finder API", "addr", cfg.Addr)
	if err := router.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

func (a *App) initStoreHooks() {
	a.insertApprovedMosque = a.storeInsertApprovedMosque
	a.insertPendingSubmission = a.storeInsertPendingSubmission
	a.listApprovedMosques = a.storeListApprovedMosques
	a.getApprovedMosque = a.storeGetApprovedMosque
	a.incrementMosqueCounter = a.storeIncrementMosqueCounter
	a.deleteApprovedMosque = a.storeDeleteApprovedMosque
	a.listPendingSubmissions = a.storeListPendingSubmissions
	a.approvePendingSubmission = a.storeApprovePendingSubmission
	a.rejectPendingSubmission = a.storeRejectPendingSubmission
	a.loadDashboardStats = a.storeLoadDashboardStats
	a.listRankedMosques = a.storeListRankedMosques
	a.authenticateAdmin = a.storeAuthenticateAdmin
}

func (a *App) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/mosques", a.listMosquesHandler)
		api.GET("/mosques/:id", a.mosqueDetailsHandler)
		api.POST("/mosques/:id/view", a.mosqueViewHandler)
		api.POST("/mosques/:id/upvote", a.mosqueUpvoteHandler)
		api.POST("/submit", a.submitHandler)
		api.GET("/states", a.statesHandler)

		api.POST("/admin/login", a.adminLoginHandler)
		api.POST("/admin/logout", a.adminLogoutHandler)
		api.GET("/admin/session", a.adminSessionHandler)

		admin := api.Group("/admin")
		admin.Use(a.requireAdminSession())
		{
			admin.GET("/pending", a.adminPendingHandler)
			admin.POST("/pending/:id/approve", a.adminApproveHandler)
			admin.POST("/pending/:id/reject", a.adminRejectHandler)
			admin.GET("/approved", a.adminApprovedHandler)
			admin.DELETE("/approved/:id", a.adminDeleteApprovedHandler)
			admin.GET("/stats", a.adminStatsHandler)
			admin.GET("/analytics", a.adminAnalyticsHandler)
			admin.GET("/export", a.adminExportHandler)
		}
	}

	return r
}

func loadConfig() (*Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	publicBase := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if publicBase == "" {
		publicBase = "https://taraweehfinder.org"
	}
	publicBase = strings.TrimRight(publicBase, "/")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:                   valueOrDefault("API_ADDR", ":8080"),
		Env:                    env,
		DatabaseURL:            databaseURL,
		PublicBaseURL:          publicBase,
		AppSigningSecret:       secret,
		BootstrapAdminEmail:    strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL")),
		BootstrapAdminPassword: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
		GeocoderProvider:       strings.TrimSpace(os.Getenv("GEOCODER_PROVIDER")),
		MapboxAccessToken:      strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")),
		NominatimUserAgent:     valueOrDefault("NOMINATIM_USER_AGENT", "TaraweehFinder-API/1.0"),
		ResendAPIKey:           strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		NotifyEmailTo:          strings.TrimSpace(os.Getenv("NOTIFY_EMAIL_TO")),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "noreply@mail.taraweehfinder.org"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "noreply@taraweehfinder.local"),
		},
	}

	return cfg, nil
}

func loadDotEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), "\"")
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.Join("migrations", file))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) bootstrapAdmin(ctx context.Context) error {
	email := a.cfg.BootstrapAdminEmail
	password := a.cfg.BootstrapAdminPassword
	if email == "" || password == "" {
		a.log.Info("bootstrap admin not configured")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO admins (email, password_hash, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (email)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			is_active = TRUE,
			updated_at = NOW()
	`, email, string(hash))
	if err != nil {
		return err
	}

	a.log.Info("bootstrap admin ensured", "email", email)
	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
