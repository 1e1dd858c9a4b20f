package main

import (
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/config"
	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/domain/bulk"
	"github.com/rcm/rcm/internal/domain/denial"
	"github.com/rcm/rcm/internal/domain/edi"
	"github.com/rcm/rcm/internal/domain/report"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/insight"
	"github.com/rcm/rcm/internal/platform/metrics"
	"github.com/rcm/rcm/internal/platform/middleware"
)

const version = "0.1.0"

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.ResolvedLogFormat() == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func ediConfig(cfg *config.Config) edi.Config {
	usage := "P"
	if !cfg.IsProduction() {
		usage = "T"
	}
	return edi.Config{SenderID: cfg.EDISenderID, ReceiverID: cfg.EDIReceiverID, Usage: usage}
}

// authMiddleware validates bearer tokens. In development, requests without a
// token run as an admin dev-user.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	strict := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(strict)
	}
	return strict
}

// newServer wires every domain onto one echo instance. pool may be nil in
// tests that never reach a repository.
func newServer(cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if cfg.MetricsEnabled {
		e.Use(middleware.Metrics(m))
	}
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	// 837 batches and 835 files are the largest bodies we accept
	e.Use(echomw.BodyLimit("4M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Company-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1",
		authMiddleware(cfg),
		db.CompanyMiddleware(cfg.DefaultCompany),
		middleware.RateLimit(rateLimitCfg),
	)

	// Audit log; other domains record through it
	auditSvc := audit.NewService(audit.NewRepoPG(pool), m, logger)
	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)

	// EDI
	ediSvc := edi.NewService(ediConfig(cfg),
		edi.NewTransactionRepoPG(pool),
		edi.NewEligibilityRepoPG(pool),
		edi.NewSimulatedClearinghouse(cfg.EDIReceiverID),
		m, logger)
	edi.NewHandler(ediSvc).RegisterRoutes(apiV1)

	// Denial triage and appeals
	insightClient := insight.NewClient(insight.Config{
		BaseURL: cfg.InsightBaseURL,
		APIKey:  cfg.InsightAPIKey,
		Timeout: cfg.InsightTimeout,
	}, m, logger)
	denialSvc := denial.NewService(denial.NewRepoPG(pool), insightClient, auditSvc, m, logger)
	denial.NewHandler(denialSvc).RegisterRoutes(apiV1)

	// Bulk operations
	bulkSvc := bulk.NewService(bulk.NewRepoPG(pool), auditSvc, m, logger)
	bulk.NewHandler(bulkSvc).RegisterRoutes(apiV1)

	// Reports
	reportSvc := report.NewService(report.NewRepoPG(pool), cfg.ReportMaxRows, m, logger)
	report.NewHandler(reportSvc).RegisterRoutes(apiV1)

	return e
}
