package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adamscao/certchain/internal/api/handlers"
	"github.com/adamscao/certchain/internal/api/middleware"
	"github.com/adamscao/certchain/internal/certs"
	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/ratelimit"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	registry *prometheus.Registry,
	issuer *certs.Issuer,
	verifier *certs.Verifier,
	revoker *certs.Revoker,
	certRepo *repository.CertRepository,
	auditRepo *repository.AuditRepository,
	limiter ratelimit.Limiter,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", "error", err)
		_ = router.SetTrustedProxies(nil)
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(registry))

	// Create handlers
	certHandler := handlers.NewCertHandler(issuer, verifier, revoker, certRepo, auditRepo, logger)
	ledgerHandler := handlers.NewLedgerHandler(verifier)

	adminAuth := middleware.AdminAuth(cfg.Admin.Token, logger)
	verifyLimit := middleware.RateLimit(limiter, "verify", cfg.RateLimit.RequestsPerMinute, time.Minute, logger)

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Public endpoints
		public := v1.Group("/certificates")
		public.Use(verifyLimit)
		{
			public.POST("/verify", certHandler.VerifyCertificate)
			public.GET("/:id/verify", certHandler.VerifyCertificateByID)
		}

		// Admin endpoints (require admin token)
		admin := v1.Group("")
		admin.Use(adminAuth)
		{
			admin.POST("/certificates", certHandler.IssueCertificate)
			admin.GET("/certificates/:id", certHandler.GetCertificate)
			admin.POST("/certificates/:id/revoke", middleware.OperatorAuth(), certHandler.RevokeCertificate)
			admin.GET("/ledger/certificates", ledgerHandler.ListCertificates)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	return &Server{
		router: router,
		config: cfg,
	}
}

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
