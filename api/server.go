package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kindred-inc/kindred-api/external/alerts"
	"github.com/kindred-inc/kindred-api/insights"
	"github.com/kindred-inc/kindred-api/mailer"
	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/store"
)

var log = logrus.StandardLogger()

// Server is the API server. All handlers hang off this struct; it owns no
// request state beyond the injected collaborators.
type Server struct {
	store         store.KindredStore
	notifier      mailer.Notifier
	alerts        alerts.Publisher
	insights      insights.Generator
	registry      *Registry
	exportLimiter *ExportLimiter
	jwtSecret     []byte
	signingSecret []byte
	traceMode     bool

	httpServer *http.Server
}

type ServerConfig struct {
	Store         store.KindredStore
	Notifier      mailer.Notifier
	Alerts        alerts.Publisher
	Insights      insights.Generator
	ExportLimiter *ExportLimiter
	JWTSecret     []byte
	SigningSecret []byte
	TraceMode     bool
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		alerts:        cfg.Alerts,
		insights:      cfg.Insights,
		registry:      NewRegistry(),
		exportLimiter: cfg.ExportLimiter,
		jwtSecret:     cfg.JWTSecret,
		signingSecret: cfg.SigningSecret,
		traceMode:     cfg.TraceMode,
	}
}

// Run starts the server. It blocks until the listener fails.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes broadcast connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.registry.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.DumpRequest)
	r.Use(s.observeRequests)

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", metricsHandler())

	r.POST("/api/v1/auth/login", s.login)

	apiRoute := r.Group("/api/v1")

	consentRoute := apiRoute.Group("/consent")
	{
		// parent-facing, reached through emailed links; no login
		consentRoute.POST("/request", s.requestConsent)
		consentRoute.GET("/verify/:code", s.verifyConsentCode)
		consentRoute.POST("/approve/:code", s.approveConsent)
		consentRoute.POST("/deny/:code", s.denyConsent)
		consentRoute.POST("/revoke", s.revokeConsent)

		// staff-facing
		consentRoute.GET("/status/:studentID", s.authorized(schema.RoleTeacher, schema.RoleAdmin), s.consentStatus)
		consentRoute.GET("/audit/:studentID", s.authorized(schema.RoleTeacher, schema.RoleAdmin), s.consentAudit)
		consentRoute.POST("/resend/:recordID", s.authorized(schema.RoleTeacher, schema.RoleAdmin), s.resendConsent)
		consentRoute.POST("/renewals", s.authorized(schema.RoleAdmin), s.issueRenewal)
	}

	renewalRoute := apiRoute.Group("/renewals")
	{
		renewalRoute.GET("/:code", s.getRenewal)
		renewalRoute.POST("/:code/approve", s.approveRenewal)
		renewalRoute.POST("/:code/deny", s.denyRenewal)
	}

	schoolRoute := apiRoute.Group("/schools", s.authorized(schema.RoleTeacher, schema.RoleAdmin))
	{
		schoolRoute.GET("/:schoolID/consents", s.listSchoolConsents)
		schoolRoute.GET("/:schoolID/consents/export/csv", s.exportSchoolConsentsCSV)
		schoolRoute.GET("/:schoolID/insights", s.schoolInsights)
	}

	postRoute := apiRoute.Group("/posts")
	{
		postRoute.GET("", s.listPosts)
		postRoute.GET("/stream", s.streamPosts)
		postRoute.POST("", s.authorized(schema.RoleStudent, schema.RoleTeacher, schema.RoleAdmin), s.createPost)
		postRoute.POST("/:id/heart", s.heartPost)
	}

	tokenRoute := apiRoute.Group("/tokens")
	{
		tokenRoute.POST("/award", s.authorized(schema.RoleTeacher, schema.RoleAdmin), s.awardTokens)
		tokenRoute.POST("/redeem", s.authorized(schema.RoleStudent, schema.RoleTeacher, schema.RoleAdmin), s.redeemTokens)
		tokenRoute.GET("/balance", s.authorized(schema.RoleStudent, schema.RoleTeacher, schema.RoleAdmin), s.tokenBalance)
	}

	claimRoute := apiRoute.Group("/claim-codes")
	{
		claimRoute.POST("", s.authorized(schema.RoleTeacher, schema.RoleAdmin), s.issueClaimCode)
		claimRoute.POST("/redeem", s.redeemClaimCode)
	}

	return r
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.store.Ping(); err != nil {
		abortWithEncoding(c, http.StatusServiceUnavailable, errorInternalServer, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
