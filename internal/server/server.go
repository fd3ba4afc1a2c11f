// Package server exposes the receipt wallet over a JSON HTTP API.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zombor/receipt-wallet/internal/advisor"
	"github.com/zombor/receipt-wallet/internal/capture"
	"github.com/zombor/receipt-wallet/internal/pipeline"
	"github.com/zombor/receipt-wallet/internal/receipt"
	"github.com/zombor/receipt-wallet/internal/report"
	"github.com/zombor/receipt-wallet/internal/session"
)

// maxUploadSize bounds scan uploads (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Deps are the components the API serves
type Deps struct {
	Receipts *receipt.Store
	Pipeline *pipeline.Orchestrator
	Images   capture.Storage
	Advisor  *advisor.Advisor
	Session  *session.Session
}

// Server handles HTTP requests for the wallet
type Server struct {
	deps      Deps
	basicAuth BasicAuth
	engine    *gin.Engine
	now       func() time.Time
	export    func(io.Writer, receipt.List) error
}

// NewServer creates a new Server
func NewServer(deps Deps, basicAuth BasicAuth) *Server {
	s := &Server{
		deps:      deps,
		basicAuth: basicAuth,
		engine:    gin.New(),
		now:       time.Now,
		export:    report.WriteExcel,
	}
	s.engine.MaxMultipartMemory = maxUploadSize
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.MaxAge = time.Hour

	s.engine.Use(gin.Recovery(), requestLogger(), cors.New(config))

	api := s.engine.Group("/api")
	if s.basicAuth.Username != "" || s.basicAuth.Password != "" {
		api.Use(gin.BasicAuthForRealm(gin.Accounts{s.basicAuth.Username: s.basicAuth.Password}, "Receipt Wallet"))
	}
	{
		api.GET("/scan", s.handleGetScan)
		api.POST("/scan", s.handleScan)
		api.POST("/scan/save", s.handleSaveScan)
		api.DELETE("/scan", s.handleDiscardScan)

		api.GET("/receipts", s.handleListReceipts)
		api.GET("/receipts/:id", s.handleGetReceipt)
		api.GET("/receipts/:id/image", s.handleGetReceiptImage)
		api.DELETE("/receipts/:id", s.handleDeleteReceipt)

		api.GET("/stats", s.handleStats)
		api.GET("/export", s.handleExport)

		api.GET("/chat", s.handleGreeting)
		api.POST("/chat", s.handleChat)

		api.GET("/session", s.handleGetSession)
		api.GET("/session/login", s.handleLoginURL)
		api.POST("/session", s.handleSignIn)
		api.DELETE("/session", s.handleSignOut)
		api.PUT("/session/profile", s.handleUpdateProfile)

		api.GET("/theme", s.handleGetTheme)
		api.PUT("/theme", s.handleSetTheme)
	}
}

// requestLogger logs each request through slog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.engine)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}
