package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/logger"
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Auth         AuthConfig
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	handler    *Handler
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(cfg Config, handler *Handler) *Server {
	return &Server{
		config:  cfg,
		handler: handler,
	}
}

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler *Handler, authCfg AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		// Transfer and revert mutate balances (requires authentication)
		v1.POST("/transfers", Auth(authCfg), handler.CreateTransfer)
		v1.POST("/transactions/:id/revert", Auth(authCfg), handler.RevertTransaction)

		// Transaction queries (public read access)
		v1.GET("/transactions", handler.ListTransactions)
		v1.GET("/transactions/:id", handler.GetTransaction)

		// Balance queries (public read access)
		v1.GET("/balances/:address/:currency", handler.GetBalance)

		// Wallet provisioning (requires authentication)
		v1.POST("/wallets", Auth(authCfg), handler.RegisterWallet)

		// Chain tracking (requires authentication)
		v1.POST("/chain/transactions", Auth(authCfg), handler.RecordChainTransaction)
		v1.POST("/chain/sync", Auth(authCfg), handler.SyncChainState)
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(Recovery())
	router.Use(Logger())
	router.Use(SetupCORS())

	SetupRoutes(router, s.handler, s.config.Auth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
