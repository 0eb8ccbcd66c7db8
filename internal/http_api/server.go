package http_api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// CommandHandler turns an inbound chat message into a reply.
type CommandHandler interface {
	Handle(ctx context.Context, channel models.Channel, subscriberID, text string) (string, bool)
}

// Replier sends a reply back to the chat a message came from.
type Replier interface {
	Send(ctx context.Context, channel models.Channel, subscriberID, text string) error
}

// UpdateGuard filters out webhook updates that were already processed.
type UpdateGuard interface {
	First(ctx context.Context, updateID int64) (bool, error)
}

// Options configures the HTTP server. The webhook route is only served
// when WebhookSecret, Commands and Replier are all set.
type Options struct {
	Port           int
	Development    bool
	RequestTimeout time.Duration

	WebhookSecret string
	Commands      CommandHandler
	Replier       Replier
	Guard         UpdateGuard

	Metrics *metrics.Metrics
}

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	// logger is the logger instance
	logger *logger.Logger

	// router is the HTTP router
	router *gin.Engine
	// port is the port on which the server will listen
	port int

	// server is the underlying HTTP server
	server *http.Server

	// custos is the main application struct
	custos models.CustosI
	opts   Options

	// jobs tracks webhook updates processed after the response was sent
	jobs sync.WaitGroup
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(custos models.CustosI, opts Options, logger *logger.Logger) *HTTPServer {
	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	// Add CORS middleware
	router.Use(corsMiddleware())

	server := &HTTPServer{
		router: router,
		port:   opts.Port,
		custos: custos,
		opts:   opts,
		logger: logger,
	}

	// Define routes
	server.routes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%v", s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start the HTTP server: %w", err)
	}
	return nil
}

// Wait blocks until every accepted webhook update has been processed.
func (s *HTTPServer) Wait() {
	s.jobs.Wait()
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	if s.server == nil {
		s.Wait()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.Wait()

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
