package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/middleware"
	v1routes "github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/routes"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/logging"
)

// multipartOverhead is allowed on top of the largest accepted upload for
// form fields and part headers
const multipartOverhead = 1 << 20

// Config represents API server configuration
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Environment     string
	// MaxUploadSize caps the request body; zero disables the cap
	MaxUploadSize int64
}

// DefaultConfig returns timeouts suited to large uploads
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		ReadTimeout:     5 * time.Minute,
		WriteTimeout:    time.Minute,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		Environment:     "development",
	}
}

// Server represents the API server
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(config Config, container *v1routes.ServiceContainer, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)

	// Set Gin mode based on environment
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogging(logger))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if config.MaxUploadSize > 0 {
		router.Use(bodyLimit(config.MaxUploadSize + multipartOverhead))
	}

	v1routes.RegisterRoutes(router, container)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "audio-diarizer",
			"endpoints": gin.H{
				"health":     "/health",
				"metrics":    "/metrics",
				"enrichment": "/ollama/status",
				"transcribe": "/transcribe",
			},
		})
	})

	httpServer := &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		config:     config,
		router:     router,
		httpServer: httpServer,
		logger:     logger,
	}
}

// bodyLimit stops oversized bodies before multipart parsing spools them
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			middleware.HandleError(c, errors.NewPayloadTooLargeError(apperrors.ErrFileTooLarge.Message()))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("API server listening",
		zap.String("address", listener.Addr().String()),
		zap.String("environment", s.config.Environment))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("API server shutdown complete")
	return nil
}

// Router returns the Gin router (useful for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
