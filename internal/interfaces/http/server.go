// Package http provides the HTTP adapter for the application layer.
// Handlers translate requests into service calls and map the error taxonomy to status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/application/service"
)

// ActorHeader carries the acting identity. Authentication happens upstream.
const ActorHeader = "X-Actor-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

// Services are the application services exposed over HTTP
type Services struct {
	Templates  service.TemplateService
	Approvals  service.ApprovalService
	Documents  service.DocumentService
	Schedules  service.ScheduleService
	Identities service.IdentityService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	health     func() bool
	logger     Logger
}

// NewServer creates a new HTTP server with the given services.
// health reports readiness for /health and may be nil.
func NewServer(config ServerConfig, services Services, health func() bool, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		health:   health,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"actor_id", c.GetHeader(ActorHeader),
		)
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.health, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	{
		templates := api.Group("/templates")
		templates.POST("", h.CreateTemplate)
		templates.GET("", h.ListTemplates)
		templates.GET("/:id", h.GetTemplate)
		templates.PUT("/:id", h.UpdateTemplate)
		templates.DELETE("/:id", h.DeleteTemplate)
		templates.POST("/:id/steps", h.AddTemplateStep)
		templates.DELETE("/:id/steps/:order", h.RemoveTemplateStep)
		templates.POST("/:id/steps/:order/move", h.MoveTemplateStep)
		templates.POST("/:id/resolve", h.ResolveTemplate)

		documents := api.Group("/documents")
		documents.POST("/contracts", h.CreateContract)
		documents.POST("/schedules", h.CreateSchedule)
		documents.GET("", h.ListDocuments)
		documents.GET("/:id", h.GetDocument)
		documents.DELETE("/:id", h.DeleteDocument)
		documents.PUT("/:id/fields", h.UpdateContractFields)
		documents.GET("/:id/history", h.DocumentHistory)

		documents.POST("/:id/submit", h.Submit)
		documents.GET("/:id/approval", h.GetApproval)
		documents.GET("/:id/current-step", h.GetCurrentStep)
		documents.POST("/:id/steps/:order/sign", h.SignStep)
		documents.POST("/:id/steps/:order/unsign", h.UnsignStep)
		documents.POST("/:id/approve", h.Approve)
		documents.POST("/:id/reject", h.Reject)
		documents.POST("/:id/final-approve", h.FinalApprove)
		documents.POST("/:id/employee-sign", h.EmployeeSign)
		documents.POST("/:id/return", h.ReturnToAdmin)
		documents.POST("/:id/revise", h.Revise)

		documents.GET("/:id/grid", h.GetGrid)
		documents.GET("/:id/export", h.ExportSchedule)
		documents.POST("/:id/shifts", h.AddEntry)
		documents.PATCH("/:id/shifts", h.SaveEntries)
		documents.POST("/:id/shifts/apply", h.ApplyCode)
		documents.DELETE("/:id/shifts/:entryId", h.RemoveEntry)
		documents.POST("/:id/shifts/:entryId/recompute", h.Recompute)
		documents.POST("/:id/shifts/:entryId/mode", h.ToggleRowMode)
		documents.POST("/:id/creator-signature", h.SignAsCreator)
		documents.DELETE("/:id/creator-signature", h.ClearCreatorSignature)

		identities := api.Group("/identities")
		identities.GET("", h.ListIdentities)
		identities.GET("/:id", h.GetIdentity)
		identities.PUT("/:id/signature", h.UploadSignature)
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
