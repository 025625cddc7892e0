// Package api provides the HTTP control-panel server for Phoenix.
// It uses Echo framework to serve REST endpoints and the WebSocket sync
// protocol that agents and panels use for real-time state.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "evalgo.org/phoenix/docs" // Import generated docs
	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/internal/config"
	"evalgo.org/phoenix/internal/dispatch"
	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/internal/storage"
	"evalgo.org/phoenix/internal/sweeper"
	"evalgo.org/phoenix/internal/validation"
	"evalgo.org/phoenix/internal/version"
)

// Server represents the Phoenix control-panel server.
type Server struct {
	echo       *echo.Echo
	storage    *storage.Storage
	config     *config.Config
	store      *rtstore.Store
	dispatcher *dispatch.Dispatcher
	sweeper    *sweeper.Sweeper
	archiver   *Archiver
	sync       *SyncHandler
	events     *EventHub
	jwt        *auth.JWTService
	validator  *validation.Validator
	authMiddle *auth.Middleware
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Server) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// New creates a new control-panel server instance.
func New(cfg *config.Config, store *storage.Storage) *Server {
	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	// Set custom error handler
	e.HTTPErrorHandler = HTTPErrorHandler

	// Realtime tree with the standard access rules
	rt := rtstore.New(rtstore.DefaultRules())

	jwtService := auth.NewJWTService(cfg)

	server := &Server{
		echo:       e,
		storage:    store,
		config:     cfg,
		store:      rt,
		dispatcher: dispatch.New(rt, store),
		sweeper:    sweeper.New(rt, store),
		archiver:   NewArchiver(rt, store),
		sync:       NewSyncHandler(rt),
		events:     NewEventHub(rt),
		jwt:        jwtService,
		validator:  validation.New(),
		authMiddle: auth.NewMiddleware(jwtService, cfg.Security.AuthEnabled),
	}

	// Seed the realtime tree with the durable server records
	if err := server.loadServersIntoStore(); err != nil {
		log.Printf("Warning: failed to seed servers into store: %v", err)
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// Store exposes the realtime tree, primarily for tests.
func (s *Server) Store() *rtstore.Store {
	return s.store
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Logger middleware
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// Recover middleware
	s.echo.Use(middleware.Recover())

	// Security headers middleware
	s.echo.Use(SecurityHeaders)

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Rate limiting
	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	// Content-Type validation middleware for API routes
	s.echo.Use(ValidateContentType)

	// Accept header validation middleware
	s.echo.Use(ValidateAcceptHeader)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/", s.healthCheck)

	// Swagger UI documentation (public - but API endpoints are still protected)
	s.echo.GET("/docs/*", echoSwagger.WrapHandler)

	// WebSocket sync protocol. The socket is authenticated once at upgrade;
	// every operation on it runs under that identity.
	s.echo.GET("/ws/sync", s.sync.Handle, s.authMiddle.RequireAuth)

	// Push-only change notifications for the panels
	s.echo.GET("/ws/events", s.events.Handle, s.authMiddle.RequireAuth)

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	// Authentication routes
	authRoutes := v1.Group("/auth")
	authRoutes.POST("/login", s.login)
	authRoutes.POST("/register", s.register, s.authMiddle.RequireAdmin)
	authRoutes.POST("/refresh", s.refresh)
	authRoutes.POST("/logout", s.logout, s.authMiddle.RequireAuth)
	authRoutes.GET("/me", s.me, s.authMiddle.RequireAuth)

	// User management routes
	users := v1.Group("/users")
	users.GET("", s.listUsers, s.authMiddle.RequireAdmin)
	users.GET("/:id", s.getUser, ValidateIDFormat, s.authMiddle.RequireAdmin)
	users.PUT("/:id", s.updateUser, ValidateIDFormat, s.authMiddle.RequireAdmin)
	users.DELETE("/:id", s.deleteUser, ValidateIDFormat, s.authMiddle.RequireAdmin)
	users.POST("/password", s.changePassword, s.authMiddle.RequireAuth)

	// Server routes. Reads are grant-filtered per user; provisioning is
	// admin only.
	servers := v1.Group("/servers")
	servers.Use(ValidateQueryParams)
	servers.GET("", s.listServers, s.authMiddle.RequireAuth)
	servers.GET("/:id", s.getServer, ValidateIDFormat, s.authMiddle.RequireAuth)
	servers.POST("", s.createServer, s.authMiddle.RequireAdmin)
	servers.PUT("/:id", s.updateServer, ValidateIDFormat, s.authMiddle.RequireAdmin)
	servers.DELETE("/:id", s.deleteServer, ValidateIDFormat, s.authMiddle.RequireAdmin)
	servers.POST("/:id/grants", s.grantAccess, ValidateIDFormat, s.authMiddle.RequireAdmin)
	servers.DELETE("/:id/grants/:userId", s.revokeAccess, ValidateIDFormat, s.authMiddle.RequireAdmin)
	servers.GET("/:id/jsonld", s.exportServer, ValidateIDFormat, s.authMiddle.RequireAuth)

	// Command routes
	servers.POST("/:id/commands", s.submitCommand, ValidateIDFormat, s.authMiddle.RequireAuth)
	servers.GET("/:id/commands", s.getServerCommands, ValidateIDFormat, s.authMiddle.RequireAuth)

	commands := v1.Group("/commands")
	commands.Use(ValidateQueryParams)
	commands.GET("", s.listCommands, s.authMiddle.RequireAuth)
	commands.GET("/:id", s.getCommand, ValidateIDFormat, s.authMiddle.RequireAuth)

	// Agent presence
	v1.GET("/agent/status", s.getAgentStatus, s.authMiddle.RequireAuth)

	// Statistics routes
	stats := v1.Group("/stats")
	stats.GET("", s.getStatistics, s.authMiddle.RequireAdmin)
	stats.GET("/commands", s.getCommandCounts, s.authMiddle.RequireAdmin)

	// JSON-LD export
	v1.GET("/export/jsonld", s.exportServers, s.authMiddle.RequireAdmin)

	// Database info
	v1.GET("/info", s.getDatabaseInfo, s.authMiddle.RequireAdmin)
}

// Start starts the HTTP server and the background workers.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	fmt.Printf("🚀 Starting Phoenix Control Panel\n")
	fmt.Printf("   Address: http://%s\n", addr)
	fmt.Printf("   Database: %s\n", s.config.CouchDB.Database)
	fmt.Printf("   Debug: %v\n", s.config.Server.Debug)
	fmt.Println()

	// Background workers: expire abandoned commands, archive terminal
	// commands and status changes into CouchDB.
	s.sweeper.Start()
	if err := s.archiver.Start(); err != nil {
		return fmt.Errorf("failed to start archiver: %w", err)
	}
	if err := s.events.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	// Configure server timeouts
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	// Start server
	if s.config.Server.TLSEnabled {
		return s.echo.StartTLS(addr, s.config.Server.TLSCert, s.config.Server.TLSKey)
	}

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	fmt.Println("\n🛑 Shutting down Phoenix Control Panel...")

	s.sweeper.Stop()
	s.archiver.Stop()
	s.events.Stop()

	// Shutdown Echo server
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	// Close storage
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("error closing storage: %w", err)
	}

	fmt.Println("✓ Server shutdown complete")
	return nil
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	// Get database info to verify connection
	info, err := s.storage.GetDatabaseInfo()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"error":   "database connection failed",
			"details": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "phoenix",
		"version":  version.Version,
		"database": info.DBName,
		"documents": map[string]interface{}{
			"total":   info.DocCount,
			"deleted": info.DocDelCount,
		},
		"uptime": info.InstanceStartTime,
	})
}
