// Package devserver is a stand-in storefront backend for local development and
// integration tests. It serves the login, provider exchange, and order endpoints
// the client talks to.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shopsync-dev/shopsync/internal/config"
)

// githubGrantTTL matches how long GitHub accepts an authorization code
const githubGrantTTL = 10 * time.Minute

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    config.DevServerConfig
	logger    zerolog.Logger
	validator *validator.Validate
	tokens    *TokenIssuer
	now       func() time.Time
}

// New creates a new server instance
func New(cfg config.DevServerConfig, zlog zerolog.Logger) (*Server, error) {
	db, err := initDatabase(cfg.DatabaseURL, zlog)
	if err != nil {
		return nil, err
	}

	tokens, err := NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	validate := validator.New()
	// Product ids arrive as numbers or strings; both must be non-empty once decoded
	if err := validate.RegisterValidation("productid", func(fl validator.FieldLevel) bool {
		return fl.Field().String() != ""
	}); err != nil {
		return nil, fmt.Errorf("failed to register validation: %w", err)
	}

	server := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: validate,
		tokens:    tokens,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if err := server.seed(); err != nil {
		return nil, err
	}

	server.setupRouter()

	return server, nil
}

// initDatabase opens and migrates the SQLite database
func initDatabase(path string, zlog zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=1",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	if err := db.AutoMigrate(&User{}, &Order{}, &OrderItem{}, &ShippingAddress{}, &GitHubGrant{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// seed creates the configured login user when it does not exist yet
func (s *Server) seed() error {
	if s.config.SeedEmail == "" || s.config.SeedPassword == "" {
		return nil
	}

	var count int64
	if err := s.db.Model(&User{}).Where("email = ?", strings.ToLower(s.config.SeedEmail)).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(s.config.SeedPassword)
	if err != nil {
		return err
	}
	user := &User{
		Email:        strings.ToLower(s.config.SeedEmail),
		PasswordHash: hash,
		Name:         s.config.SeedName,
		IsAdmin:      true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	s.logger.Info().Str("email", user.Email).Msg("Created seed user")
	return nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)

	// Stand-in for the GitHub authorize page
	s.router.GET("/dev/github/authorize", s.githubAuthorizeRedirect)
	s.router.POST("/dev/github/authorize", s.githubAuthorize)

	// Public auth endpoints
	s.router.POST("/api/users/login", s.login)
	s.router.POST("/api/auth/google", s.googleAuth)
	s.router.POST("/api/auth/github", s.githubAuth)

	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.tokens, s.logger))
	{
		api.GET("/users/profile", s.getProfile)
		api.POST("/orders/", s.createOrder)
		api.GET("/orders/:id", s.getOrder)
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "shopsync-devserver",
	})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close closes the database
func (s *Server) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Start serves until SIGINT/SIGTERM or ctx is done
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	if err := s.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing database")
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
