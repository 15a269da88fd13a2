package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/avatar"
	"feedboard-backend/internal/common"
	"feedboard-backend/internal/config"
	"feedboard-backend/internal/email"
	"feedboard-backend/internal/feedback"
	"feedboard-backend/internal/handlers"
	"feedboard-backend/internal/models"
	"feedboard-backend/internal/notifications"
	"feedboard-backend/internal/storage"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	resend "github.com/resend/resend-go/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CustomValidator Source: https://echo.labstack.com/docs/request#validate-data
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type SentryLogger struct {
	echo.Logger
}

func (l *SentryLogger) Error(i ...interface{}) {
	if err, ok := i[0].(error); ok {
		handlers.CaptureError(err)
	} else {
		handlers.CaptureError(errors.New(fmt.Sprint(i...)))
	}
	l.Logger.Error(i...)
}

func (l *SentryLogger) Errorf(format string, args ...interface{}) {
	handlers.CaptureError(fmt.Errorf(format, args...))
	l.Logger.Errorf(format, args...)
}

type Server struct {
	common.ServerState
}

func New(cfg *config.Config) *Server {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Logger = &SentryLogger{Logger: e.Logger}
	e.Logger.SetLevel(log.DEBUG)
	e.HTTPErrorHandler = handlers.HTTPErrorHandler

	return &Server{
		common.ServerState{
			Echo:   e,
			Config: cfg,
		},
	}
}

func (s *Server) Initialize() error {
	if err := s.setupDatabase(); err != nil {
		return err
	}

	s.setupRedis()
	s.setupStorage()

	s.JwtIssuer = handlers.NewJwtAuth(s.Config.Auth.SessionSecret)

	s.setupEmailClient()
	if err := s.setupTelegram(); err != nil {
		return err
	}

	if err := s.runMigrations(); err != nil {
		return err
	}
	if err := s.seedAdmins(); err != nil {
		return err
	}

	s.setupRoutes()
	s.setupMetrics()

	// Keep last to avoid Recover middleware and panic if something goes wrong on init
	s.setupMiddleware()

	return nil
}

func (s *Server) setupDatabase() error {
	dsn := s.Config.Database.DSN
	if dsn == "" {
		return errors.New("DATABASE_DSN environment variable is required")
	}

	gormConfig := &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	// SQLite DSNs start with "file:", used by the test suites
	if strings.HasPrefix(dsn, "file:") {
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	s.DB = db
	return nil
}

func (s *Server) setupRedis() {
	url := s.Config.Database.RedisURI

	if url == "" {
		s.Echo.Logger.Warn("REDIS_URI not configured, the public feed won't be cached")
		s.Redis = nil
		return
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		s.Echo.Logger.Warnf("Failed to parse Redis URL: %v, the public feed won't be cached", err)
		s.Redis = nil
		return
	}

	s.Redis = redis.NewClient(opts)

	// Validate proper connection, but don't fail on it
	if err := s.Redis.Ping(context.Background()).Err(); err != nil {
		s.Echo.Logger.Warnf("Redis connection failed: %v, the public feed won't be cached", err)
		s.Redis = nil
	}
}

func (s *Server) setupStorage() {
	cfg := s.Config.Storage
	if cfg.Endpoint == "" {
		s.Echo.Logger.Warn("STORAGE_ENDPOINT not configured, avatar uploads will be disabled")
		return
	}

	store, err := storage.NewMinioStore(context.Background(), cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Bucket, cfg.UseSSL, s.Echo.Logger)
	if err != nil {
		s.Echo.Logger.Warnf("Object storage unavailable: %v, avatar uploads will be disabled", err)
		return
	}
	s.Storage = store
}

func (s *Server) setupEmailClient() {
	apiKey := s.Config.Resend.APIKey
	if apiKey == "" {
		s.Echo.Logger.Warn("RESEND_API_KEY not configured, email notifications will be disabled")
		return
	}

	resendClient := resend.NewClient(apiKey)
	s.EmailClient = email.NewResendEmailClient(resendClient,
		s.Config.Resend.DefaultSender,
		s.Echo.Logger)
}

func (s *Server) setupTelegram() error {
	telegram, err := notifications.NewTelegramNotifier(s.Config.Telegram.BotToken, s.Config.Telegram.ChatID, s.Echo.Logger)
	if err != nil {
		return err
	}
	s.Telegram = telegram
	return nil
}

func (s *Server) runMigrations() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.Token{},
		&models.UserRole{},
		&models.Feedback{},
	)
}

// seedAdmins grants the admin role to the configured accounts that exist
func (s *Server) seedAdmins() error {
	if len(s.Config.Auth.AdminEmails) == 0 {
		return nil
	}

	var ids []string
	err := s.DB.Model(&models.User{}).Where("email IN ?", s.Config.Auth.AdminEmails).Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("failed to look up admin accounts: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := models.SeedAdminRoles(s.DB, ids); err != nil {
		return fmt.Errorf("failed to seed admin roles: %w", err)
	}
	s.Echo.Logger.Infof("Granted admin role to %d account(s)", len(ids))
	return nil
}

func (s *Server) setupMiddleware() {
	s.Echo.Use(middleware.CORS())
	s.Echo.Use(middleware.Recover())
	// Try to add prometheus middleware, but don't panic if already registered (e.g., in tests)
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && err.Error() == "duplicate metrics collector registration attempted" {
				s.Echo.Logger.Warn("Prometheus middleware already registered, skipping")
			} else {
				panic(r)
			}
		}
	}()
	s.Echo.Use(echoprometheus.NewMiddleware("feedboard_backend"))
}

func (s *Server) setupMetrics() {
	// Only register Redis metrics if Redis is available
	if s.Redis == nil {
		return
	}

	err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "redis",
			Name:      "connected_clients",
			Help:      "The number of clients currently connected to Redis",
		},
		func() float64 {
			connectedClientsRaw := s.Redis.InfoMap(context.Background()).Item("Clients", "connected_clients")

			connectedClients, err := strconv.ParseFloat(connectedClientsRaw, 64)
			if err != nil {
				return math.NaN()
			}
			return connectedClients
		},
	))
	var alreadyRegistered prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &alreadyRegistered) {
		s.Echo.Logger.Warnf("Failed to register Redis metrics: %v", err)
	}
}

func (s *Server) setupRoutes() {
	handlers.SetupSentry(s.Echo, s.Config)

	var cache feedback.FeedCache
	if s.Redis != nil {
		cache = feedback.NewRedisFeedCache(s.Redis, s.Config.Cache.PublicFeedTTL, s.Echo.Logger)
	}
	notifier := notifications.NewFeedbackNotifier(s.Telegram, s.EmailClient, "https://"+s.Config.Server.DeployDomain)

	auth := handlers.NewAuthHandler(s.DB, s.Config, s.JwtIssuer, s.EmailClient, s.Telegram)
	feedbacks := handlers.NewFeedbackHandler(feedback.NewService(s.DB, cache, notifier, s.Echo.Logger))
	avatars := handlers.NewAvatarHandler(avatar.NewService(s.DB, s.Storage, s.Echo.Logger))

	// Every feedback route resolves the caller up front; anonymous is fine
	identify := []echo.MiddlewareFunc{
		s.JwtIssuer.Middleware(),
		authz.Guard(handlers.NewUserOracle(s.JwtIssuer, s.DB), s.DB),
	}

	api := s.Echo.Group("/api")

	// Public API endpoints
	api.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	api.GET("/metrics", echoprometheus.NewHandler())

	api.POST("/sign-up", auth.ManualSignUp)
	api.POST("/sign-in", auth.ManualSignIn)
	api.POST("/forgot-password", auth.ForgotPassword)
	api.PATCH("/reset-password/:token", auth.ResetPassword)

	api.GET("/feedbacks", feedbacks.List, identify...)
	api.GET("/feedbacks/:id", feedbacks.Get, identify...)
	api.GET("/avatars/:userId", avatars.Download)

	// Protected API routes group
	protectedAPI := api.Group("/auth", append(identify, authz.RequireAuthenticated())...)

	protectedAPI.GET("/user", auth.User)
	protectedAPI.PUT("/update-user-name", auth.UpdateName)

	protectedAPI.GET("/feedbacks/mine", feedbacks.ListMine)
	protectedAPI.POST("/feedbacks", feedbacks.Submit)
	protectedAPI.PUT("/feedbacks/:id", feedbacks.Revise)
	protectedAPI.POST("/feedbacks/:id/approve", feedbacks.Approve)
	protectedAPI.POST("/feedbacks/:id/reject", feedbacks.Reject)

	protectedAPI.POST("/avatar", avatars.Upload)
	protectedAPI.DELETE("/avatar", avatars.Delete)

	// Debug endpoints - only enabled when ENABLE_DEBUG_ENDPOINTS=true
	if s.Config.Server.Debug {
		api.GET("/jwt-debug", func(c echo.Context) error {
			email := c.QueryParam("email")
			token, err := s.JwtIssuer.GenerateToken(email)
			if err != nil {
				return c.String(http.StatusInternalServerError, "Failed to generate token")
			}
			return c.JSON(http.StatusOK, map[string]string{
				"email": email,
				"token": token,
			})
		})
	}
}

func (s *Server) Start() error {
	serverURL := s.Config.Server.Host + ":" + s.Config.Server.Port

	if s.Config.Server.TLS.Enabled {
		if _, err := os.Stat(s.Config.Server.TLS.CertFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS certificate file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		if _, err := os.Stat(s.Config.Server.TLS.KeyFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS key file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		return s.Echo.StartTLS(serverURL, s.Config.Server.TLS.CertFile, s.Config.Server.TLS.KeyFile)
	}

	return s.Echo.Start(serverURL)
}
