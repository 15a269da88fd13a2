package common

import (
	"feedboard-backend/internal/config"
	"feedboard-backend/internal/email"
	"feedboard-backend/internal/notifications"
	"feedboard-backend/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type JwtCustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type JWTIssuer interface {
	GenerateToken(email string) (string, error)
	// Middleware validates bearer tokens when present and lets
	// anonymous requests through untouched.
	Middleware() echo.MiddlewareFunc
	GetUserEmail(c echo.Context) (string, error)
}

// ServerState holds the clients constructed once at startup and handed
// to every handler.
type ServerState struct {
	Echo        *echo.Echo
	Config      *config.Config
	DB          *gorm.DB
	JwtIssuer   JWTIssuer
	Redis       *redis.Client
	EmailClient email.EmailClient
	Telegram    *notifications.TelegramNotifier
	Storage     storage.ObjectStore
}
