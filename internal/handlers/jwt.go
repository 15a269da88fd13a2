package handlers

import (
	"errors"
	"time"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/common"
	"feedboard-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const tokenLifetime = 30 * 24 * time.Hour

// ErrNoCredential means the request carried no bearer token
var ErrNoCredential = errors.New("no credential presented")

type JwtAuth struct {
	Secret string
}

func NewJwtAuth(secret string) *JwtAuth {
	return &JwtAuth{Secret: secret}
}

func (j *JwtAuth) GenerateToken(email string) (string, error) {
	claims := &common.JwtCustomClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.Secret))
}

// Middleware validates the bearer token when there is one. Requests
// without an Authorization header pass through and end up anonymous.
func (j *JwtAuth) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(j.Secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(common.JwtCustomClaims)
		},
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get(echo.HeaderAuthorization) == ""
		},
		ErrorHandler: func(c echo.Context, err error) error {
			c.Logger().Debugf("Rejected bearer token: %v", err)
			return apperr.Unauthorized("invalid_token", "Your session is invalid or expired, please sign in again")
		},
	})
}

func (j *JwtAuth) GetUserEmail(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return "", ErrNoCredential
	}
	claims, ok := token.Claims.(*common.JwtCustomClaims)
	if !ok || claims.Email == "" {
		return "", errors.New("token carries no email claim")
	}
	return claims.Email, nil
}

// ParseToken validates a token signed with the same secret, e.g. a
// password reset link
func (j *JwtAuth) ParseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(j.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// SignClaims signs arbitrary claims with the shared secret
func (j *JwtAuth) SignClaims(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.Secret))
}

// UserOracle maps the verified token to a stored account
type UserOracle struct {
	issuer common.JWTIssuer
	db     *gorm.DB
}

func NewUserOracle(issuer common.JWTIssuer, db *gorm.DB) *UserOracle {
	return &UserOracle{issuer: issuer, db: db}
}

func (o *UserOracle) GetUser(c echo.Context) (*authz.Identity, error) {
	email, err := o.issuer.GetUserEmail(c)
	if errors.Is(err, ErrNoCredential) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unauthorized("invalid_token", "Your session is invalid or expired, please sign in again")
	}

	user, err := models.GetUserByEmail(o.db.WithContext(c.Request().Context()), email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, apperr.Unauthorized("unknown_account", "This account no longer exists")
		}
		return nil, apperr.Upstream("load user", err)
	}

	return &authz.Identity{ID: user.ID, Email: user.Email}, nil
}
