package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/common"
	"feedboard-backend/internal/config"
	"feedboard-backend/internal/email"
	"feedboard-backend/internal/models"
	"feedboard-backend/internal/notifications"
	"feedboard-backend/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const passwordResetPurpose = "password_reset"

type AuthHandler struct {
	common.ServerState
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

type UpdateNameRequest struct {
	FirstName string `json:"first_name" validate:"required,max=80"`
	LastName  string `json:"last_name" validate:"max=80"`
}

// UserResponse is the signed in user together with their role
type UserResponse struct {
	*models.User
	Role models.Role `json:"role"`
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, jwt common.JWTIssuer, emailClient email.EmailClient, telegram *notifications.TelegramNotifier) *AuthHandler {
	return &AuthHandler{
		ServerState: common.ServerState{
			DB:          db,
			Config:      cfg,
			JwtIssuer:   jwt,
			EmailClient: emailClient,
			Telegram:    telegram,
		},
	}
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("invalid_request", "The request body could not be read")
	}
	return c.Validate(req)
}

func (h *AuthHandler) ManualSignUp(c echo.Context) error {
	c.Logger().Info("Received manual sign-up request")

	u := new(models.User)
	if err := bindAndValidate(c, u); err != nil {
		return err
	}

	u.Email = utils.NormalizeEmail(u.Email)
	u.AvatarURL = ""
	if err := utils.ValidateEmailAddress(u.Email); err != nil {
		var emailErr *utils.EmailValidationError
		if errors.As(err, &emailErr) {
			return apperr.Validation(emailErr.Code, emailErr.Message)
		}
		return apperr.Validation("email_invalid_format", "Invalid email format")
	}

	db := h.DB.WithContext(c.Request().Context())
	result := db.Create(u)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("email_taken", "A user with this email already exists")
	}
	if result.Error != nil {
		return apperr.Upstream("create user", result.Error)
	}

	if slices.Contains(h.Config.Auth.AdminEmails, u.Email) {
		if err := models.SeedAdminRoles(db, []string{u.ID}); err != nil {
			c.Logger().Errorf("Failed to grant admin role to %s: %v", u.ID, err)
		}
	}

	if h.EmailClient != nil {
		h.EmailClient.SendWelcomeEmail(u)
	}

	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return apperr.Upstream("generate token", err)
	}

	h.Telegram.SendAsync(fmt.Sprintf("New sign-up: %s", u.ID))

	return c.JSON(http.StatusCreated, map[string]string{"token": token})
}

func (h *AuthHandler) ManualSignIn(c echo.Context) error {
	c.Logger().Info("Received manual sign-in request")

	req := &SignInRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return err
	}

	u, err := models.GetUserByEmail(h.DB.WithContext(c.Request().Context()), utils.NormalizeEmail(req.Email))
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return apperr.Upstream("load user", err)
	}
	if u == nil || !u.CheckPassword(req.Password) {
		return apperr.Unauthorized("invalid_credentials", "Invalid email or password")
	}

	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return apperr.Upstream("generate token", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	c.Logger().Info("Received forgot password request")

	req := &ForgotPasswordRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return err
	}

	sent := map[string]string{"message": "If this email has an account, a reset link is on its way"}

	db := h.DB.WithContext(c.Request().Context())
	u, err := models.GetUserByEmail(db, utils.NormalizeEmail(req.Email))
	if errors.Is(err, models.ErrUserNotFound) {
		return c.JSON(http.StatusOK, sent)
	}
	if err != nil {
		return apperr.Upstream("load user", err)
	}

	jwtAuth, ok := h.JwtIssuer.(*JwtAuth)
	if !ok {
		return apperr.Upstream("password reset", errors.New("failed to access JWT configuration"))
	}
	baseURL := "https://" + h.Config.Server.DeployDomain

	// Resend a still valid token instead of minting a new one
	if existing, err := models.GetActiveToken(db, u.ID, models.TokenTypePasswordReset); err == nil && existing.IsValid() {
		if _, err := jwtAuth.ParseToken(existing.Token); err == nil {
			h.sendResetLink(u.Email, baseURL, existing.Token)
			return c.JSON(http.StatusOK, sent)
		}
	}

	tokenString, err := jwtAuth.SignClaims(jwt.MapClaims{
		"email_id": u.Email,
		"exp":      jwt.NewNumericDate(time.Now().Add(models.TokenExpirationDuration)),
		"iat":      jwt.NewNumericDate(time.Now()),
		"purpose":  passwordResetPurpose,
	})
	if err != nil {
		return apperr.Upstream("sign reset token", err)
	}

	resetToken := &models.Token{UserID: u.ID}
	if err := resetToken.CreateToken(db, models.TokenTypePasswordReset, tokenString); err != nil {
		return apperr.Upstream("persist reset token", err)
	}

	h.sendResetLink(u.Email, baseURL, tokenString)
	return c.JSON(http.StatusOK, sent)
}

func (h *AuthHandler) sendResetLink(toEmail, baseURL, token string) {
	if h.EmailClient == nil {
		return
	}
	h.EmailClient.SendPasswordResetEmail(toEmail, fmt.Sprintf("%s/reset-password?token=%s", baseURL, token))
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	c.Logger().Info("Received reset password request")

	req := &ResetPasswordRequest{}
	if err := bindAndValidate(c, req); err != nil {
		return err
	}
	tokenString := c.Param("token")
	if tokenString == "" {
		return apperr.Validation("reset_token_missing", "Missing token")
	}

	invalid := apperr.Unauthorized("reset_token_invalid", "This reset link is invalid or expired, request a new one")

	db := h.DB.WithContext(c.Request().Context())
	var stored models.Token
	if err := db.Where("token = ? AND token_type = ?", tokenString, models.TokenTypePasswordReset).First(&stored).Error; err != nil {
		return invalid
	}
	if stored.IsUsed {
		return apperr.Unauthorized("reset_token_used", "This reset link was already used, request a new one")
	}

	jwtAuth, ok := h.JwtIssuer.(*JwtAuth)
	if !ok {
		return apperr.Upstream("password reset", errors.New("failed to access JWT configuration"))
	}
	claims, err := jwtAuth.ParseToken(tokenString)
	if err != nil {
		c.Logger().Warnf("Failed to parse reset password token: %v", err)
		return invalid
	}
	if purpose, _ := claims["purpose"].(string); purpose != passwordResetPurpose {
		return invalid
	}
	emailID, _ := claims["email_id"].(string)

	u, err := models.GetUserByEmail(db, emailID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return invalid
		}
		return apperr.Upstream("load user", err)
	}

	hashedPassword, err := models.HashPassword(req.Password)
	if err != nil {
		return apperr.Upstream("hash password", err)
	}
	if err := db.Model(u).Update("hashed_password", hashedPassword).Error; err != nil {
		return apperr.Upstream("reset password", err)
	}

	if err := stored.MarkUsed(db); err != nil {
		c.Logger().Warnf("Failed to mark password reset token as used: %v", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Your password has been changed. You can now use it to log in."})
}

func (h *AuthHandler) currentUser(c echo.Context) (*models.User, authz.Authenticated, error) {
	auth, err := authz.Must(c)
	if err != nil {
		return nil, auth, err
	}
	user, err := models.GetUserByID(h.DB.WithContext(c.Request().Context()), auth.ID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, auth, apperr.Unauthorized("unknown_account", "This account no longer exists")
		}
		return nil, auth, apperr.Upstream("load user", err)
	}
	return user, auth, nil
}

func (h *AuthHandler) User(c echo.Context) error {
	user, auth, err := h.currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{User: user, Role: auth.Role})
}

func (h *AuthHandler) UpdateName(c echo.Context) error {
	user, auth, err := h.currentUser(c)
	if err != nil {
		return err
	}

	req := new(UpdateNameRequest)
	if err := bindAndValidate(c, req); err != nil {
		return err
	}

	err = h.DB.WithContext(c.Request().Context()).Model(user).Updates(map[string]interface{}{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}).Error
	if err != nil {
		return apperr.Upstream("update user", err)
	}
	user.FirstName = req.FirstName
	user.LastName = req.LastName

	return c.JSON(http.StatusOK, UserResponse{User: user, Role: auth.Role})
}
