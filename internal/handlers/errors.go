package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/authz"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail is the underlying cause, only shown to admins
	Detail string `json:"detail,omitempty"`
}

// HTTPErrorHandler renders errors as ErrorResponse. Upstream and
// unexpected failures are logged, which also reports them to Sentry.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := describeError(err, c)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(fmt.Errorf("%s %s: %w", c.Request().Method, c.Path(), err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		c.Logger().Warnf("Failed to write error response: %v", writeErr)
	}
}

func describeError(err error, c echo.Context) (int, ErrorResponse) {
	if appErr, ok := apperr.As(err); ok {
		body := ErrorResponse{Code: appErr.Code, Message: appErr.Message}
		if appErr.Kind == apperr.KindUpstream && appErr.Err != nil && authz.FromContext(c).IsAdmin() {
			body.Detail = appErr.Err.Error()
		}
		return appErr.Status(), body
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusBadRequest, ErrorResponse{
			Code:    "invalid_request",
			Message: describeValidation(validationErrs),
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok && m != "" {
			message = m
		}
		return httpErr.Code, ErrorResponse{Code: statusCode(httpErr.Code), Message: message}
	}

	body := ErrorResponse{Code: "internal_error", Message: "Something went wrong on our side"}
	if authz.FromContext(c).IsAdmin() {
		body.Detail = err.Error()
	}
	return http.StatusInternalServerError, body
}

func describeValidation(errs validator.ValidationErrors) string {
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "Invalid fields: " + strings.Join(fields, ", ")
}

// statusCode turns "Method Not Allowed" into "method_not_allowed"
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "http_error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
