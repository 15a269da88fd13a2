package handlers

import (
	"net/http"
	"strconv"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/avatar"

	"github.com/labstack/echo/v4"
)

type AvatarHandler struct {
	service *avatar.Service
}

func NewAvatarHandler(service *avatar.Service) *AvatarHandler {
	return &AvatarHandler{service: service}
}

// Upload accepts a multipart "file" field
func (h *AvatarHandler) Upload(c echo.Context) error {
	auth, err := authz.Must(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("avatar_missing", "Attach the image in a \"file\" field")
	}
	file, err := header.Open()
	if err != nil {
		return apperr.Validation("avatar_unreadable", "Could not read the uploaded file")
	}
	defer file.Close()

	url, err := h.service.Upload(c.Request().Context(), auth.ID, header.Header.Get(echo.HeaderContentType), file)
	if err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindValidation {
			avatarRejections.WithLabelValues(appErr.Code).Inc()
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"avatar_url": url})
}

// Download proxies the stored avatar so the bucket can stay private
func (h *AvatarHandler) Download(c echo.Context) error {
	body, info, err := h.service.Open(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	defer body.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	if info.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	return c.Stream(http.StatusOK, info.ContentType, body)
}

func (h *AvatarHandler) Delete(c echo.Context) error {
	auth, err := authz.Must(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), auth.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
