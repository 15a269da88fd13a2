package handlers

import (
	"encoding/json"
	"net/http"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/feedback"
	"feedboard-backend/internal/models"
	"feedboard-backend/internal/utils"

	"github.com/labstack/echo/v4"
)

type FeedbackHandler struct {
	service *feedback.Service
}

func NewFeedbackHandler(service *feedback.Service) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

// List returns every record the requester may see, newest first. The
// unfiltered anonymous feed is served from cache when possible.
func (h *FeedbackHandler) List(c echo.Context) error {
	rc := authz.FromContext(c)
	filter, err := feedback.ParseStatusFilter(c.QueryParam("status"), rc)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	cache := h.service.Cache()
	_, anonymous := rc.(authz.Anonymous)
	cacheable := cache != nil && anonymous && filter == nil

	if cacheable {
		if payload, ok := cache.Get(ctx); ok {
			return c.JSONBlob(http.StatusOK, payload)
		}
	}

	views, err := h.service.List(ctx, rc, filter)
	if err != nil {
		return err
	}

	if !cacheable {
		return c.JSON(http.StatusOK, views)
	}

	payload, err := json.Marshal(views)
	if err != nil {
		return err
	}
	cache.Set(ctx, payload)
	return c.JSONBlob(http.StatusOK, payload)
}

func (h *FeedbackHandler) ListMine(c echo.Context) error {
	auth, err := authz.Must(c)
	if err != nil {
		return err
	}
	// Authors may filter their own records on any status
	filter, err := utils.ParseEnumList(c.QueryParam("status"), models.AllFeedbackStatuses)
	if err != nil {
		return apperr.Validation("invalid_status_filter", "Unknown status in filter: "+err.Error())
	}

	views, err := h.service.ListMine(c.Request().Context(), auth, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (h *FeedbackHandler) Get(c echo.Context) error {
	view, err := h.service.Get(c.Request().Context(), authz.FromContext(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *FeedbackHandler) Submit(c echo.Context) error {
	auth, err := authz.Must(c)
	if err != nil {
		return err
	}

	content := new(models.FeedbackContent)
	if err := bindAndValidate(c, content); err != nil {
		return err
	}

	view, err := h.service.Submit(c.Request().Context(), auth, *content)
	if err != nil {
		return err
	}
	feedbackSubmissions.Inc()
	return c.JSON(http.StatusCreated, view)
}

func (h *FeedbackHandler) Revise(c echo.Context) error {
	auth, err := authz.Must(c)
	if err != nil {
		return err
	}

	content := new(models.FeedbackContent)
	if err := bindAndValidate(c, content); err != nil {
		return err
	}

	view, err := h.service.Revise(c.Request().Context(), auth, c.Param("id"), *content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *FeedbackHandler) Approve(c echo.Context) error {
	return h.moderate(c, models.DecisionApprove)
}

func (h *FeedbackHandler) Reject(c echo.Context) error {
	return h.moderate(c, models.DecisionReject)
}

func (h *FeedbackHandler) moderate(c echo.Context, decision models.Decision) error {
	view, err := h.service.Moderate(c.Request().Context(), authz.FromContext(c), c.Param("id"), decision)
	if err != nil {
		return err
	}
	moderationDecisions.WithLabelValues(string(decision)).Inc()
	return c.JSON(http.StatusOK, view)
}
