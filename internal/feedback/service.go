package feedback

import (
	"context"
	"errors"
	"slices"
	"time"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/models"
	"feedboard-backend/internal/utils"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Notifier is told about submissions and moderation outcomes
type Notifier interface {
	FeedbackSubmitted(f *models.Feedback)
	FeedbackModerated(f *models.Feedback, decision models.Decision)
}

type Service struct {
	db       *gorm.DB
	cache    FeedCache
	notifier Notifier
	logger   echo.Logger
	now      func() time.Time
}

// NewService wires the feedback service. cache and notifier may be nil.
func NewService(db *gorm.DB, cache FeedCache, notifier Notifier, logger echo.Logger) *Service {
	return &Service{
		db:       db,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Cache returns the anonymous feed cache, nil when disabled
func (s *Service) Cache() FeedCache {
	return s.cache
}

// ParseStatusFilter validates a `status` query value. Only admins may ask
// for statuses that aren't publicly visible.
func ParseStatusFilter(raw string, rc authz.RequestContext) ([]models.FeedbackStatus, error) {
	statuses, err := utils.ParseEnumList(raw, models.AllFeedbackStatuses)
	if err != nil {
		return nil, apperr.Validation("invalid_status_filter", "Unknown status in filter: "+err.Error())
	}
	if rc.IsAdmin() {
		return statuses, nil
	}
	for _, status := range statuses {
		if !slices.Contains(models.PublicFeedbackStatuses, status) {
			return nil, apperr.Forbidden("status_filter_admin_only", "Only admins can filter on status "+string(status))
		}
	}
	return statuses, nil
}

// scoped are the store results for one request, one slice per scope
type scoped struct {
	approved []models.Feedback
	preview  []models.Feedback
	owner    []models.Feedback
	admin    []models.Feedback
}

// merge shapes every scope and merges them for the requester
func (sc scoped) merge(rc authz.RequestContext) []View {
	return MergeFeedbackList(
		resolveAll(sc.approved, rc),
		resolveAll(sc.preview, rc),
		shape(sc.owner, func(f *models.Feedback) View { return NewOwnerView(f) }),
		shape(sc.admin, func(f *models.Feedback) View { return NewAdminView(f) }),
	)
}

func resolveAll(records []models.Feedback, rc authz.RequestContext) []View {
	views := make([]View, 0, len(records))
	for i := range records {
		if v, ok := Resolve(&records[i], rc); ok {
			views = append(views, v)
		}
	}
	return views
}

func shape(records []models.Feedback, as func(*models.Feedback) View) []View {
	views := make([]View, 0, len(records))
	for i := range records {
		views = append(views, as(&records[i]))
	}
	return views
}

// partition sorts already loaded records into the scopes using the same
// predicates the store queries use.
func partition(records []models.Feedback, rc authz.RequestContext) scoped {
	var sc scoped
	for _, f := range records {
		if f.IsPublic && f.Status == models.StatusApproved {
			sc.approved = append(sc.approved, f)
		}
		if f.IsPublic && f.Status == models.StatusRevisedPending {
			sc.preview = append(sc.preview, f)
		}
		if f.IsAuthor(rc.UserID()) {
			sc.owner = append(sc.owner, f)
		}
		if rc.IsAdmin() {
			sc.admin = append(sc.admin, f)
		}
	}
	return sc
}

// List returns the merged feed for the requester
func (s *Service) List(ctx context.Context, rc authz.RequestContext, filter []models.FeedbackStatus) ([]View, error) {
	db := s.db.WithContext(ctx)
	var (
		sc  scoped
		err error
	)

	if sc.approved, err = models.ListPublicFeedbacks(db, models.StatusApproved, filter); err != nil {
		return nil, apperr.Upstream("list approved feedbacks", err)
	}
	if sc.preview, err = models.ListPublicFeedbacks(db, models.StatusRevisedPending, filter); err != nil {
		return nil, apperr.Upstream("list revised feedbacks", err)
	}

	switch {
	case rc.IsAdmin():
		if sc.admin, err = models.ListAllFeedbacks(db, filter); err != nil {
			return nil, apperr.Upstream("list all feedbacks", err)
		}
	case rc.UserID() != "":
		if sc.owner, err = models.ListFeedbacksByAuthor(db, rc.UserID(), filter); err != nil {
			return nil, apperr.Upstream("list own feedbacks", err)
		}
	}

	return sc.merge(rc), nil
}

// ListMine returns only the requester's own records
func (s *Service) ListMine(ctx context.Context, rc authz.Authenticated, filter []models.FeedbackStatus) ([]View, error) {
	records, err := models.ListFeedbacksByAuthor(s.db.WithContext(ctx), rc.ID, filter)
	if err != nil {
		return nil, apperr.Upstream("list own feedbacks", err)
	}
	return MergeFeedbackList(nil, nil, shape(records, func(f *models.Feedback) View { return NewOwnerView(f) }), nil), nil
}

// Get returns a single record as the requester may see it. Records the
// requester can't see are reported as missing.
func (s *Service) Get(ctx context.Context, rc authz.RequestContext, id string) (View, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	views := partition([]models.Feedback{*f}, rc).merge(rc)
	if len(views) == 0 {
		return nil, errFeedbackNotFound()
	}
	return views[0], nil
}

// Submit stores a new pending record for the requester
func (s *Service) Submit(ctx context.Context, rc authz.Authenticated, content models.FeedbackContent) (View, error) {
	f := models.NewFeedback(rc.Actor(), rc.Email, content)
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, apperr.Upstream("create feedback", err)
	}

	s.logger.Infof("Feedback %s submitted by %s", f.ID, rc.ID)
	if s.notifier != nil {
		s.notifier.FeedbackSubmitted(f)
	}
	return NewOwnerView(f), nil
}

// Revise replaces the content of the requester's own record
func (s *Service) Revise(ctx context.Context, rc authz.Authenticated, id string, content models.FeedbackContent) (View, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.IsAuthor(rc.ID) {
		// Don't reveal records the caller couldn't otherwise see
		if _, visible := Resolve(f, rc); !visible {
			return nil, errFeedbackNotFound()
		}
	}

	from := f.Status
	if err := f.Revise(rc.Actor(), content, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, f, from); err != nil {
		return nil, err
	}

	s.logger.Infof("Feedback %s revised by its author: %s -> %s", f.ID, from, f.Status)
	return NewOwnerView(f), nil
}

// Moderate approves or rejects a record; admins only
func (s *Service) Moderate(ctx context.Context, rc authz.RequestContext, id string, decision models.Decision) (View, error) {
	if !rc.IsAdmin() {
		return nil, apperr.Forbidden("moderation_admin_only", "Only admins can approve or reject feedback")
	}

	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := f.Status
	if err := f.Moderate(rc.Actor(), decision, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, f, from); err != nil {
		return nil, err
	}

	s.logger.Infof("Feedback %s moderated by %s: %s -> %s", f.ID, rc.UserID(), from, f.Status)
	if s.notifier != nil {
		s.notifier.FeedbackModerated(f, decision)
	}
	return NewAdminView(f), nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Feedback, error) {
	f, err := models.GetFeedbackByID(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, models.ErrFeedbackNotFound) {
			return nil, errFeedbackNotFound()
		}
		return nil, apperr.Upstream("load feedback", err)
	}
	return f, nil
}

func (s *Service) save(ctx context.Context, f *models.Feedback, from models.FeedbackStatus) error {
	if err := models.SaveFeedbackTransition(s.db.WithContext(ctx), f, from); err != nil {
		if errors.Is(err, models.ErrStaleFeedback) {
			return apperr.Conflict("feedback_changed", "This feedback was changed by someone else, reload and try again")
		}
		return apperr.Upstream("save feedback", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return nil
}

func errFeedbackNotFound() *apperr.Error {
	return apperr.NotFound("feedback_not_found", "Feedback not found")
}
