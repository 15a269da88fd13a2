package models

import (
	"errors"
	"slices"
	"time"

	"feedboard-backend/internal/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedbackStatus is the moderation state of a feedback record
type FeedbackStatus string

const (
	StatusPending        FeedbackStatus = "pending"
	StatusApproved       FeedbackStatus = "approved"
	StatusRejected       FeedbackStatus = "rejected"
	StatusRevisedPending FeedbackStatus = "revised_pending"
)

var AllFeedbackStatuses = []FeedbackStatus{StatusPending, StatusApproved, StatusRejected, StatusRevisedPending}

// PublicFeedbackStatuses can be shown, fully or as a preview, to anyone
var PublicFeedbackStatuses = []FeedbackStatus{StatusApproved, StatusRevisedPending}

// AwaitingReview reports whether an admin may approve or reject the record
func (s FeedbackStatus) AwaitingReview() bool {
	return s == StatusPending || s == StatusRevisedPending
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

var (
	ErrFeedbackNotFound = errors.New("feedback not found")
	// ErrStaleFeedback means another writer moved the record out of the
	// status a transition was computed from.
	ErrStaleFeedback = errors.New("feedback status changed concurrently")
)

// Actor is whoever performs a transition
type Actor struct {
	UserID  string
	IsAdmin bool
}

// FeedbackContent is everything the author controls
type FeedbackContent struct {
	DisplayName   string   `json:"display_name" gorm:"not null" validate:"required,max=80"`
	CompanyName   string   `json:"company_name" validate:"max=120"`
	CompanyPublic bool     `json:"company_public" gorm:"default:false"`
	AvatarURL     string   `json:"avatar_url" validate:"max=512"`
	Rating        int      `json:"rating" gorm:"not null" validate:"required,min=1,max=5"`
	Summary       string   `json:"summary" gorm:"type:text;not null" validate:"required,max=4000"`
	Strengths     string   `json:"strengths" gorm:"type:text" validate:"max=4000"`
	Questions     string   `json:"questions" gorm:"type:text" validate:"max=4000"`
	Suggestions   string   `json:"suggestions" gorm:"type:text" validate:"max=4000"`
	Tags          []string `json:"tags" gorm:"serializer:json" validate:"required,min=1,max=10,dive,required,max=40"`
	IsPublic      bool     `json:"is_public" gorm:"default:false"`
}

// Feedback is one submitted interview feedback
type Feedback struct {
	ID              string `json:"id" gorm:"primaryKey"`
	AuthorID        string `json:"author_id" gorm:"not null;index"`
	AuthorEmail     string `json:"-" gorm:"not null"`
	FeedbackContent `gorm:"embedded"`
	Status          FeedbackStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	RevisionCount   int            `json:"revision_count" gorm:"not null;default:0"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"index"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy      *string        `json:"reviewed_by,omitempty"`
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID != "" {
		return nil
	}
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	f.ID = uuidV7.String()
	return nil
}

// NewFeedback builds a freshly submitted record; it always starts pending
func NewFeedback(author Actor, authorEmail string, content FeedbackContent) *Feedback {
	return &Feedback{
		AuthorID:        author.UserID,
		AuthorEmail:     authorEmail,
		FeedbackContent: content,
		Status:          StatusPending,
	}
}

// IsAuthor reports whether userID wrote the record
func (f *Feedback) IsAuthor(userID string) bool {
	return userID != "" && f.AuthorID == userID
}

// Moderate applies an admin decision. Only pending and revised_pending
// records can be reviewed; the revision counter is left alone.
func (f *Feedback) Moderate(actor Actor, decision Decision, now time.Time) error {
	if !actor.IsAdmin {
		return apperr.Forbidden("moderation_admin_only", "Only admins can approve or reject feedback")
	}
	if !f.Status.AwaitingReview() {
		return apperr.Validation("feedback_not_awaiting_review", "This feedback is not awaiting review")
	}

	switch decision {
	case DecisionApprove:
		f.Status = StatusApproved
	case DecisionReject:
		f.Status = StatusRejected
	default:
		return apperr.Validation("unknown_decision", "Unknown moderation decision")
	}

	reviewer := actor.UserID
	f.ReviewedAt = &now
	f.ReviewedBy = &reviewer
	f.UpdatedAt = now
	return nil
}

// Revise replaces the content on behalf of the author. Editing approved
// content sends it back for re-approval and bumps the revision counter;
// editing rejected content re-submits it.
func (f *Feedback) Revise(actor Actor, content FeedbackContent, now time.Time) error {
	if !f.IsAuthor(actor.UserID) {
		return apperr.Forbidden("feedback_author_only", "Only the author can edit this feedback")
	}

	f.FeedbackContent = content
	switch f.Status {
	case StatusApproved:
		f.Status = StatusRevisedPending
		f.RevisionCount++
	case StatusRejected:
		f.Status = StatusPending
	}
	f.UpdatedAt = now
	return nil
}

func GetFeedbackByID(db *gorm.DB, id string) (*Feedback, error) {
	var feedback Feedback
	result := db.Where("id = ?", id).First(&feedback)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, result.Error
	}
	return &feedback, nil
}

// SaveFeedbackTransition writes f only if the stored row is still in the
// status the transition started from.
func SaveFeedbackTransition(db *gorm.DB, f *Feedback, from FeedbackStatus) error {
	result := db.Model(&Feedback{}).
		Where("id = ? AND status = ?", f.ID, from).
		Select("*").
		Omit("id", "author_id", "author_email", "created_at").
		Updates(f)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleFeedback
	}
	return nil
}

// ListPublicFeedbacks returns public records in the given status. A status
// filter that excludes it yields nothing without touching the store.
func ListPublicFeedbacks(db *gorm.DB, status FeedbackStatus, filter []FeedbackStatus) ([]Feedback, error) {
	if len(filter) > 0 && !slices.Contains(filter, status) {
		return nil, nil
	}
	var feedbacks []Feedback
	err := db.Where("status = ? AND is_public = ?", status, true).
		Order("updated_at DESC").
		Find(&feedbacks).Error
	return feedbacks, err
}

// ListFeedbacksByAuthor returns every record written by authorID
func ListFeedbacksByAuthor(db *gorm.DB, authorID string, filter []FeedbackStatus) ([]Feedback, error) {
	var feedbacks []Feedback
	query := db.Where("author_id = ?", authorID)
	if len(filter) > 0 {
		query = query.Where("status IN ?", filter)
	}
	err := query.Order("updated_at DESC").Find(&feedbacks).Error
	return feedbacks, err
}

// ListAllFeedbacks is the admin scope
func ListAllFeedbacks(db *gorm.DB, filter []FeedbackStatus) ([]Feedback, error) {
	var feedbacks []Feedback
	query := db.Model(&Feedback{})
	if len(filter) > 0 {
		query = query.Where("status IN ?", filter)
	}
	err := query.Order("updated_at DESC").Find(&feedbacks).Error
	return feedbacks, err
}
