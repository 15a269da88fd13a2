package feedback

import (
	"time"

	"feedboard-backend/internal/models"
)

// Variant names the shape a record is rendered in
type Variant string

const (
	VariantPublic  Variant = "public"
	VariantPreview Variant = "preview"
	VariantOwner   Variant = "owner"
	VariantAdmin   Variant = "admin"
)

// PreviewNotice replaces the withheld content of a preview
const PreviewNotice = "This feedback was edited and is waiting for re-approval."

// View is one record as a particular audience may see it. Only the four
// variant types in this package implement it.
type View interface {
	RecordID() string
	LastUpdated() time.Time
	Variant() Variant
	view()
}

// Identity is the metadata every variant carries
type Identity struct {
	ID            string                `json:"id"`
	AuthorID      string                `json:"author_id"`
	DisplayName   string                `json:"display_name"`
	CompanyName   string                `json:"company_name,omitempty"`
	AvatarURL     string                `json:"avatar_url,omitempty"`
	Status        models.FeedbackStatus `json:"status"`
	IsPublic      bool                  `json:"is_public"`
	RevisionCount int                   `json:"revision_count"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func (i Identity) RecordID() string       { return i.ID }
func (i Identity) LastUpdated() time.Time { return i.UpdatedAt }

// Content is what previews withhold
type Content struct {
	Rating      int      `json:"rating"`
	Summary     string   `json:"summary"`
	Strengths   string   `json:"strengths,omitempty"`
	Questions   string   `json:"questions,omitempty"`
	Suggestions string   `json:"suggestions,omitempty"`
	Tags        []string `json:"tags"`
}

type PublicView struct {
	Kind Variant `json:"variant"`
	Identity
	Content
}

type PreviewView struct {
	Kind Variant `json:"variant"`
	Identity
	Notice string `json:"notice"`
}

type OwnerView struct {
	Kind Variant `json:"variant"`
	Identity
	Content
	CompanyPublic bool       `json:"company_public"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

type AdminView struct {
	Kind Variant `json:"variant"`
	Identity
	Content
	CompanyPublic bool       `json:"company_public"`
	AuthorEmail   string     `json:"author_email"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
}

func (PublicView) Variant() Variant  { return VariantPublic }
func (PreviewView) Variant() Variant { return VariantPreview }
func (OwnerView) Variant() Variant   { return VariantOwner }
func (AdminView) Variant() Variant   { return VariantAdmin }

func (PublicView) view()  {}
func (PreviewView) view() {}
func (OwnerView) view()   {}
func (AdminView) view()   {}

// identityOf builds the metadata block. The company name only leaves the
// author's and admins' hands when the author made it public.
func identityOf(f *models.Feedback, revealCompany bool) Identity {
	id := Identity{
		ID:            f.ID,
		AuthorID:      f.AuthorID,
		DisplayName:   f.DisplayName,
		AvatarURL:     f.AvatarURL,
		Status:        f.Status,
		IsPublic:      f.IsPublic,
		RevisionCount: f.RevisionCount,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
	if revealCompany || f.CompanyPublic {
		id.CompanyName = f.CompanyName
	}
	return id
}

func contentOf(f *models.Feedback) Content {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return Content{
		Rating:      f.Rating,
		Summary:     f.Summary,
		Strengths:   f.Strengths,
		Questions:   f.Questions,
		Suggestions: f.Suggestions,
		Tags:        tags,
	}
}

func NewPublicView(f *models.Feedback) PublicView {
	return PublicView{Kind: VariantPublic, Identity: identityOf(f, false), Content: contentOf(f)}
}

func NewPreviewView(f *models.Feedback) PreviewView {
	return PreviewView{Kind: VariantPreview, Identity: identityOf(f, false), Notice: PreviewNotice}
}

func NewOwnerView(f *models.Feedback) OwnerView {
	return OwnerView{
		Kind:          VariantOwner,
		Identity:      identityOf(f, true),
		Content:       contentOf(f),
		CompanyPublic: f.CompanyPublic,
		ReviewedAt:    f.ReviewedAt,
	}
}

func NewAdminView(f *models.Feedback) AdminView {
	return AdminView{
		Kind:          VariantAdmin,
		Identity:      identityOf(f, true),
		Content:       contentOf(f),
		CompanyPublic: f.CompanyPublic,
		AuthorEmail:   f.AuthorEmail,
		ReviewedAt:    f.ReviewedAt,
		ReviewedBy:    f.ReviewedBy,
	}
}
