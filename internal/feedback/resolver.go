package feedback

import (
	"feedboard-backend/internal/authz"
	"feedboard-backend/internal/models"
)

// Resolve decides how, if at all, a record is shown to the requester.
// The rules are evaluated in order:
//
//  1. approved and public: the public view, for everyone
//  2. revised_pending and public, requester neither author nor admin: a preview
//  3. requester is the author: the owner view
//  4. requester is an admin: the admin view, email included
//  5. otherwise the record is omitted
//
// Pending records never get a preview. First submissions stay hidden until
// approved, only edits of already public content leave a visible trace.
func Resolve(f *models.Feedback, rc authz.RequestContext) (View, bool) {
	isAuthor := f.IsAuthor(rc.UserID())

	switch {
	case f.Status == models.StatusApproved && f.IsPublic:
		return NewPublicView(f), true
	case f.Status == models.StatusRevisedPending && f.IsPublic && !isAuthor && !rc.IsAdmin():
		return NewPreviewView(f), true
	case isAuthor:
		return NewOwnerView(f), true
	case rc.IsAdmin():
		return NewAdminView(f), true
	default:
		return nil, false
	}
}
