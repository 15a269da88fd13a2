package notifications

import (
	"fmt"
	"strings"

	"feedboard-backend/internal/email"
	"feedboard-backend/internal/models"
)

// FeedbackNotifier pings moderators about new submissions and e-mails
// authors the outcome of a review. Either channel may be nil.
type FeedbackNotifier struct {
	telegram *TelegramNotifier
	email    email.EmailClient
	baseURL  string
}

func NewFeedbackNotifier(telegram *TelegramNotifier, emailClient email.EmailClient, baseURL string) *FeedbackNotifier {
	return &FeedbackNotifier{telegram: telegram, email: emailClient, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (n *FeedbackNotifier) FeedbackSubmitted(f *models.Feedback) {
	n.telegram.SendAsync(submittedMessage(f))
}

func (n *FeedbackNotifier) FeedbackModerated(f *models.Feedback, decision models.Decision) {
	if n.email == nil {
		return
	}
	n.email.SendModerationOutcomeEmail(f, decision, n.feedbackLink(f))
}

func (n *FeedbackNotifier) feedbackLink(f *models.Feedback) string {
	return n.baseURL + "/feedbacks/" + f.ID
}

func submittedMessage(f *models.Feedback) string {
	visibility := "private"
	if f.IsPublic {
		visibility = "public"
	}
	return fmt.Sprintf("New feedback waiting for review\n\n%s rated %d/5 (%s)\nTags: %s\nID: %s",
		f.DisplayName, f.Rating, visibility, strings.Join(f.Tags, ", "), f.ID)
}
