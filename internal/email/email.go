package email

import (
	"embed"
	"fmt"
	"html"
	"strings"

	"feedboard-backend/internal/models"

	"github.com/labstack/echo/v4"
	resend "github.com/resend/resend-go/v2"
)

//go:embed templates/*.html
var templates embed.FS

// EmailClient is an interface for sending emails
type EmailClient interface {
	SendAsync(toEmail, subject, htmlBody string)
	SendWelcomeEmail(user *models.User)
	SendPasswordResetEmail(toEmail, resetLink string)
	SendModerationOutcomeEmail(f *models.Feedback, decision models.Decision, feedbackLink string)
}

// ResendEmailClient implements EmailClient using the Resend service
type ResendEmailClient struct {
	client        *resend.Client
	defaultSender string
	logger        echo.Logger
}

// NewResendEmailClient creates a new ResendEmailClient
func NewResendEmailClient(client *resend.Client, defaultSender string, logger echo.Logger) *ResendEmailClient {
	return &ResendEmailClient{
		client:        client,
		defaultSender: defaultSender,
		logger:        logger,
	}
}

// SendAsync sends an email asynchronously
func (c *ResendEmailClient) SendAsync(toEmail, subject, htmlBody string) {
	if c == nil || c.client == nil {
		if c != nil && c.logger != nil {
			c.logger.Warnf("Resend client not initialized, skipping email to %s", toEmail)
		}
		return
	}

	if c.defaultSender == "" {
		c.logger.Errorf("Resend default sender not configured, skipping email.")
		return
	}

	go func() {
		params := &resend.SendEmailRequest{
			From:    c.defaultSender,
			To:      []string{toEmail},
			Subject: subject,
			Html:    htmlBody,
		}

		_, err := c.client.Emails.Send(params)
		if err != nil {
			c.logger.Errorf("Failed to send email to %s (Subject: %s): %v", toEmail, subject, err)
		} else {
			c.logger.Infof("Email sent successfully to %s (Subject: %s)", toEmail, subject)
		}
	}()
}

// render fills a template's {placeholders}
func render(name string, replacements ...string) (string, error) {
	templateBytes, err := templates.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	return strings.NewReplacer(replacements...).Replace(string(templateBytes)), nil
}

// SendWelcomeEmail sends a welcome email to a new user
func (c *ResendEmailClient) SendWelcomeEmail(user *models.User) {
	if user == nil {
		c.logger.Error("Cannot send welcome email to nil user")
		return
	}

	htmlBody, err := render("welcome.html", "{first_name}", html.EscapeString(user.FirstName))
	if err != nil {
		c.logger.Errorf("Failed to read welcome email template: %v", err)
		return
	}

	c.SendAsync(user.Email, "Welcome to Feedboard "+user.FirstName, htmlBody)
}

func (c *ResendEmailClient) SendPasswordResetEmail(toEmail, resetLink string) {
	if toEmail == "" || resetLink == "" {
		c.logger.Error("Cannot send password reset email with empty email or link")
		return
	}

	htmlBody, err := render("password-reset.html", "{reset_link}", resetLink)
	if err != nil {
		c.logger.Errorf("Failed to read password reset email template: %v", err)
		return
	}

	c.SendAsync(toEmail, "Feedboard password reset request", htmlBody)
}

// SendModerationOutcomeEmail tells the author whether their feedback was
// approved or rejected
func (c *ResendEmailClient) SendModerationOutcomeEmail(f *models.Feedback, decision models.Decision, feedbackLink string) {
	if f == nil || f.AuthorEmail == "" {
		c.logger.Error("Cannot send moderation email without an author email")
		return
	}

	template, subject := "feedback-approved.html", "Your feedback was approved"
	if decision == models.DecisionReject {
		template, subject = "feedback-rejected.html", "Your feedback needs changes"
	}

	htmlBody, err := render(template,
		"{display_name}", html.EscapeString(f.DisplayName),
		"{summary}", html.EscapeString(truncate(f.Summary, 80)),
		"{feedback_link}", feedbackLink,
	)
	if err != nil {
		c.logger.Errorf("Failed to read moderation email template: %v", err)
		return
	}

	c.SendAsync(f.AuthorEmail, fmt.Sprintf("Feedboard: %s", subject), htmlBody)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
