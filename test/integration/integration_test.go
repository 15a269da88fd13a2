//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedboard-backend/internal/config"
	"feedboard-backend/internal/handlers"
	"feedboard-backend/internal/models"
	"feedboard-backend/internal/server"
)

const adminEmail = "admin@feedboard.dev"

// setupTestServerFast creates a test server with SQLite in-memory and no Redis,
// storage or notification backends. It uses the actual server.Initialize().
func setupTestServerFast(t *testing.T) *server.Server {
	cfg := &config.Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Server.DeployDomain = "localhost:8080"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Auth.SessionSecret = "test-secret-key-for-testing-only"
	cfg.Auth.AdminEmails = []string{adminEmail}
	cfg.Resend.DefaultSender = "test@example.com"

	srv := server.New(cfg)
	srv.Echo.Logger.SetLevel(log.OFF)

	require.NoError(t, srv.Initialize())

	t.Cleanup(func() {
		if sqlDB, _ := srv.DB.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	})
	return srv
}

type response struct {
	*httptest.ResponseRecorder
}

func (r response) decode(t *testing.T, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), out), r.Body.String())
}

func (r response) errorCode(t *testing.T) string {
	t.Helper()
	var body handlers.ErrorResponse
	r.decode(t, &body)
	return body.Code
}

func do(t *testing.T, srv *server.Server, method, path, token string, payload interface{}) response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return response{rec}
}

// signUp registers an account through the API and returns its token
func signUp(t *testing.T, srv *server.Server, email string) string {
	t.Helper()
	res := do(t, srv, http.MethodPost, "/api/sign-up", "", map[string]interface{}{
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"password":   "securepassword123",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var out map[string]string
	res.decode(t, &out)
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func feedbackPayload(summary string) map[string]interface{} {
	return map[string]interface{}{
		"display_name": "Jane",
		"company_name": "Acme",
		"rating":       4,
		"summary":      summary,
		"tags":         []string{"backend"},
		"is_public":    true,
	}
}

type listedView struct {
	ID          string `json:"id"`
	Variant     string `json:"variant"`
	Status      string `json:"status"`
	Summary     string `json:"summary"`
	AuthorEmail string `json:"author_email"`
	Notice      string `json:"notice"`
}

func list(t *testing.T, srv *server.Server, token, query string) []listedView {
	t.Helper()
	res := do(t, srv, http.MethodGet, "/api/feedbacks"+query, token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var views []listedView
	res.decode(t, &views)
	return views
}

func TestHealth(t *testing.T) {
	srv := setupTestServerFast(t)
	res := do(t, srv, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestManualSignUpAndSignIn(t *testing.T) {
	srv := setupTestServerFast(t)
	signUp(t, srv, "john.doe@gmail.com")

	var user models.User
	require.NoError(t, srv.DB.Where("email = ?", "john.doe@gmail.com").First(&user).Error)
	assert.Equal(t, "Test", user.FirstName)
	assert.NotEmpty(t, user.HashedPassword)

	res := do(t, srv, http.MethodPost, "/api/sign-in", "", map[string]string{
		"email":    "john.doe@gmail.com",
		"password": "securepassword123",
	})
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, srv, http.MethodPost, "/api/sign-in", "", map[string]string{
		"email":    "john.doe@gmail.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "invalid_credentials", res.errorCode(t))

	res = do(t, srv, http.MethodPost, "/api/sign-up", "", map[string]interface{}{
		"first_name": "Again",
		"last_name":  "User",
		"email":      "john.doe@gmail.com",
		"password":   "securepassword123",
	})
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestSignUpRejectsDisposableEmail(t *testing.T) {
	srv := setupTestServerFast(t)
	res := do(t, srv, http.MethodPost, "/api/sign-up", "", map[string]interface{}{
		"first_name": "Temp",
		"last_name":  "User",
		"email":      "temp@mailinator.com",
		"password":   "securepassword123",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "email_disposable", res.errorCode(t))
}

func TestUserEndpointReportsRole(t *testing.T) {
	srv := setupTestServerFast(t)
	reviewer := signUp(t, srv, "reviewer@gmail.com")
	admin := signUp(t, srv, adminEmail)

	var out struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	res := do(t, srv, http.MethodGet, "/api/auth/user", reviewer, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &out)
	assert.Equal(t, "reviewer", out.Role)

	res = do(t, srv, http.MethodGet, "/api/auth/user", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &out)
	assert.Equal(t, "admin", out.Role)

	// Exactly one role row per principal no matter how many requests
	var count int64
	require.NoError(t, srv.DB.Model(&models.UserRole{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestProtectedRoutesNeedAuth(t *testing.T) {
	srv := setupTestServerFast(t)

	res := do(t, srv, http.MethodPost, "/api/auth/feedbacks", "", feedbackPayload("Nice"))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "sign_in_required", res.errorCode(t))

	res = do(t, srv, http.MethodGet, "/api/feedbacks", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "invalid_token", res.errorCode(t))
}

func TestFeedbackLifecycle(t *testing.T) {
	srv := setupTestServerFast(t)
	author := signUp(t, srv, "author@gmail.com")
	stranger := signUp(t, srv, "stranger@gmail.com")
	admin := signUp(t, srv, adminEmail)

	// Submit: pending and hidden from the public
	res := do(t, srv, http.MethodPost, "/api/auth/feedbacks", author, feedbackPayload("Great interview"))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var created listedView
	res.decode(t, &created)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "owner", created.Variant)

	assert.Empty(t, list(t, srv, "", ""))
	assert.Empty(t, list(t, srv, stranger, ""))

	res = do(t, srv, http.MethodGet, "/api/feedbacks/"+created.ID, stranger, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	// Only admins moderate
	res = do(t, srv, http.MethodPost, "/api/auth/feedbacks/"+created.ID+"/approve", author, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "moderation_admin_only", res.errorCode(t))

	adminViews := list(t, srv, admin, "?status=pending")
	require.Len(t, adminViews, 1)
	assert.Equal(t, "admin", adminViews[0].Variant)
	assert.Equal(t, "author@gmail.com", adminViews[0].AuthorEmail)

	res = do(t, srv, http.MethodPost, "/api/auth/feedbacks/"+created.ID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	public := list(t, srv, "", "")
	require.Len(t, public, 1)
	assert.Equal(t, "public", public[0].Variant)
	assert.Equal(t, "Great interview", public[0].Summary)
	assert.Empty(t, public[0].AuthorEmail)

	// Approving twice isn't a legal move
	res = do(t, srv, http.MethodPost, "/api/auth/feedbacks/"+created.ID+"/approve", admin, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "feedback_not_awaiting_review", res.errorCode(t))

	// Strangers can't edit
	res = do(t, srv, http.MethodPut, "/api/auth/feedbacks/"+created.ID, stranger, feedbackPayload("Hijacked"))
	assert.Equal(t, http.StatusForbidden, res.Code)

	// Author edit: public sees a preview, author keeps the full view
	res = do(t, srv, http.MethodPut, "/api/auth/feedbacks/"+created.ID, author, feedbackPayload("Great interview, one more thing"))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	public = list(t, srv, "", "")
	require.Len(t, public, 1)
	assert.Equal(t, "preview", public[0].Variant)
	assert.Empty(t, public[0].Summary)
	assert.NotEmpty(t, public[0].Notice)

	mine := list(t, srv, author, "")
	require.Len(t, mine, 1)
	assert.Equal(t, "owner", mine[0].Variant)
	assert.Equal(t, "revised_pending", mine[0].Status)
	assert.Equal(t, "Great interview, one more thing", mine[0].Summary)

	res = do(t, srv, http.MethodPost, "/api/auth/feedbacks/"+created.ID+"/reject", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, list(t, srv, "", ""))

	res = do(t, srv, http.MethodGet, "/api/auth/feedbacks/mine", author, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var own []listedView
	res.decode(t, &own)
	require.Len(t, own, 1)
	assert.Equal(t, "rejected", own[0].Status)
}

func TestStatusFilterRules(t *testing.T) {
	srv := setupTestServerFast(t)
	reviewer := signUp(t, srv, "reviewer@gmail.com")
	admin := signUp(t, srv, adminEmail)

	res := do(t, srv, http.MethodGet, "/api/feedbacks?status=approved,revised_pending", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, srv, http.MethodGet, "/api/feedbacks?status=pending", reviewer, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "status_filter_admin_only", res.errorCode(t))

	res = do(t, srv, http.MethodGet, "/api/feedbacks?status=archived", admin, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid_status_filter", res.errorCode(t))

	res = do(t, srv, http.MethodGet, "/api/feedbacks?status=pending,rejected", admin, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestFeedbackValidation(t *testing.T) {
	srv := setupTestServerFast(t)
	author := signUp(t, srv, "author@gmail.com")

	payload := feedbackPayload("Fine")
	payload["rating"] = 9
	res := do(t, srv, http.MethodPost, "/api/auth/feedbacks", author, payload)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid_request", res.errorCode(t))

	payload = feedbackPayload("Fine")
	payload["tags"] = []string{}
	res = do(t, srv, http.MethodPost, "/api/auth/feedbacks", author, payload)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAvatarUploadRejectsUnsupportedType(t *testing.T) {
	srv := setupTestServerFast(t)
	token := signUp(t, srv, "avatar@gmail.com")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="me.gif"`)
	header.Set("Content-Type", "image/gif")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/avatar", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	res := response{rec}
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "avatar_invalid_type", res.errorCode(t))
}

func TestAvatarDownloadMissing(t *testing.T) {
	srv := setupTestServerFast(t)
	res := do(t, srv, http.MethodGet, "/api/avatars/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	srv := setupTestServerFast(t)
	signUp(t, srv, "forgetful@gmail.com")

	res := do(t, srv, http.MethodPost, "/api/forgot-password", "", map[string]string{"email": "forgetful@gmail.com"})
	require.Equal(t, http.StatusOK, res.Code)

	var token models.Token
	require.NoError(t, srv.DB.Where("token_type = ?", models.TokenTypePasswordReset).First(&token).Error)

	res = do(t, srv, http.MethodPatch, "/api/reset-password/"+token.Token, "", map[string]string{"password": "brand-new-password"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = do(t, srv, http.MethodPost, "/api/sign-in", "", map[string]string{
		"email":    "forgetful@gmail.com",
		"password": "brand-new-password",
	})
	assert.Equal(t, http.StatusOK, res.Code)

	// Links work once
	res = do(t, srv, http.MethodPatch, "/api/reset-password/"+token.Token, "", map[string]string{"password": "another-password"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "reset_token_used", res.errorCode(t))

	// Unknown accounts get the same answer
	res = do(t, srv, http.MethodPost, "/api/forgot-password", "", map[string]string{"email": "nobody@gmail.com"})
	assert.Equal(t, http.StatusOK, res.Code)
}
