package authz

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubOracle struct {
	identity *Identity
	err      error
}

func (s stubOracle) GetUser(c echo.Context) (*Identity, error) {
	return s.identity, s.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.UserRole{}))
	return db
}

// runGuard pushes a request through Guard and returns what the handler saw
func runGuard(t *testing.T, oracle IdentityOracle, db *gorm.DB) (RequestContext, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var seen RequestContext
	err := Guard(oracle, db)(func(c echo.Context) error {
		seen = FromContext(c)
		return nil
	})(c)
	return seen, err
}

func TestGuardAnonymous(t *testing.T) {
	rc, err := runGuard(t, stubOracle{}, newTestDB(t))
	require.NoError(t, err)

	assert.IsType(t, Anonymous{}, rc)
	assert.Empty(t, rc.UserID())
	assert.False(t, rc.IsAdmin())
}

func TestGuardAuthenticatedGetsLazyReviewerRole(t *testing.T) {
	db := newTestDB(t)

	rc, err := runGuard(t, stubOracle{identity: &Identity{ID: "u-1", Email: "u1@example.com"}}, db)
	require.NoError(t, err)

	auth, ok := rc.(Authenticated)
	require.True(t, ok)
	assert.Equal(t, "u-1", auth.UserID())
	assert.Equal(t, models.RoleReviewer, auth.Role)
	assert.False(t, auth.IsAdmin())
	assert.Equal(t, models.Actor{UserID: "u-1"}, auth.Actor())

	var count int64
	require.NoError(t, db.Model(&models.UserRole{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGuardAdmin(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, models.SeedAdminRoles(db, []string{"boss"}))

	rc, err := runGuard(t, stubOracle{identity: &Identity{ID: "boss"}}, db)
	require.NoError(t, err)
	assert.True(t, rc.IsAdmin())
	assert.True(t, rc.Actor().IsAdmin)
}

func TestGuardInvalidCredential(t *testing.T) {
	oracleErr := apperr.Unauthorized("invalid_token", "Your session is invalid or expired")

	_, err := runGuard(t, stubOracle{err: oracleErr}, newTestDB(t))
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestRequireAuthenticated(t *testing.T) {
	e := echo.New()
	handler := RequireAuthenticated()(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := handler(c)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.Set(contextKey, RequestContext(Authenticated{ID: "u-1", Role: models.RoleReviewer}))
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	auth, err := Must(c)
	require.NoError(t, err)
	assert.Equal(t, "u-1", auth.ID)
}
