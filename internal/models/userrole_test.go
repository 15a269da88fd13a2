package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUserRoleCreatesReviewerOnce(t *testing.T) {
	db := newTestDB(t)

	first, err := EnsureUserRole(db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RoleReviewer, first.Role)

	second, err := EnsureUserRole(db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&UserRole{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureUserRoleConcurrentFirstLogin(t *testing.T) {
	db := newTestDB(t)

	const callers = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		roles = make([]Role, callers)
		errs  = make([]error, callers)
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			role, err := EnsureUserRole(db, "racing-user")
			errs[i] = err
			if err == nil {
				roles[i] = role.Role
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, RoleReviewer, roles[i])
	}

	var count int64
	require.NoError(t, db.Model(&UserRole{}).Where("user_id = ?", "racing-user").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureUserRoleKeepsExistingAdmin(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, SeedAdminRoles(db, []string{"boss"}))

	role, err := EnsureUserRole(db, "boss")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role.Role)

	// Seeding again upgrades an existing reviewer row
	_, err = EnsureUserRole(db, "promoted")
	require.NoError(t, err)
	require.NoError(t, SeedAdminRoles(db, []string{"promoted"}))

	role, err = GetUserRole(db, "promoted")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role.Role)
}
