package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
)

// UserRole is a principal's authorization level. Rows are created lazily
// and never change role on their own.
type UserRole struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	UserID    string    `gorm:"not null;uniqueIndex" json:"user_id"`
	Role      Role      `gorm:"type:varchar(20);not null;default:reviewer" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func GetUserRole(db *gorm.DB, userID string) (*UserRole, error) {
	var role UserRole
	if err := db.Where("user_id = ?", userID).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// EnsureUserRole returns the user's role row, creating it with the
// reviewer role on first use.
//
// Two first requests racing each other both miss the lookup and try the
// insert; the loser hits the unique index on user_id and falls back to
// reading the winner's row, so both callers see the same role.
func EnsureUserRole(db *gorm.DB, userID string) (*UserRole, error) {
	existing, err := GetUserRole(db, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	role := UserRole{UserID: userID, Role: RoleReviewer}
	createErr := db.Create(&role).Error
	if createErr == nil {
		return &role, nil
	}

	existing, err = GetUserRole(db, userID)
	if err != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("role exists but can't be read: %w", err)
		}
		return nil, fmt.Errorf("failed to create user role: %w", createErr)
	}
	return existing, nil
}

// SeedAdminRoles grants the admin role to the given users, creating the
// rows when they don't exist yet.
func SeedAdminRoles(db *gorm.DB, userIDs []string) error {
	for _, id := range userIDs {
		role := UserRole{UserID: id, Role: RoleAdmin}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"role": RoleAdmin}),
		}).Create(&role).Error
		if err != nil {
			return fmt.Errorf("failed to seed admin role for %s: %w", id, err)
		}
	}
	return nil
}
