package models

import (
	"time"

	"gorm.io/gorm"
)

// TokenType represents different types of tokens
type TokenType string

const TokenExpirationDuration = 30 * time.Minute
const TokenTypePasswordReset TokenType = "password_reset"

// Token represents a security token in the system
type Token struct {
	gorm.Model
	UserID    string     `gorm:"not null;index" json:"user_id" validate:"required"`
	Token     string     `json:"token" gorm:"type:varchar(512);not null;unique" validate:"required"`
	TokenType TokenType  `json:"token_type" gorm:"type:varchar(50);not null;index" validate:"required"`
	IsUsed    bool       `json:"is_used" gorm:"default:false"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// CreateToken persists a signed token of the given type
func (t *Token) CreateToken(db *gorm.DB, tokenType TokenType, value string) error {
	t.TokenType = tokenType
	t.Token = value
	return db.Create(t).Error
}

// IsValid checks if the token is unused and not expired
func (t *Token) IsValid() bool {
	if t.IsUsed {
		return false
	}
	expirationTime := t.CreatedAt.Add(TokenExpirationDuration)
	return time.Now().Before(expirationTime)
}

// MarkUsed flags the token so it can't be replayed.
func (t *Token) MarkUsed(db *gorm.DB) error {
	now := time.Now()
	t.IsUsed = true
	t.UsedAt = &now
	return db.Save(t).Error
}

// GetActiveToken returns the most recent unused token of a type for a user.
func GetActiveToken(db *gorm.DB, userID string, tokenType TokenType) (*Token, error) {
	var token Token
	err := db.Where("user_id = ? AND token_type = ? AND is_used = ?", userID, tokenType, false).
		Order("created_at DESC").First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}
