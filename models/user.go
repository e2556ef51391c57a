package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a registered account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"size:120;uniqueIndex;not null" json:"email"`
	Username     string       `gorm:"size:80;uniqueIndex;not null" json:"username"`
	PasswordHash string       `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	Predictions  []Prediction `gorm:"constraint:OnDelete:SET NULL;" json:"-"`
}

// BeforeCreate hook ensures the timestamp is set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return nil
}
