package users

import (
	"strings"
	"time"
)

// User is a registered account, keyed by a server-assigned identifier and
// unique by phone number.
type User struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"id"`
	Name        string    `gorm:"column:name;size:320;not null" json:"name"`
	PhoneNumber string    `gorm:"column:phone_number;size:32;not null;uniqueIndex" json:"phoneNumber"`
	IsAdmin     bool      `gorm:"column:is_admin;not null;default:false" json:"isAdmin"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// OTPChallenge is a pending login code for one phone number. At most one
// challenge exists per number; sending a new code replaces the old one.
type OTPChallenge struct {
	PhoneNumber string    `gorm:"column:phone_number;primaryKey;size:32;not null"`
	Code        string    `gorm:"column:code;size:12;not null"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (OTPChallenge) TableName() string {
	return "otp_challenges"
}

// Favorite marks one song as a favorite of one user. Set semantics come
// from the composite primary key.
type Favorite struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	SongID    string    `gorm:"column:song_id;primaryKey;size:190;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Favorite) TableName() string {
	return "user_favorites"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

// displayNameFor derives the provisioning-time display name from the
// phone number's last four digits.
func displayNameFor(phoneNumber string) string {
	digits := phoneNumber
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "User " + digits
}
