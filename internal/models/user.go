package models

import (
	"time"
)

// User is one row per Telegram account. Monetary fields are kept in minor
// units (hundredths of a cent) so repeated accrual never drifts.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	TelegramID   int64  `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"size:255"`
	FirstName    string `gorm:"size:255"`
	LastName     string `gorm:"size:255"`
	TotalTaps    int64  `gorm:"not null;default:0"`
	TotalMined   int64  `gorm:"not null;default:0"`
	LastTapTime  int64  `gorm:"not null;default:0"` // unix seconds, 0 until first tap
	ReferralCode string `gorm:"size:32;index"`
	ReferredBy   *int64 `gorm:"index"` // telegram id of the inviter, set once at creation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName picks the best human-readable name for rendering.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ReferralCode
}
