package models

import (
	"time"
)

// Transaction kinds.
const (
	TxKindMining   = "mining"
	TxKindReferral = "referral"
)

// Transaction is an append-only audit record of a single credit. UserID is
// the beneficiary, which for referral bonuses is the referrer rather than
// the user whose registration triggered it.
type Transaction struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      int64  `gorm:"not null;index"` // beneficiary telegram id
	Amount      int64  `gorm:"not null"`       // minor units
	Kind        string `gorm:"size:32;not null;index"`
	Description string `gorm:"size:255"`
	CreatedAt   time.Time
}
