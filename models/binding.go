package models

import "time"

// InviteStatus classifies a referred buyer by purchase history:
// invalid = bound but never purchased, valid = purchased below the
// eligibility threshold, eligible = purchased at/above it.
type InviteStatus string

const (
	InviteStatusInvalid  InviteStatus = "invalid"
	InviteStatusValid    InviteStatus = "valid"
	InviteStatusEligible InviteStatus = "eligible"
)

// Rank orders the buckets. A buyer only ever moves to a higher rank.
func (s InviteStatus) Rank() int {
	switch s {
	case InviteStatusValid:
		return 1
	case InviteStatusEligible:
		return 2
	default:
		return 0
	}
}

// ReferralBinding is the one-time association of a buyer to a referrer.
// The unique index on buyer_address enforces at-most-once binding; the only
// mutable column is invite_status, which upgrades monotonically.
type ReferralBinding struct {
	ID           string       `gorm:"primaryKey;type:uuid" json:"id"`
	BuyerAddress string       `gorm:"uniqueIndex;not null" json:"buyer_address"`
	ReferrerCode string       `gorm:"index;not null;type:varchar(8)" json:"referrer_code"`
	InviteStatus InviteStatus `gorm:"type:varchar(16);not null;default:'invalid'" json:"invite_status"`
	BoundAt      time.Time    `json:"bound_at" gorm:"autoCreateTime"`
}
