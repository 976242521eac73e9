package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is the server-authoritative record for one connected wallet.
// One row per wallet address; the referral code is issued once at creation
// and never changes afterwards.
type Player struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	WalletAddress string `gorm:"uniqueIndex;not null" json:"wallet_address"`
	ReferralCode  string `gorm:"uniqueIndex;not null;type:varchar(8)" json:"referral_code"`

	// Balances (tokens purchased in the presale, feeders earned via referrals)
	TokenBalance  float64 `json:"token_balance" gorm:"default:0"`
	RewardBalance float64 `json:"reward_balance" gorm:"default:0"`

	// Denormalized invite counters for leaderboard reads. The authoritative
	// bucket membership is the invite_status column on referral_bindings;
	// these counters move together with it inside the same transaction.
	InvalidInvites  int64 `json:"invalid_invites" gorm:"default:0"`
	ValidInvites    int64 `json:"valid_invites" gorm:"default:0"`
	EligibleInvites int64 `json:"eligible_invites" gorm:"default:0"`

	// Total base-currency volume purchased by this player's referred buyers
	TotalReferredTON float64 `json:"total_referred_ton" gorm:"default:0"`

	// Optimistic-concurrency guard for read-modify-write updates
	Version int64 `json:"-" gorm:"not null;default:0"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
