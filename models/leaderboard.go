package models

import "time"

// LeaderboardSnapshot is the materialized top-N ranking, refreshed by the
// snapshot scheduler. Served as the stale fallback when a live leaderboard
// query times out, and published to R2 for the static front end.
type LeaderboardSnapshot struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	Rank             int       `gorm:"uniqueIndex;not null" json:"rank"`
	ReferralCode     string    `gorm:"index;not null;type:varchar(8)" json:"referral_code"`
	ValidInvites     int64     `json:"valid_invites"`
	EligibleInvites  int64     `json:"eligible_invites"`
	TotalReferredTON float64   `json:"total_referred_ton"`
	CapturedAt       time.Time `gorm:"not null" json:"captured_at"`
}
