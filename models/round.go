package models

import "time"

// RoundStatus indicates the publishing status of a presale round
type RoundStatus string

const (
	RoundStatusDraft     RoundStatus = "draft"
	RoundStatusScheduled RoundStatus = "scheduled"
	RoundStatusActive    RoundStatus = "active"
	RoundStatusClosed    RoundStatus = "closed"
)

// PresaleRound versions the presale price. The active round supplies the
// exchange rate (TON per token) used by the purchase recorder; at most one
// round should be active at a time.
type PresaleRound struct {
	ID              string      `gorm:"primaryKey;type:uuid" json:"id"`
	Name            string      `gorm:"not null" json:"name"`
	Slug            string      `gorm:"uniqueIndex;not null" json:"slug"`
	RateTONPerToken float64     `gorm:"not null" json:"rate_ton_per_token"`
	StartAt         *time.Time  `json:"start_at,omitempty"`
	EndAt           *time.Time  `json:"end_at,omitempty"`
	Status          RoundStatus `gorm:"type:varchar(16);not null;default:'draft';index" json:"status"`

	Timestamps
}
