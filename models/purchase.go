package models

import "time"

// PurchaseStatus indicates on-chain settlement state
type PurchaseStatus string

const (
	PurchaseStatusPending PurchaseStatus = "pending"
	PurchaseStatusSettled PurchaseStatus = "settled"
)

// Purchase is one buy action. Buyer, amount, and referrer are immutable once
// written; only status transitions, and only pending → settled. Token credit
// happens at settlement time using the rate captured here.
type Purchase struct {
	ID           string  `gorm:"primaryKey;type:uuid" json:"id"`
	BuyerAddress string  `gorm:"index;not null" json:"buyer_address"`
	AmountTON    float64 `gorm:"not null" json:"amount_ton"`

	// Referral code the buyer was bound to at purchase time (nil = unbound)
	ReferrerCode *string `gorm:"index;type:varchar(8)" json:"referrer_code,omitempty"`

	// On-chain transaction hash reported by the wallet connector
	TxHash *string `gorm:"index" json:"tx_hash,omitempty"`

	Status          PurchaseStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	RateTONPerToken float64        `gorm:"not null" json:"rate_ton_per_token"`
	TokensCredited  float64        `json:"tokens_credited" gorm:"default:0"`
	SettledAt       *time.Time     `json:"settled_at,omitempty"`

	Timestamps
}
