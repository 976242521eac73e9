package models

import "time"

// RewardGrant records the one-time feeders bonus for a (referrer, buyer)
// pair. The composite unique index is the idempotency key: a concurrent
// duplicate distribution attempt becomes a conflicting-key no-op.
type RewardGrant struct {
	ID            string  `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerCode  string  `gorm:"not null;uniqueIndex:idx_reward_pair;type:varchar(8)" json:"referrer_code"`
	BuyerAddress  string  `gorm:"not null;uniqueIndex:idx_reward_pair" json:"buyer_address"`
	AmountFeeders float64 `gorm:"not null" json:"amount_feeders"`

	// Purchase that qualified the buyer (for audit)
	PurchaseID *string `gorm:"index" json:"purchase_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
