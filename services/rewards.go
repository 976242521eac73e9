// services/rewards.go
package services

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"presale-referral-system/models"

	"gorm.io/gorm"
)

// DefaultFeedersReward is the fixed bonus granted to each side of a
// (referrer, buyer) pair on the buyer's first qualifying purchase.
const DefaultFeedersReward = 5

// RewardService distributes the one-time feeders bonus. Exactly-once per
// (referrer, buyer) pair regardless of how many purchases follow — the grant
// row's unique key arbitrates, and balance increments ride the same
// transaction as the winning insert.
type RewardService struct {
	DB            *gorm.DB
	Ledger        *LedgerService
	Notifier      *Notifier
	FeedersReward float64
}

func NewRewardService(db *gorm.DB, ledger *LedgerService, notifier *Notifier) *RewardService {
	reward := float64(DefaultFeedersReward)
	if v := os.Getenv("REFERRAL_REWARD_FEEDERS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			log.Printf("⚠️ Invalid REFERRAL_REWARD_FEEDERS=%q, using default %d", v, DefaultFeedersReward)
		} else {
			reward = parsed
		}
	}
	return &RewardService{DB: db, Ledger: ledger, Notifier: notifier, FeedersReward: reward}
}

// MaybeDistribute grants the pair bonus in its own transaction. Returns true
// when this call won the grant, false when it was already distributed.
func (s *RewardService) MaybeDistribute(referrerCode, buyerAddress string, purchaseID *string) (bool, error) {
	var granted bool
	err := withStoreRetry(func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			granted, err = s.DistributeInTx(tx, referrerCode, buyerAddress, purchaseID)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if granted {
		s.Notifier.Notify(buyerAddress,
			fmt.Sprintf("Referral bonus: you received %.0f feeders!", s.FeedersReward), "success")
		if referrer, err := s.Ledger.GetPlayerByCode(referrerCode); err == nil {
			s.Notifier.Notify(referrer.WalletAddress,
				fmt.Sprintf("Referral bonus: %.0f feeders for inviting %s!", s.FeedersReward, buyerAddress), "success")
		}
	}
	return granted, nil
}

// DistributeInTx performs the idempotent grant inside an existing
// transaction, so the caller's invite-bucket transition and the reward land
// or roll back together.
func (s *RewardService) DistributeInTx(tx *gorm.DB, referrerCode, buyerAddress string, purchaseID *string) (bool, error) {
	referrerCode = NormalizeCode(referrerCode)

	granted, err := s.Ledger.RecordRewardIfAbsent(tx, referrerCode, buyerAddress, s.FeedersReward, purchaseID)
	if err != nil {
		return false, err
	}
	if !granted {
		return false, nil
	}

	// Relative increments are conflict-free; the grant row above already
	// guarantees they run at most once per pair.
	if err := tx.Model(&models.Player{}).
		Where("referral_code = ?", referrerCode).
		Update("reward_balance", gorm.Expr("reward_balance + ?", s.FeedersReward)).Error; err != nil {
		return false, wrapStoreErr(err)
	}
	if err := tx.Model(&models.Player{}).
		Where("wallet_address = ?", buyerAddress).
		Update("reward_balance", gorm.Expr("reward_balance + ?", s.FeedersReward)).Error; err != nil {
		return false, wrapStoreErr(err)
	}

	log.Printf("🎁 Feeders reward granted: %s ↔ %s (%.0f each)", referrerCode, buyerAddress, s.FeedersReward)
	return true, nil
}
