// services/ledger.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"presale-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// Bounded optimistic-retry budget for read-modify-write updates
	atomicRetryLimit = 3
	atomicRetryBase  = 10 * time.Millisecond

	// Retry budget for transient store failures
	storeRetryLimit = 3
	storeRetryBase  = 50 * time.Millisecond
)

// LedgerService owns the four record kinds (players, purchases, bindings,
// reward grants) and is the single entry point for cross-entity mutation.
// Higher-level services never hand-roll their own read-then-write cycles.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// wrapStoreErr maps unexpected driver failures onto the retryable taxonomy so
// handlers can distinguish "your input was invalid" from "retry later".
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// withStoreRetry retries transient store failures with exponential backoff.
// Validation errors pass through immediately.
func withStoreRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < storeRetryLimit; attempt++ {
		if err = op(); err == nil || !errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		time.Sleep(storeRetryBase << attempt)
	}
	return err
}

// EnsurePlayer lazily creates the Player row for a wallet on first contact,
// issuing its referral code. Safe under concurrent connects: the unique index
// on wallet_address arbitrates, and the loser of the race re-reads.
func (s *LedgerService) EnsurePlayer(walletAddress string) (*models.Player, error) {
	var existing models.Player
	err := s.DB.Where("wallet_address = ?", walletAddress).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrapStoreErr(err)
	}

	for attempt := 0; attempt < atomicRetryLimit; attempt++ {
		code, err := s.issueReferralCode(walletAddress)
		if err != nil {
			return nil, err
		}

		player := models.Player{
			ID:            uuid.NewString(),
			WalletAddress: walletAddress,
			ReferralCode:  code,
		}
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet_address"}},
			DoNothing: true,
		}).Create(&player)
		if res.Error != nil {
			// A concurrent signup can claim the candidate code between the
			// availability check and this insert. Re-derive and try again.
			var holder models.Player
			if lookupErr := s.DB.Where("referral_code = ?", code).First(&holder).Error; lookupErr == nil && holder.WalletAddress != walletAddress {
				log.Printf("⚠️ Referral code %s raced to wallet %s, re-deriving for %s", code, holder.WalletAddress, walletAddress)
				continue
			}
			return nil, wrapStoreErr(res.Error)
		}
		if res.RowsAffected == 0 {
			log.Printf("⚠️ Player create raced for wallet %s, re-reading", walletAddress)
		}

		// Re-read either way so the caller sees the committed row
		var created models.Player
		if err := s.DB.Where("wallet_address = ?", walletAddress).First(&created).Error; err != nil {
			return nil, wrapStoreErr(err)
		}
		return &created, nil
	}
	return nil, fmt.Errorf("%w: player create for wallet %s", ErrConflict, walletAddress)
}

// issueReferralCode resolves a collision-free code for a new wallet. The base
// derivation (first 8 address characters) is kept for continuity with codes
// users already shared; a collision with a different wallet's code triggers
// salted re-derivation checked against the store.
func (s *LedgerService) issueReferralCode(walletAddress string) (string, error) {
	candidate := deriveBaseCode(walletAddress)
	for attempt := 0; attempt < 10; attempt++ {
		if candidate == "" {
			candidate = deriveSaltedCode(walletAddress, attempt)
		}
		var holder models.Player
		err := s.DB.Where("referral_code = ?", candidate).First(&holder).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", wrapStoreErr(err)
		}
		if holder.WalletAddress == walletAddress {
			return candidate, nil
		}
		candidate = deriveSaltedCode(walletAddress, attempt+1)
	}
	return "", fmt.Errorf("%w: referral code space exhausted for %s", ErrConflict, walletAddress)
}

// GetPlayerByCode returns ErrNotFound for unknown codes.
func (s *LedgerService) GetPlayerByCode(code string) (*models.Player, error) {
	var player models.Player
	if err := s.DB.Where("referral_code = ?", NormalizeCode(code)).First(&player).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	return &player, nil
}

func (s *LedgerService) GetPlayerByWallet(walletAddress string) (*models.Player, error) {
	var player models.Player
	if err := s.DB.Where("wallet_address = ?", walletAddress).First(&player).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	return &player, nil
}

// AtomicUpdatePlayer applies fn to the player's current state under
// optimistic concurrency: the write only lands if the version column has not
// moved since the read. A concurrent writer costs a re-read and a retry, up
// to atomicRetryLimit attempts, then ErrConflict. fn must be a pure function
// of its argument — it may run several times.
func (s *LedgerService) AtomicUpdatePlayer(code string, fn func(*models.Player) error) (*models.Player, error) {
	code = NormalizeCode(code)
	for attempt := 0; attempt < atomicRetryLimit; attempt++ {
		var current models.Player
		if err := s.DB.Where("referral_code = ?", code).First(&current).Error; err != nil {
			return nil, wrapStoreErr(err)
		}

		next := current
		if err := fn(&next); err != nil {
			return nil, err
		}

		res := s.DB.Model(&models.Player{}).
			Where("referral_code = ? AND version = ?", code, current.Version).
			Updates(map[string]interface{}{
				"token_balance":      next.TokenBalance,
				"reward_balance":     next.RewardBalance,
				"invalid_invites":    next.InvalidInvites,
				"valid_invites":      next.ValidInvites,
				"eligible_invites":   next.EligibleInvites,
				"total_referred_ton": next.TotalReferredTON,
				"version":            current.Version + 1,
			})
		if res.Error != nil {
			return nil, wrapStoreErr(res.Error)
		}
		if res.RowsAffected == 1 {
			next.Version = current.Version + 1
			return &next, nil
		}

		// Lost the race — back off and reapply against fresh state
		time.Sleep(atomicRetryBase << attempt)
	}
	return nil, fmt.Errorf("%w: player %s after %d attempts", ErrConflict, code, atomicRetryLimit)
}

// RecordRewardIfAbsent inserts the grant keyed by the (referrer, buyer)
// unique pair. Returns false when the pair was already granted — the second
// of two concurrent attempts resolves to a conflicting-key no-op.
func (s *LedgerService) RecordRewardIfAbsent(tx *gorm.DB, referrerCode, buyerAddress string, amount float64, purchaseID *string) (bool, error) {
	grant := models.RewardGrant{
		ID:            uuid.NewString(),
		ReferrerCode:  referrerCode,
		BuyerAddress:  buyerAddress,
		AmountFeeders: amount,
		PurchaseID:    purchaseID,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referrer_code"}, {Name: "buyer_address"}},
		DoNothing: true,
	}).Create(&grant)
	if res.Error != nil {
		return false, wrapStoreErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}
