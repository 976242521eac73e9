// services/purchase.go
package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"presale-referral-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultEligibilityThresholdTON is the minimum purchase, in base currency,
// for a referred buyer to count as eligible. 2 TON equals the "100 tokens"
// figure at the default presale rate of 0.02 TON per token; the threshold is
// compared in TON everywhere.
const DefaultEligibilityThresholdTON = 2.0

// PurchaseService records buy actions, upgrades invite buckets, and credits
// token balances at settlement.
type PurchaseService struct {
	DB           *gorm.DB
	Ledger       *LedgerService
	Referrals    *ReferralService
	Rewards      *RewardService
	Rounds       *RoundService
	Notifier     *Notifier
	ThresholdTON float64
}

func NewPurchaseService(db *gorm.DB, ledger *LedgerService, referrals *ReferralService, rewards *RewardService, rounds *RoundService, notifier *Notifier) *PurchaseService {
	threshold := DefaultEligibilityThresholdTON
	if v := os.Getenv("ELIGIBILITY_THRESHOLD_TON"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			log.Printf("⚠️ Invalid ELIGIBILITY_THRESHOLD_TON=%q, using %v", v, DefaultEligibilityThresholdTON)
		} else {
			threshold = parsed
		}
	}
	return &PurchaseService{
		DB:           db,
		Ledger:       ledger,
		Referrals:    referrals,
		Rewards:      rewards,
		Rounds:       rounds,
		Notifier:     notifier,
		ThresholdTON: threshold,
	}
}

// RecordPurchase persists the purchase as pending and, for bound buyers,
// upgrades the invite bucket and distributes the pair reward in the same
// transaction. The buyer's own token balance is only credited at settlement.
func (s *PurchaseService) RecordPurchase(buyerAddress string, amountTON float64, txHash string) (*models.Purchase, error) {
	if amountTON <= 0 {
		return nil, ErrInvalidAmount
	}

	if _, err := s.Ledger.EnsurePlayer(buyerAddress); err != nil {
		return nil, err
	}

	binding, err := s.Referrals.BindingFor(buyerAddress)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	purchase := &models.Purchase{
		ID:              uuid.NewString(),
		BuyerAddress:    buyerAddress,
		AmountTON:       amountTON,
		Status:          models.PurchaseStatusPending,
		RateTONPerToken: s.Rounds.ActiveRate(),
	}
	if txHash != "" {
		purchase.TxHash = &txHash
	}
	if binding != nil {
		code := binding.ReferrerCode
		purchase.ReferrerCode = &code
	}

	err = withStoreRetry(func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(purchase).Error; err != nil {
				return wrapStoreErr(err)
			}
			if binding == nil {
				return nil
			}

			// Every referred purchase counts toward the referrer's volume
			if err := tx.Model(&models.Player{}).
				Where("referral_code = ?", binding.ReferrerCode).
				Update("total_referred_ton", gorm.Expr("total_referred_ton + ?", amountTON)).Error; err != nil {
				return wrapStoreErr(err)
			}

			target := models.InviteStatusValid
			if amountTON >= s.ThresholdTON {
				target = models.InviteStatusEligible
			}
			if err := s.upgradeInviteBucket(tx, binding.ID, binding.ReferrerCode, target); err != nil {
				return err
			}

			// The grant row's unique key makes this exactly-once per pair,
			// no matter how many purchases the buyer makes.
			_, err := s.Rewards.DistributeInTx(tx, binding.ReferrerCode, buyerAddress, &purchase.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🛒 Purchase recorded: %s bought for %.4f TON (referrer: %v)", buyerAddress, amountTON, purchase.ReferrerCode)
	s.Notifier.Notify(buyerAddress, fmt.Sprintf("Purchase of %.4f TON recorded, awaiting settlement", amountTON), "info")
	return purchase, nil
}

// upgradeInviteBucket moves the buyer's binding to the target bucket,
// monotonically (never downgrading an eligible buyer), and shifts the
// referrer's denormalized counters with it. The compare-and-swap on the
// current status makes the counter move exactly once even when purchases
// race each other.
func (s *PurchaseService) upgradeInviteBucket(tx *gorm.DB, bindingID, referrerCode string, target models.InviteStatus) error {
	for attempt := 0; attempt < 2; attempt++ {
		var fresh models.ReferralBinding
		if err := tx.First(&fresh, "id = ?", bindingID).Error; err != nil {
			return wrapStoreErr(err)
		}
		if target.Rank() <= fresh.InviteStatus.Rank() {
			return nil // already at or above the target bucket
		}

		res := tx.Model(&models.ReferralBinding{}).
			Where("id = ? AND invite_status = ?", bindingID, fresh.InviteStatus).
			Update("invite_status", target)
		if res.Error != nil {
			return wrapStoreErr(res.Error)
		}
		if res.RowsAffected == 0 {
			continue // concurrent upgrade won, re-read and re-check
		}

		err := tx.Model(&models.Player{}).
			Where("referral_code = ?", referrerCode).
			Updates(map[string]interface{}{
				bucketColumn(fresh.InviteStatus): gorm.Expr(bucketColumn(fresh.InviteStatus)+" - 1"),
				bucketColumn(target):             gorm.Expr(bucketColumn(target) + " + 1"),
			}).Error
		return wrapStoreErr(err)
	}
	return fmt.Errorf("%w: invite bucket for binding %s", ErrConflict, bindingID)
}

func bucketColumn(status models.InviteStatus) string {
	switch status {
	case models.InviteStatusValid:
		return "valid_invites"
	case models.InviteStatusEligible:
		return "eligible_invites"
	default:
		return "invalid_invites"
	}
}

// SettlePurchase transitions pending → settled and credits the buyer's token
// balance at the rate captured at purchase time. Idempotent: the status
// compare-and-swap makes a second settlement attempt a no-op.
func (s *PurchaseService) SettlePurchase(purchaseID string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.DB.First(&purchase, "id = ?", purchaseID).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	if purchase.Status == models.PurchaseStatusSettled {
		return &purchase, nil
	}

	tokens := purchase.AmountTON / purchase.RateTONPerToken
	now := time.Now()

	err := withStoreRetry(func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Purchase{}).
				Where("id = ? AND status = ?", purchaseID, models.PurchaseStatusPending).
				Updates(map[string]interface{}{
					"status":          models.PurchaseStatusSettled,
					"settled_at":      now,
					"tokens_credited": tokens,
				})
			if res.Error != nil {
				return wrapStoreErr(res.Error)
			}
			if res.RowsAffected == 0 {
				return nil // settled concurrently
			}
			return wrapStoreErr(tx.Model(&models.Player{}).
				Where("wallet_address = ?", purchase.BuyerAddress).
				Update("token_balance", gorm.Expr("token_balance + ?", tokens)).Error)
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.First(&purchase, "id = ?", purchaseID).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	log.Printf("✅ Purchase settled: %s credited %.4f tokens", purchase.BuyerAddress, purchase.TokensCredited)
	s.Notifier.Notify(purchase.BuyerAddress, fmt.Sprintf("Purchase settled: %.4f tokens credited", purchase.TokensCredited), "success")
	return &purchase, nil
}

// SpendTokens deducts from the caller's settled token balance (in-app
// purchases such as summons). Runs through the optimistic atomic-update path.
func (s *PurchaseService) SpendTokens(walletAddress string, amountTokens float64) (*models.Player, error) {
	if amountTokens <= 0 {
		return nil, ErrInvalidAmount
	}
	player, err := s.Ledger.GetPlayerByWallet(walletAddress)
	if err != nil {
		return nil, err
	}
	return s.Ledger.AtomicUpdatePlayer(player.ReferralCode, func(p *models.Player) error {
		if p.TokenBalance < amountTokens {
			return ErrInsufficientBalance
		}
		p.TokenBalance -= amountTokens
		return nil
	})
}

// PendingWithTxSince lists pending purchases that have a transaction hash
// and are still inside the settlement deadline window. Used by the
// settlement worker.
func (s *PurchaseService) PendingWithTxSince(cutoff time.Time) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := s.DB.Where("status = ? AND tx_hash IS NOT NULL AND created_at >= ?",
		models.PurchaseStatusPending, cutoff).
		Order("created_at ASC").Find(&purchases).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return purchases, nil
}

// --- Handlers ---

// BuyEndpoint records a buy intent for the authenticated wallet. A referral
// code supplied here binds on the fly for still-unbound buyers, matching the
// original purchase flow.
func (s *PurchaseService) BuyEndpoint(c *fiber.Ctx) error {
	walletAddress := c.Locals("wallet_address").(string)

	var req struct {
		AmountTON    float64 `json:"amount_ton"`
		TxHash       string  `json:"tx_hash"`
		ReferralCode string  `json:"referral_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.ReferralCode != "" {
		if _, err := s.Referrals.Bind(walletAddress, req.ReferralCode); err != nil && !errors.Is(err, ErrAlreadyBound) {
			return referralErrorResponse(c, err)
		}
	}

	purchase, err := s.RecordPurchase(walletAddress, req.AmountTON, req.TxHash)
	if err != nil {
		return referralErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(purchase)
}

// ListEndpoint returns the authenticated wallet's purchase history
func (s *PurchaseService) ListEndpoint(c *fiber.Ctx) error {
	walletAddress := c.Locals("wallet_address").(string)

	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	var purchases []models.Purchase
	if err := s.DB.Where("buyer_address = ?", walletAddress).
		Order("created_at DESC").Limit(limit).Find(&purchases).Error; err != nil {
		log.Printf("DB Error fetching purchases: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch purchases"})
	}
	return c.JSON(purchases)
}

// SpendEndpoint deducts token balance for the authenticated wallet
func (s *PurchaseService) SpendEndpoint(c *fiber.Ctx) error {
	walletAddress := c.Locals("wallet_address").(string)

	var req struct {
		AmountTokens float64 `json:"amount_tokens"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	player, err := s.SpendTokens(walletAddress, req.AmountTokens)
	if err != nil {
		return referralErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "OK", "token_balance": player.TokenBalance})
}

// SettleEndpoint manually settles a purchase (Admin only, reconciliation)
func (s *PurchaseService) SettleEndpoint(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid purchase ID"})
	}

	purchase, err := s.SettlePurchase(id)
	if err != nil {
		return referralErrorResponse(c, err)
	}
	return c.JSON(purchase)
}
