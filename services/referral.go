// services/referral.go
package services

import (
	"errors"
	"fmt"
	"log"

	"presale-referral-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralService binds buyers to referrers and serves referral stats.
type ReferralService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Notifier *Notifier
}

func NewReferralService(db *gorm.DB, ledger *LedgerService, notifier *Notifier) *ReferralService {
	return &ReferralService{DB: db, Ledger: ledger, Notifier: notifier}
}

// Bind associates a buyer with a referrer exactly once. All invariant checks
// happen here, server-side — nothing is trusted from client-submitted flags.
func (s *ReferralService) Bind(buyerAddress, code string) (*models.ReferralBinding, error) {
	code = NormalizeCode(code)
	if !IsValidCodeFormat(code) {
		return nil, ErrInvalidCode
	}

	// Resolving the buyer also issues its own code lazily on first contact
	buyer, err := s.Ledger.EnsurePlayer(buyerAddress)
	if err != nil {
		return nil, err
	}
	if code == buyer.ReferralCode {
		return nil, ErrSelfReferral
	}

	referrer, err := s.Ledger.GetPlayerByCode(code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownReferrer
		}
		return nil, err
	}

	binding := models.ReferralBinding{
		ID:           uuid.NewString(),
		BuyerAddress: buyerAddress,
		ReferrerCode: referrer.ReferralCode,
		InviteStatus: models.InviteStatusInvalid,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Unique index on buyer_address arbitrates concurrent binds; the
		// loser sees zero rows affected.
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer_address"}},
			DoNothing: true,
		}).Create(&binding)
		if res.Error != nil {
			return wrapStoreErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyBound
		}

		// New binding starts in the invalid bucket (bound, never purchased)
		return wrapStoreErr(tx.Model(&models.Player{}).
			Where("referral_code = ?", referrer.ReferralCode).
			Update("invalid_invites", gorm.Expr("invalid_invites + 1")).Error)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🔗 Bound buyer %s to referrer %s", buyerAddress, referrer.ReferralCode)
	s.Notifier.Notify(buyerAddress, fmt.Sprintf("Referral code %s bound successfully!", referrer.ReferralCode), "success")
	return &binding, nil
}

// BindingFor returns the buyer's binding, or ErrNotFound for unbound buyers.
func (s *ReferralService) BindingFor(buyerAddress string) (*models.ReferralBinding, error) {
	var binding models.ReferralBinding
	if err := s.DB.Where("buyer_address = ?", buyerAddress).First(&binding).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	return &binding, nil
}

// --- Handlers ---

// BindEndpoint binds the authenticated wallet to a referral code
func (s *ReferralService) BindEndpoint(c *fiber.Ctx) error {
	walletAddress := c.Locals("wallet_address").(string)

	var req struct {
		ReferralCode string `json:"referral_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ReferralCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referral_code is required"})
	}

	binding, err := s.Bind(walletAddress, req.ReferralCode)
	if err != nil {
		return referralErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(binding)
}

// StatsEndpoint returns the authenticated wallet's invite buckets and totals
func (s *ReferralService) StatsEndpoint(c *fiber.Ctx) error {
	walletAddress := c.Locals("wallet_address").(string)

	player, err := s.Ledger.EnsurePlayer(walletAddress)
	if err != nil {
		return referralErrorResponse(c, err)
	}

	// Bucket membership (who, not just how many) comes from the bindings
	var invited []models.ReferralBinding
	if err := s.DB.Where("referrer_code = ?", player.ReferralCode).
		Order("bound_at ASC").Find(&invited).Error; err != nil {
		return referralErrorResponse(c, wrapStoreErr(err))
	}

	buckets := map[models.InviteStatus][]string{}
	for _, b := range invited {
		buckets[b.InviteStatus] = append(buckets[b.InviteStatus], b.BuyerAddress)
	}

	return c.JSON(fiber.Map{
		"referral_code":      player.ReferralCode,
		"invalid_invites":    player.InvalidInvites,
		"valid_invites":      player.ValidInvites,
		"eligible_invites":   player.EligibleInvites,
		"total_referred_ton": player.TotalReferredTON,
		"invalid_buyers":     buckets[models.InviteStatusInvalid],
		"valid_buyers":       buckets[models.InviteStatusValid],
		"eligible_buyers":    buckets[models.InviteStatusEligible],
	})
}

// MeEndpoint lazily creates and returns the caller's player record
func (s *ReferralService) MeEndpoint(c *fiber.Ctx) error {
	walletAddress := c.Locals("wallet_address").(string)

	player, err := s.Ledger.EnsurePlayer(walletAddress)
	if err != nil {
		return referralErrorResponse(c, err)
	}
	return c.JSON(player)
}

// GetPlayerByCodeEndpoint is the admin lookup by referral code
func (s *ReferralService) GetPlayerByCodeEndpoint(c *fiber.Ctx) error {
	code := c.Params("code")
	if !IsValidCodeFormat(code) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid referral code"})
	}
	player, err := s.Ledger.GetPlayerByCode(code)
	if err != nil {
		return referralErrorResponse(c, err)
	}
	return c.JSON(player)
}

// referralErrorResponse maps the service error taxonomy onto HTTP statuses.
// Validation failures are terminal 4xx; retryable failures surface as 503.
func referralErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrSelfReferral), errors.Is(err, ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrAlreadyBound):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInsufficientBalance):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUnknownReferrer), errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrConflict), errors.Is(err, ErrStoreUnavailable):
		log.Printf("⚠️ Retryable failure surfaced to client: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "The system is temporarily unavailable, please retry"})
	default:
		log.Printf("DB Error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
	}
}
