// services/round.go
package services

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"presale-referral-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// DefaultRateTONPerToken is the presale price used when no round is active:
// 0.02 TON = 1 token.
const DefaultRateTONPerToken = 0.02

// RoundService manages presale rounds. The active round is the price feed
// for the purchase recorder.
type RoundService struct {
	DB          *gorm.DB
	defaultRate float64
}

func NewRoundService(db *gorm.DB) *RoundService {
	rate := DefaultRateTONPerToken
	if v := os.Getenv("DEFAULT_RATE_TON_PER_TOKEN"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			log.Printf("⚠️ Invalid DEFAULT_RATE_TON_PER_TOKEN=%q, using %v", v, DefaultRateTONPerToken)
		} else {
			rate = parsed
		}
	}
	return &RoundService{DB: db, defaultRate: rate}
}

// ActiveRate returns the exchange rate (TON per token) of the active round,
// falling back to the configured default so purchases never block on round
// bookkeeping.
func (s *RoundService) ActiveRate() float64 {
	round, err := s.ActiveRound()
	if err != nil {
		return s.defaultRate
	}
	return round.RateTONPerToken
}

func (s *RoundService) ActiveRound() (*models.PresaleRound, error) {
	var round models.PresaleRound
	if err := s.DB.Where("status = ?", models.RoundStatusActive).
		Order("created_at DESC").First(&round).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	return &round, nil
}

// StartRoundScheduler activates scheduled rounds and closes ended ones.
func (s *RoundService) StartRoundScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()

			var due []models.PresaleRound
			if err := s.DB.Where("status = ? AND start_at <= ?", models.RoundStatusScheduled, now).
				Find(&due).Error; err != nil {
				log.Printf("[RoundScheduler] DB error: %v", err)
				return
			}
			for _, r := range due {
				r.Status = models.RoundStatusActive
				if err := s.DB.Save(&r).Error; err != nil {
					log.Printf("[RoundScheduler] Failed to activate round %s: %v", r.ID, err)
				} else {
					log.Printf("✅ Presale round activated: %s (%.4f TON/token)", r.Name, r.RateTONPerToken)
				}
			}

			var ended []models.PresaleRound
			if err := s.DB.Where("status = ? AND end_at IS NOT NULL AND end_at <= ?", models.RoundStatusActive, now).
				Find(&ended).Error; err != nil {
				log.Printf("[RoundScheduler] DB error: %v", err)
				return
			}
			for _, r := range ended {
				r.Status = models.RoundStatusClosed
				if err := s.DB.Save(&r).Error; err != nil {
					log.Printf("[RoundScheduler] Failed to close round %s: %v", r.ID, err)
				} else {
					log.Printf("✅ Presale round closed: %s", r.Name)
				}
			}
		}),
	)
}

// --- Handlers ---

// GetActiveRoundEndpoint is public: the front end reads the current price here
func (s *RoundService) GetActiveRoundEndpoint(c *fiber.Ctx) error {
	round, err := s.ActiveRound()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(fiber.Map{
				"active":             false,
				"rate_ton_per_token": s.defaultRate,
			})
		}
		return referralErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"active":             true,
		"round":              round,
		"rate_ton_per_token": round.RateTONPerToken,
	})
}

// CreateRoundEndpoint creates a presale round (Admin only)
func (s *RoundService) CreateRoundEndpoint(c *fiber.Ctx) error {
	var req struct {
		Name            string             `json:"name"`
		RateTONPerToken float64            `json:"rate_ton_per_token"`
		StartAt         *time.Time         `json:"start_at"`
		EndAt           *time.Time         `json:"end_at"`
		Status          models.RoundStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.RateTONPerToken <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rate_ton_per_token must be positive"})
	}

	status := req.Status
	switch status {
	case "":
		status = models.RoundStatusDraft
	case models.RoundStatusDraft, models.RoundStatusScheduled, models.RoundStatusActive, models.RoundStatusClosed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	round := models.PresaleRound{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Slug:            slug.Make(req.Name),
		RateTONPerToken: req.RateTONPerToken,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Status:          status,
	}
	if err := s.DB.Create(&round).Error; err != nil {
		log.Printf("DB Error creating round: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create round"})
	}
	return c.Status(fiber.StatusCreated).JSON(round)
}

// UpdateRoundStatusEndpoint moves a round through its lifecycle (Admin only)
func (s *RoundService) UpdateRoundStatusEndpoint(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid round ID"})
	}

	var req struct {
		Status models.RoundStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.Status {
	case models.RoundStatusDraft, models.RoundStatusScheduled, models.RoundStatusActive, models.RoundStatusClosed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	var round models.PresaleRound
	if err := s.DB.First(&round, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Round not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	round.Status = req.Status
	if err := s.DB.Save(&round).Error; err != nil {
		log.Printf("DB Error updating round status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update round status"})
	}
	return c.JSON(round)
}

// GetAllRoundsEndpoint lists rounds (Admin only)
func (s *RoundService) GetAllRoundsEndpoint(c *fiber.Ctx) error {
	var rounds []models.PresaleRound
	if err := s.DB.Order("created_at DESC").Find(&rounds).Error; err != nil {
		log.Printf("DB Error fetching rounds: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch rounds"})
	}
	return c.JSON(rounds)
}
