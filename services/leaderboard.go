// services/leaderboard.go
package services

import (
	"context"
	"log"
	"time"

	"presale-referral-system/models"
	"presale-referral-system/utils"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	leaderboardDefaultLimit = 10
	leaderboardMaxLimit     = 100
	leaderboardQueryTimeout = 5 * time.Second
	snapshotSize            = 100
)

// LeaderboardEntry is the public ranking row. Score is valid + eligible
// invites; total referred volume breaks ties.
type LeaderboardEntry struct {
	ReferralCode     string  `json:"referral_code"`
	ValidInvites     int64   `json:"valid_invites"`
	EligibleInvites  int64   `json:"eligible_invites"`
	Score            int64   `json:"score"`
	TotalReferredTON float64 `json:"total_referred_ton"`
}

// LeaderboardService ranks players by referral performance.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

func clampLeaderboardLimit(n int) int {
	if n <= 0 {
		return leaderboardDefaultLimit
	}
	if n > leaderboardMaxLimit {
		return leaderboardMaxLimit
	}
	return n
}

// TopN returns up to n entries, descending by valid+eligible count, ties
// broken by total referred volume, then referral code for a stable order.
// An empty store yields an empty slice, never an error.
func (s *LeaderboardService) TopN(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	n = clampLeaderboardLimit(n)

	entries := make([]LeaderboardEntry, 0, n)
	err := s.DB.WithContext(ctx).Model(&models.Player{}).
		Select("referral_code, valid_invites, eligible_invites, valid_invites + eligible_invites AS score, total_referred_ton").
		Where("invalid_invites + valid_invites + eligible_invites > 0").
		Order("score DESC").
		Order("total_referred_ton DESC").
		Order("referral_code ASC").
		Limit(n).
		Scan(&entries).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return entries, nil
}

// cachedTopN serves the last snapshot — the stale-but-fast fallback when the
// live query times out.
func (s *LeaderboardService) cachedTopN(n int) []LeaderboardEntry {
	var rows []models.LeaderboardSnapshot
	if err := s.DB.Order("rank ASC").Limit(clampLeaderboardLimit(n)).Find(&rows).Error; err != nil {
		return []LeaderboardEntry{}
	}
	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, LeaderboardEntry{
			ReferralCode:     r.ReferralCode,
			ValidInvites:     r.ValidInvites,
			EligibleInvites:  r.EligibleInvites,
			Score:            r.ValidInvites + r.EligibleInvites,
			TotalReferredTON: r.TotalReferredTON,
		})
	}
	return entries
}

// Snapshot materializes the current top rankings and, when R2 is configured,
// publishes them for the static front end.
func (s *LeaderboardService) Snapshot(ctx context.Context) error {
	entries, err := s.TopN(ctx, snapshotSize)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.LeaderboardSnapshot{}).Error; err != nil {
			return err
		}
		for i, e := range entries {
			row := models.LeaderboardSnapshot{
				ID:               uuid.NewString(),
				Rank:             i + 1,
				ReferralCode:     e.ReferralCode,
				ValidInvites:     e.ValidInvites,
				EligibleInvites:  e.EligibleInvites,
				TotalReferredTON: e.TotalReferredTON,
				CapturedAt:       now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStoreErr(err)
	}

	if utils.R2Enabled() {
		if url, err := utils.UploadJSONToR2("leaderboard/top.json", fiber.Map{
			"captured_at": now,
			"entries":     entries,
		}); err != nil {
			log.Printf("⚠️ Failed to publish leaderboard snapshot to R2: %v", err)
		} else {
			log.Printf("📤 Leaderboard snapshot published: %s", url)
		}
	}
	return nil
}

// StartSnapshotScheduler refreshes the materialized ranking every minute.
func (s *LeaderboardService) StartSnapshotScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), leaderboardQueryTimeout)
			defer cancel()
			if err := s.Snapshot(ctx); err != nil {
				log.Printf("[LeaderboardScheduler] Snapshot failed: %v", err)
			}
		}),
	)
}

// --- Handlers ---

// TopNEndpoint serves the public leaderboard. A timed-out live query
// degrades to the cached snapshot (possibly empty) instead of blocking.
func (s *LeaderboardService) TopNEndpoint(c *fiber.Ctx) error {
	n := clampLeaderboardLimit(c.QueryInt("limit", leaderboardDefaultLimit))

	ctx, cancel := context.WithTimeout(c.Context(), leaderboardQueryTimeout)
	defer cancel()

	entries, err := s.TopN(ctx, n)
	if err != nil {
		log.Printf("⚠️ Live leaderboard query failed, serving cached snapshot: %v", err)
		return c.JSON(fiber.Map{"entries": s.cachedTopN(n), "stale": true})
	}
	return c.JSON(fiber.Map{"entries": entries, "stale": false})
}
