package services

import (
	"fmt"
	"strings"
	"testing"

	"presale-referral-system/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database per test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	// sqlite allows one writer; a single connection keeps concurrent test
	// goroutines queued at the pool instead of failing with lock errors
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Player{},
		&models.ReferralBinding{},
		&models.Purchase{},
		&models.RewardGrant{},
		&models.PresaleRound{},
		&models.LeaderboardSnapshot{},
		&models.Notification{},
	))
	return db
}

type testEnv struct {
	db          *gorm.DB
	ledger      *LedgerService
	referrals   *ReferralService
	rewards     *RewardService
	rounds      *RoundService
	purchases   *PurchaseService
	leaderboard *LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	notifier := NewNotifier(db)
	ledger := NewLedgerService(db)
	referrals := NewReferralService(db, ledger, notifier)
	rewards := NewRewardService(db, ledger, notifier)
	rounds := NewRoundService(db)
	purchases := NewPurchaseService(db, ledger, referrals, rewards, rounds, notifier)
	return &testEnv{
		db:          db,
		ledger:      ledger,
		referrals:   referrals,
		rewards:     rewards,
		rounds:      rounds,
		purchases:   purchases,
		leaderboard: NewLeaderboardService(db),
	}
}

// bindingStatus reads the invite bucket a buyer currently sits in.
func bindingStatus(t *testing.T, db *gorm.DB, buyer string) models.InviteStatus {
	t.Helper()
	var binding models.ReferralBinding
	require.NoError(t, db.Where("buyer_address = ?", buyer).First(&binding).Error)
	return binding.InviteStatus
}
