package services

import (
	"testing"

	"presale-referral-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAtomicUpdatePlayerAppliesChange(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.ledger.EnsurePlayer("UQWALLETONE1")
	require.NoError(t, err)

	updated, err := env.ledger.AtomicUpdatePlayer(p.ReferralCode, func(pl *models.Player) error {
		pl.RewardBalance += 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(5), updated.RewardBalance)
	assert.Equal(t, p.Version+1, updated.Version)

	fresh, err := env.ledger.GetPlayerByCode(p.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, float64(5), fresh.RewardBalance)
}

func TestAtomicUpdatePlayerRetriesOnConflict(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.ledger.EnsurePlayer("UQWALLETONE1")
	require.NoError(t, err)

	calls := 0
	updated, err := env.ledger.AtomicUpdatePlayer(p.ReferralCode, func(pl *models.Player) error {
		calls++
		if calls == 1 {
			// Sneak a concurrent write in between the read and the
			// version-guarded update of this attempt
			require.NoError(t, env.db.Model(&models.Player{}).
				Where("referral_code = ?", p.ReferralCode).
				Update("version", gorm.Expr("version + 1")).Error)
		}
		pl.RewardBalance += 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "first attempt must lose the race and retry")
	assert.Equal(t, float64(1), updated.RewardBalance, "the change applies exactly once")
}

func TestAtomicUpdatePlayerExhaustsRetries(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.ledger.EnsurePlayer("UQWALLETONE1")
	require.NoError(t, err)

	calls := 0
	_, err = env.ledger.AtomicUpdatePlayer(p.ReferralCode, func(pl *models.Player) error {
		calls++
		// Every attempt loses the race
		require.NoError(t, env.db.Model(&models.Player{}).
			Where("referral_code = ?", p.ReferralCode).
			Update("version", gorm.Expr("version + 1")).Error)
		pl.RewardBalance += 1
		return nil
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, atomicRetryLimit, calls)

	fresh, err := env.ledger.GetPlayerByCode(p.ReferralCode)
	require.NoError(t, err)
	assert.Zero(t, fresh.RewardBalance, "no partial write may land after exhaustion")
}

func TestAtomicUpdatePlayerUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.AtomicUpdatePlayer("ZZZZZZZZ", func(pl *models.Player) error {
		return nil
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsurePlayerCodeRaceRederives(t *testing.T) {
	env := newTestEnv(t)

	// A rival wallet sharing the 8-char prefix claims the base code between
	// the availability check and the insert
	rivalSignedUp := false
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("rival_signup", func(tx *gorm.DB) {
		if rivalSignedUp {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.Player); !ok {
			return
		}
		rivalSignedUp = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO players (id, wallet_address, referral_code, version) VALUES (?, ?, ?, 0)",
			uuid.NewString(), "AAAAAAAA9999", "AAAAAAAA").Error)
	}))

	player, err := env.ledger.EnsurePlayer("AAAAAAAA1111")
	require.NoError(t, err)
	assert.NotEqual(t, "AAAAAAAA", player.ReferralCode, "loser of the race must re-derive")
	assert.True(t, IsValidCodeFormat(player.ReferralCode))

	rival, err := env.ledger.GetPlayerByCode("AAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAA9999", rival.WalletAddress)
}

func TestRecordRewardIfAbsent(t *testing.T) {
	env := newTestEnv(t)

	granted, err := env.ledger.RecordRewardIfAbsent(env.db, "AAAAAAAA", "UQBUYER11111", 5, nil)
	require.NoError(t, err)
	assert.True(t, granted)

	// Same pair again is a conflicting-key no-op
	granted, err = env.ledger.RecordRewardIfAbsent(env.db, "AAAAAAAA", "UQBUYER11111", 5, nil)
	require.NoError(t, err)
	assert.False(t, granted)

	var count int64
	require.NoError(t, env.db.Model(&models.RewardGrant{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
