package services

import (
	"context"
	"fmt"
	"testing"

	"presale-referral-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRankedPlayer(t *testing.T, env *testEnv, code string, valid, eligible, invalid int64, volume float64) {
	t.Helper()
	p := models.Player{
		ID:               uuid.NewString(),
		WalletAddress:    code + "WALLET",
		ReferralCode:     code,
		InvalidInvites:   invalid,
		ValidInvites:     valid,
		EligibleInvites:  eligible,
		TotalReferredTON: volume,
	}
	require.NoError(t, env.db.Create(&p).Error)
}

func TestTopNEmptyStore(t *testing.T) {
	env := newTestEnv(t)

	entries, err := env.leaderboard.TopN(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestTopNOrderingAndTruncation(t *testing.T) {
	env := newTestEnv(t)

	seedRankedPlayer(t, env, "CODE0001", 2, 1, 0, 10) // score 3
	seedRankedPlayer(t, env, "CODE0002", 5, 0, 2, 1)  // score 5
	seedRankedPlayer(t, env, "CODE0003", 1, 2, 0, 50) // score 3, bigger volume
	seedRankedPlayer(t, env, "CODE0004", 0, 0, 4, 99) // invalid only, still listed
	seedRankedPlayer(t, env, "CODE0005", 0, 0, 0, 0)  // never referred, excluded

	entries, err := env.leaderboard.TopN(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "CODE0002", entries[0].ReferralCode)
	assert.Equal(t, int64(5), entries[0].Score)
	// Equal scores ordered by referred volume
	assert.Equal(t, "CODE0003", entries[1].ReferralCode)
	assert.Equal(t, "CODE0001", entries[2].ReferralCode)
	assert.Equal(t, "CODE0004", entries[3].ReferralCode)
	assert.Zero(t, entries[3].Score)

	top2, err := env.leaderboard.TopN(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top2, 2)
	assert.Equal(t, "CODE0002", top2[0].ReferralCode)
}

func TestCachedTopNClampsLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 12; i++ {
		seedRankedPlayer(t, env, fmt.Sprintf("CODE%04d", i), int64(20-i), 0, 0, float64(i))
	}
	require.NoError(t, env.leaderboard.Snapshot(context.Background()))

	// Zero and negative limits fall back to the default, never the full table
	assert.Len(t, env.leaderboard.cachedTopN(0), leaderboardDefaultLimit)
	assert.Len(t, env.leaderboard.cachedTopN(-3), leaderboardDefaultLimit)
	assert.Len(t, env.leaderboard.cachedTopN(5), 5)
}

func TestSnapshotFeedsCachedRanking(t *testing.T) {
	env := newTestEnv(t)

	seedRankedPlayer(t, env, "CODE0001", 3, 1, 0, 20)
	seedRankedPlayer(t, env, "CODE0002", 1, 0, 0, 5)

	require.NoError(t, env.leaderboard.Snapshot(context.Background()))

	cached := env.leaderboard.cachedTopN(10)
	require.Len(t, cached, 2)
	assert.Equal(t, "CODE0001", cached[0].ReferralCode)
	assert.Equal(t, int64(4), cached[0].Score)

	// Re-snapshot after the ranking changed replaces the materialization
	require.NoError(t, env.db.Model(&models.Player{}).
		Where("referral_code = ?", "CODE0002").
		Update("valid_invites", 10).Error)
	require.NoError(t, env.leaderboard.Snapshot(context.Background()))

	cached = env.leaderboard.cachedTopN(10)
	require.Len(t, cached, 2)
	assert.Equal(t, "CODE0002", cached[0].ReferralCode)
}
