package services

import (
	"testing"

	"presale-referral-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPurchaseRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.purchases.RecordPurchase("AAAAAAAA1111", 0, "")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.purchases.RecordPurchase("AAAAAAAA1111", -1, "")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestUnboundPurchaseCreatesRecordOnly(t *testing.T) {
	env := newTestEnv(t)

	purchase, err := env.purchases.RecordPurchase("AAAAAAAA1111", 200, "txabc")
	require.NoError(t, err)
	assert.Nil(t, purchase.ReferrerCode)
	assert.Equal(t, models.PurchaseStatusPending, purchase.Status)

	// No referrer update, no reward distributed
	var grants int64
	require.NoError(t, env.db.Model(&models.RewardGrant{}).Count(&grants).Error)
	assert.Zero(t, grants)

	buyer, err := env.ledger.GetPlayerByWallet("AAAAAAAA1111")
	require.NoError(t, err)
	assert.Zero(t, buyer.RewardBalance)
	assert.Zero(t, buyer.TokenBalance, "pending purchases never affect balances")
}

// The end-to-end referred-buyer walkthrough: bind, small purchase, big
// purchase. Buckets upgrade monotonically and the pair reward lands once.
func TestReferredBuyerLifecycle(t *testing.T) {
	env := newTestEnv(t)

	referrer, err := env.ledger.EnsurePlayer("BBBBBBBB2222")
	require.NoError(t, err)

	_, err = env.referrals.Bind("AAAAAAAA1111", referrer.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusInvalid, bindingStatus(t, env.db, "AAAAAAAA1111"))

	// First purchase below the 2 TON eligibility threshold → valid bucket
	p1, err := env.purchases.RecordPurchase("AAAAAAAA1111", 1, "tx1")
	require.NoError(t, err)
	require.NotNil(t, p1.ReferrerCode)
	assert.Equal(t, referrer.ReferralCode, *p1.ReferrerCode)

	assert.Equal(t, models.InviteStatusValid, bindingStatus(t, env.db, "AAAAAAAA1111"))
	r, err := env.ledger.GetPlayerByCode(referrer.ReferralCode)
	require.NoError(t, err)
	assert.Zero(t, r.InvalidInvites)
	assert.Equal(t, int64(1), r.ValidInvites)
	assert.Zero(t, r.EligibleInvites)
	assert.Equal(t, float64(1), r.TotalReferredTON)

	// Pair reward granted to both sides
	assert.Equal(t, float64(5), r.RewardBalance)
	buyer, err := env.ledger.GetPlayerByWallet("AAAAAAAA1111")
	require.NoError(t, err)
	assert.Equal(t, float64(5), buyer.RewardBalance)

	// Second purchase at/above the threshold → eligible bucket, no second reward
	_, err = env.purchases.RecordPurchase("AAAAAAAA1111", 3, "tx2")
	require.NoError(t, err)

	assert.Equal(t, models.InviteStatusEligible, bindingStatus(t, env.db, "AAAAAAAA1111"))
	r, err = env.ledger.GetPlayerByCode(referrer.ReferralCode)
	require.NoError(t, err)
	assert.Zero(t, r.InvalidInvites)
	assert.Zero(t, r.ValidInvites)
	assert.Equal(t, int64(1), r.EligibleInvites)
	assert.Equal(t, float64(4), r.TotalReferredTON)
	assert.Equal(t, float64(5), r.RewardBalance, "reward is once per pair")

	var grants int64
	require.NoError(t, env.db.Model(&models.RewardGrant{}).Count(&grants).Error)
	assert.Equal(t, int64(1), grants)
}

func TestEligibleBuyerNeverRegresses(t *testing.T) {
	env := newTestEnv(t)

	referrer, err := env.ledger.EnsurePlayer("BBBBBBBB2222")
	require.NoError(t, err)
	_, err = env.referrals.Bind("AAAAAAAA1111", referrer.ReferralCode)
	require.NoError(t, err)

	_, err = env.purchases.RecordPurchase("AAAAAAAA1111", 10, "tx1")
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusEligible, bindingStatus(t, env.db, "AAAAAAAA1111"))

	// A later smaller purchase must not demote the buyer
	_, err = env.purchases.RecordPurchase("AAAAAAAA1111", 0.5, "tx2")
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusEligible, bindingStatus(t, env.db, "AAAAAAAA1111"))

	r, err := env.ledger.GetPlayerByCode(referrer.ReferralCode)
	require.NoError(t, err)
	assert.Zero(t, r.ValidInvites)
	assert.Equal(t, int64(1), r.EligibleInvites)
}

func TestInviteBucketsArePartition(t *testing.T) {
	env := newTestEnv(t)

	referrer, err := env.ledger.EnsurePlayer("BBBBBBBB2222")
	require.NoError(t, err)

	buyers := []string{"AAAAAAAA1111", "CCCCCCCC3333", "DDDDDDDD4444"}
	for _, b := range buyers {
		_, err = env.referrals.Bind(b, referrer.ReferralCode)
		require.NoError(t, err)
	}
	// One stays invalid, one goes valid, one goes eligible
	_, err = env.purchases.RecordPurchase("CCCCCCCC3333", 1, "")
	require.NoError(t, err)
	_, err = env.purchases.RecordPurchase("DDDDDDDD4444", 5, "")
	require.NoError(t, err)

	r, err := env.ledger.GetPlayerByCode(referrer.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.InvalidInvites)
	assert.Equal(t, int64(1), r.ValidInvites)
	assert.Equal(t, int64(1), r.EligibleInvites)

	// Each buyer sits in exactly one bucket
	statuses := map[models.InviteStatus]int{}
	for _, b := range buyers {
		statuses[bindingStatus(t, env.db, b)]++
	}
	assert.Equal(t, 1, statuses[models.InviteStatusInvalid])
	assert.Equal(t, 1, statuses[models.InviteStatusValid])
	assert.Equal(t, 1, statuses[models.InviteStatusEligible])
}

func TestSettlementCreditsTokens(t *testing.T) {
	env := newTestEnv(t)

	purchase, err := env.purchases.RecordPurchase("AAAAAAAA1111", 2, "tx1")
	require.NoError(t, err)

	settled, err := env.purchases.SettlePurchase(purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatusSettled, settled.Status)
	require.NotNil(t, settled.SettledAt)
	// 2 TON at the default 0.02 TON/token rate
	assert.InDelta(t, 100, settled.TokensCredited, 1e-9)

	buyer, err := env.ledger.GetPlayerByWallet("AAAAAAAA1111")
	require.NoError(t, err)
	assert.InDelta(t, 100, buyer.TokenBalance, 1e-9)

	// Settling again is a no-op, not a double credit
	_, err = env.purchases.SettlePurchase(purchase.ID)
	require.NoError(t, err)
	buyer, err = env.ledger.GetPlayerByWallet("AAAAAAAA1111")
	require.NoError(t, err)
	assert.InDelta(t, 100, buyer.TokenBalance, 1e-9)
}

func TestSettlementUsesRoundRate(t *testing.T) {
	env := newTestEnv(t)

	round := models.PresaleRound{
		ID:              "11111111-1111-1111-1111-111111111111",
		Name:            "Round Two",
		Slug:            "round-two",
		RateTONPerToken: 0.04,
		Status:          models.RoundStatusActive,
	}
	require.NoError(t, env.db.Create(&round).Error)

	purchase, err := env.purchases.RecordPurchase("AAAAAAAA1111", 2, "tx1")
	require.NoError(t, err)
	assert.Equal(t, 0.04, purchase.RateTONPerToken)

	settled, err := env.purchases.SettlePurchase(purchase.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50, settled.TokensCredited, 1e-9)
}

func TestSpendTokens(t *testing.T) {
	env := newTestEnv(t)

	purchase, err := env.purchases.RecordPurchase("AAAAAAAA1111", 2, "tx1")
	require.NoError(t, err)
	_, err = env.purchases.SettlePurchase(purchase.ID)
	require.NoError(t, err)

	player, err := env.purchases.SpendTokens("AAAAAAAA1111", 40)
	require.NoError(t, err)
	assert.InDelta(t, 60, player.TokenBalance, 1e-9)

	_, err = env.purchases.SpendTokens("AAAAAAAA1111", 1000)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = env.purchases.SpendTokens("AAAAAAAA1111", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}
