package reward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzeer/rewards/internal/domain"
)

func TestGetConfig(t *testing.T) {
	f := newEngineFixture(t, testControl())

	cfg, err := f.engine.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MUZR", cfg.Symbol)
	assert.Equal(t, int64(180), cfg.QualifiedSecondsPerToken)
	assert.Equal(t, int64(60), cfg.MaxSecondsPerEvent)
	assert.Equal(t, int64(7200), cfg.MaxDailyQualifiedSeconds)
	assert.Equal(t, int64(5), cfg.QuestDailyTokenReward)
	assert.False(t, cfg.RewardsPaused)
}

func TestGetWalletUnknownUser(t *testing.T) {
	f := newEngineFixture(t, testControl())

	wallet, err := f.engine.GetWallet(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "MUZR", wallet.Symbol)
	assert.Equal(t, int64(0), wallet.Balance)
	assert.Equal(t, int64(7200), wallet.DailyRemainingSeconds)
	assert.Equal(t, domain.TierBronze, wallet.Tier)
	assert.Len(t, wallet.Quests, 2)
	assert.Len(t, wallet.Catalog, 3)
	assert.Empty(t, wallet.RecentClaims)
}

func TestGetWalletAfterListening(t *testing.T) {
	f := newEngineFixture(t, testControl())

	f.submit(t, "u1", "Aurora", "Slowdive", 60)
	f.clock.Advance(60 * time.Second)
	f.submit(t, "u1", "Alison", "Slowdive", 60)

	wallet, err := f.engine.GetWallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), wallet.PendingQualifiedSeconds)
	assert.InDelta(t, 0.6667, wallet.EstimatedPendingTokens, 0.0001)
	assert.Equal(t, int64(120), wallet.RewardedSecondsToday)
	assert.Equal(t, int64(7080), wallet.DailyRemainingSeconds)
	assert.Equal(t, int64(1), wallet.StreakDays)
	assert.False(t, wallet.RewardsPaused)

	// A stale day reads as a fresh one without mutating anything
	f.clock.Advance(24 * time.Hour)
	wallet, err = f.engine.GetWallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.RewardedSecondsToday)
	assert.Equal(t, int64(7200), wallet.DailyRemainingSeconds)
	assert.Equal(t, int64(120), wallet.PendingQualifiedSeconds)
}

func TestGetLedger(t *testing.T) {
	f := newEngineFixture(t, testControl())
	seedAccount(t, f, "u1", 40)

	_, err := f.engine.Spend(context.Background(), "u1", "hd-audio-24h")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.engine.Spend(context.Background(), "u1", "queue-priority-24h")
	require.NoError(t, err)

	entries, err := f.engine.GetLedger(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first
	assert.Equal(t, int64(-8), entries[0].Delta)
	assert.Equal(t, int64(-12), entries[1].Delta)
}

func TestGetLeaderboard(t *testing.T) {
	defaults := testControl()
	defaults.QualifiedSecondsPerToken = 60
	f := newEngineFixture(t, defaults)

	f.submit(t, "alice", "Aurora", "Slowdive", 60)
	f.clock.Advance(60 * time.Second)
	f.submit(t, "alice", "Alison", "Slowdive", 60)
	f.clock.Advance(60 * time.Second)
	f.submit(t, "bob", "Only Shallow", "My Bloody Valentine", 60)

	season, rows, err := f.engine.GetLeaderboard(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, "2025-06", season)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, int64(2), rows[0].Tokens)
	assert.Equal(t, "bob", rows[1].UserID)
	assert.Equal(t, int64(1), rows[1].Tokens)

	// Explicit season with no entries is empty, not an error
	_, rows, err = f.engine.GetLeaderboard(context.Background(), "2024-01", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, _, err = f.engine.GetLeaderboard(context.Background(), "2025-13", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidSeasonKey)
}
