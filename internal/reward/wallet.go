package reward

import (
	"context"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store"
	"github.com/muzeer/rewards/internal/store/schema"
)

// PublicConfig is the client-facing subset of the token control. Abuse
// thresholds stay server-side.
type PublicConfig struct {
	Symbol                        string `json:"symbol"`
	QualifiedSecondsPerToken      int64  `json:"qualified_seconds_per_token"`
	MaxSecondsPerEvent            int64  `json:"max_seconds_per_event"`
	MaxDailyQualifiedSeconds      int64  `json:"max_daily_qualified_seconds"`
	StreakMaxDays                 int64  `json:"streak_max_days"`
	StreakBonusPerDayPercent      int64  `json:"streak_bonus_per_day_percent"`
	QuestDailyListenSecondsTarget int64  `json:"quest_daily_listen_seconds_target"`
	QuestDailyUniqueArtistsTarget int64  `json:"quest_daily_unique_artists_target"`
	QuestDailyTokenReward         int64  `json:"quest_daily_token_reward"`
	RewardsPaused                 bool   `json:"rewards_paused"`
}

// GetConfig exposes the public slice of the live control
func (e *Engine) GetConfig(ctx context.Context) (*PublicConfig, error) {
	ctrl, err := e.control.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &PublicConfig{
		Symbol:                        ctrl.Symbol,
		QualifiedSecondsPerToken:      ctrl.QualifiedSecondsPerToken,
		MaxSecondsPerEvent:            ctrl.MaxSecondsPerEvent,
		MaxDailyQualifiedSeconds:      ctrl.MaxDailyQualifiedSeconds,
		StreakMaxDays:                 ctrl.StreakMaxDays,
		StreakBonusPerDayPercent:      ctrl.StreakBonusPerDayPercent,
		QuestDailyListenSecondsTarget: ctrl.QuestDailyListenSecondsTarget,
		QuestDailyUniqueArtistsTarget: ctrl.QuestDailyUniqueArtistsTarget,
		QuestDailyTokenReward:         ctrl.QuestDailyTokenReward,
		RewardsPaused:                 ctrl.RewardsPaused,
	}, nil
}

// GetWallet assembles the wallet read model without mutating state. Users
// who never produced a listen event get an empty wallet at the live
// control's symbol and caps.
func (e *Engine) GetWallet(ctx context.Context, userID string) (*WalletSnapshot, error) {
	ctrl, err := e.control.Get(ctx)
	if err != nil {
		return nil, err
	}

	todayKey := domain.DayKeyFor(e.clock.Now().UTC())

	snapshot := &WalletSnapshot{
		Symbol:                ctrl.Symbol,
		DailyRemainingSeconds: ctrl.MaxDailyQualifiedSeconds,
		RewardsPaused:         ctrl.RewardsPaused,
		Tier:                  domain.TierBronze,
		Quests:                BuildDailyQuests(schema.NewDailyCounters(todayKey), todayKey, ctrl),
		Catalog:               Catalog(),
	}

	acc, err := e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return snapshot, nil
	}

	daily, err := acc.DailyCounters()
	if err != nil {
		return nil, err
	}
	if daily.DayKey != todayKey {
		daily = schema.NewDailyCounters(todayKey)
	}

	claims, err := acc.Claims()
	if err != nil {
		return nil, err
	}

	snapshot.Symbol = acc.Symbol
	snapshot.Balance = acc.Balance
	snapshot.TotalEarned = acc.TotalEarned
	snapshot.PendingQualifiedSeconds = acc.PendingQualifiedSeconds
	snapshot.EstimatedPendingTokens = estimatePendingTokens(acc.PendingQualifiedSeconds, ctrl.QualifiedSecondsPerToken)
	snapshot.RewardedSecondsToday = daily.RewardedSeconds
	snapshot.DailyRemainingSeconds = remainingToday(ctrl.MaxDailyQualifiedSeconds, daily.RewardedSeconds)
	snapshot.StreakDays = acc.StreakDays
	snapshot.SuspiciousScore = acc.SuspiciousScore
	snapshot.Tier = domain.TierFor(acc.TotalEarned)
	snapshot.Quests = BuildDailyQuests(daily, todayKey, ctrl)
	snapshot.RecentClaims = topClaims(claims, domain.WalletRecentClaims)
	return snapshot, nil
}

// GetLedger returns the user's newest ledger entries
func (e *Engine) GetLedger(ctx context.Context, userID string, limit int) ([]*schema.LedgerEntry, error) {
	return e.store.ListLedgerEntries(ctx, userID, limit)
}

// GetLeaderboard ranks earners for a season by positive reward and quest
// deltas. An empty season key means the current season.
func (e *Engine) GetLeaderboard(ctx context.Context, seasonKey string, limit int) (string, []store.LeaderboardRow, error) {
	if seasonKey == "" {
		seasonKey = domain.SeasonKeyFor(e.clock.Now().UTC())
	}
	if !domain.IsValidSeasonKey(seasonKey) {
		return "", nil, domain.ErrInvalidSeasonKey
	}
	rows, err := e.store.GetSeasonLeaderboard(ctx, seasonKey, limit)
	if err != nil {
		return "", nil, err
	}
	return seasonKey, rows, nil
}
