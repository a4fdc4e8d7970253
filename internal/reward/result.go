package reward

import (
	"math"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store/schema"
)

// Quest is a derived daily objective; quests are never stored, only
// recomputed from the day's counters and the live control.
type Quest struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Target    int64  `json:"target"`
	Progress  int64  `json:"progress"`
	Reward    int64  `json:"reward"`
	Completed bool   `json:"completed"`
	Claimed   bool   `json:"claimed"`
}

// ListenEventResult is the full telemetry returned for one listen event
type ListenEventResult struct {
	RewardedTokens int64 `json:"rewarded_tokens"`
	// Reason is set on zero-reward outcomes; empty when seconds accrued
	Reason        domain.ZeroRewardReason `json:"reason,omitempty"`
	RewardsPaused bool                    `json:"rewards_paused,omitempty"`

	Symbol                  string  `json:"symbol"`
	Balance                 int64   `json:"balance"`
	TotalEarned             int64   `json:"total_earned"`
	PendingQualifiedSeconds int64   `json:"pending_qualified_seconds"`
	EstimatedPendingTokens  float64 `json:"estimated_pending_tokens"`

	QualifiedSecondsAdded int64 `json:"qualified_seconds_added"`
	EffectiveSecondsAdded int64 `json:"effective_seconds_added"`
	RewardedSecondsToday  int64 `json:"rewarded_seconds_today"`
	DailyRemainingSeconds int64 `json:"daily_remaining_seconds"`

	StreakDays      int64       `json:"streak_days"`
	SuspiciousScore int64       `json:"suspicious_score"`
	Tier            domain.Tier `json:"tier"`

	Quests       []Quest             `json:"quests"`
	RecentClaims []schema.TokenClaim `json:"recent_claims"`
}

// QuestClaimResult is returned after a successful quest claim
type QuestClaimResult struct {
	ClaimedKey     string  `json:"claimed_key"`
	RewardedTokens int64   `json:"rewarded_tokens"`
	Symbol         string  `json:"symbol"`
	Balance        int64   `json:"balance"`
	TotalEarned    int64   `json:"total_earned"`
	Quests         []Quest `json:"quests"`
}

// SpendResult is returned after a successful catalog spend
type SpendResult struct {
	Action  SpendAction          `json:"action"`
	Symbol  string               `json:"symbol"`
	Balance int64                `json:"balance"`
	Spends  []schema.SpendRecord `json:"recent_spends"`
}

// WalletSnapshot is the read model behind GetWallet
type WalletSnapshot struct {
	Symbol                  string  `json:"symbol"`
	Balance                 int64   `json:"balance"`
	TotalEarned             int64   `json:"total_earned"`
	PendingQualifiedSeconds int64   `json:"pending_qualified_seconds"`
	EstimatedPendingTokens  float64 `json:"estimated_pending_tokens"`
	RewardedSecondsToday    int64   `json:"rewarded_seconds_today"`
	DailyRemainingSeconds   int64   `json:"daily_remaining_seconds"`
	RewardsPaused           bool    `json:"rewards_paused"`

	StreakDays      int64       `json:"streak_days"`
	SuspiciousScore int64       `json:"suspicious_score"`
	Tier            domain.Tier `json:"tier"`

	Quests       []Quest             `json:"quests"`
	Catalog      []SpendAction       `json:"spend_catalog"`
	RecentClaims []schema.TokenClaim `json:"recent_claims"`
}

// estimatePendingTokens converts pending seconds into a fractional token
// estimate rounded to 4 decimals for display.
func estimatePendingTokens(pendingSeconds, secondsPerToken int64) float64 {
	if secondsPerToken <= 0 {
		return 0
	}
	est := float64(pendingSeconds) / float64(secondsPerToken)
	return math.Round(est*10000) / 10000
}

// remainingToday computes the uncharged portion of the daily cap
func remainingToday(maxDaily, rewardedToday int64) int64 {
	remaining := maxDaily - rewardedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// topClaims returns the newest n entries of a claims ring
func topClaims(claims []schema.TokenClaim, n int) []schema.TokenClaim {
	if len(claims) > n {
		return claims[:n]
	}
	return claims
}
