package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store/schema"
)

// BuildDailyQuests derives the day's quest list from the daily counters.
// Counters from a previous day read as zero progress; quests are never
// persisted, only their claims are.
func BuildDailyQuests(daily schema.DailyCounters, todayKey string, ctrl *schema.TokenControl) []Quest {
	if daily.DayKey != todayKey {
		daily = schema.NewDailyCounters(todayKey)
	}

	listenProgress := daily.ListenSeconds
	if listenProgress > ctrl.QuestDailyListenSecondsTarget {
		listenProgress = ctrl.QuestDailyListenSecondsTarget
	}
	artistProgress := int64(len(daily.UniqueArtists))
	if artistProgress > ctrl.QuestDailyUniqueArtistsTarget {
		artistProgress = ctrl.QuestDailyUniqueArtistsTarget
	}

	return []Quest{
		{
			Key:       domain.QuestKeyDailyListen,
			Label:     fmt.Sprintf("Listen for %d minutes today", ctrl.QuestDailyListenSecondsTarget/60),
			Target:    ctrl.QuestDailyListenSecondsTarget,
			Progress:  listenProgress,
			Reward:    ctrl.QuestDailyTokenReward,
			Completed: listenProgress >= ctrl.QuestDailyListenSecondsTarget,
			Claimed:   daily.HasClaimedQuest(domain.QuestKeyDailyListen),
		},
		{
			Key:       domain.QuestKeyDailyArtists,
			Label:     fmt.Sprintf("Play %d different artists today", ctrl.QuestDailyUniqueArtistsTarget),
			Target:    ctrl.QuestDailyUniqueArtistsTarget,
			Progress:  artistProgress,
			Reward:    ctrl.QuestDailyTokenReward,
			Completed: artistProgress >= ctrl.QuestDailyUniqueArtistsTarget,
			Claimed:   daily.HasClaimedQuest(domain.QuestKeyDailyArtists),
		},
	}
}

// ListQuests returns the user's quest board for today without mutating state
func (e *Engine) ListQuests(ctx context.Context, userID string) ([]Quest, error) {
	ctrl, err := e.control.Get(ctx)
	if err != nil {
		return nil, err
	}

	todayKey := domain.DayKeyFor(e.clock.Now().UTC())

	acc, err := e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return BuildDailyQuests(schema.NewDailyCounters(todayKey), todayKey, ctrl), nil
	}

	daily, err := acc.DailyCounters()
	if err != nil {
		return nil, err
	}
	return BuildDailyQuests(daily, todayKey, ctrl), nil
}

// ClaimQuest pays out a completed, unclaimed quest. The claim marker lives in
// the daily counters, so a quest resets at day rollover and can be claimed at
// most once per day.
func (e *Engine) ClaimQuest(ctx context.Context, userID, questKey string) (*QuestClaimResult, error) {
	ctrl, err := e.control.Get(ctx)
	if err != nil {
		return nil, err
	}

	return backoff.RetryWithData(func() (*QuestClaimResult, error) {
		result, err := e.tryClaimQuest(ctx, userID, questKey, ctrl)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}, e.commitBackoff(ctx))
}

func (e *Engine) tryClaimQuest(ctx context.Context, userID, questKey string, ctrl *schema.TokenControl) (*QuestClaimResult, error) {
	acc, err := e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}

	now := e.clock.Now().UTC()
	todayKey := domain.DayKeyFor(now)

	daily, err := acc.DailyCounters()
	if err != nil {
		return nil, err
	}
	e.rolloverIfNeeded(acc, &daily, todayKey, ctrl)

	quests := BuildDailyQuests(daily, todayKey, ctrl)
	var quest *Quest
	for i := range quests {
		if quests[i].Key == questKey {
			quest = &quests[i]
			break
		}
	}
	if quest == nil {
		return nil, domain.ErrQuestNotFound
	}
	if quest.Claimed {
		return nil, domain.ErrQuestAlreadyClaimed
	}
	if !quest.Completed {
		return nil, domain.ErrQuestNotCompleted
	}

	daily.QuestClaimedKeys = append(daily.QuestClaimedKeys, questKey)
	acc.Balance += quest.Reward
	acc.TotalEarned += quest.Reward
	acc.LastClaimAt = &now

	claims, err := acc.Claims()
	if err != nil {
		return nil, err
	}
	if err := acc.SetClaims(schema.PushClaim(claims, schema.TokenClaim{
		Tokens:    quest.Reward,
		CauseKey:  "quest::" + questKey,
		CreatedAt: now,
	}, domain.MaxRecentClaims)); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"quest_key": questKey,
		"day_key":   todayKey,
	})
	if err != nil {
		return nil, err
	}
	entries := []schema.LedgerEntry{{
		UserID:    acc.UserID,
		Symbol:    acc.Symbol,
		EntryType: domain.LedgerEntryTypeQuest,
		Delta:     quest.Reward,
		Reason:    "quest reward: " + questKey,
		SeasonKey: domain.SeasonKeyFor(now),
		Metadata:  metadata,
		CreatedAt: now,
	}}

	if err := e.commit(ctx, acc, daily, entries); err != nil {
		return nil, err
	}

	return &QuestClaimResult{
		ClaimedKey:     questKey,
		RewardedTokens: quest.Reward,
		Symbol:         acc.Symbol,
		Balance:        acc.Balance,
		TotalEarned:    acc.TotalEarned,
		Quests:         BuildDailyQuests(daily, todayKey, ctrl),
	}, nil
}
