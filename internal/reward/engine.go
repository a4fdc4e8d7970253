package reward

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/muzeer/rewards/internal/adapter"
	"github.com/muzeer/rewards/internal/control"
	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/logger"
	"github.com/muzeer/rewards/internal/messaging"
	"github.com/muzeer/rewards/internal/store"
	"github.com/muzeer/rewards/internal/store/schema"
)

// Engine turns listen events into minted tokens and owns every mutation of
// a user's reward aggregate. Concurrent requests for the same user are
// serialized through version-checked writes with a bounded retry loop, so
// overlapping heartbeats cannot lose a mint.
type Engine struct {
	store     store.Store
	control   *control.Service
	clock     adapter.Clock
	publisher messaging.Publisher
}

// NewEngine creates a reward engine
func NewEngine(st store.Store, ctrl *control.Service, clock adapter.Clock, pub messaging.Publisher) *Engine {
	if pub == nil {
		pub = messaging.NoopPublisher{}
	}
	return &Engine{store: st, control: ctrl, clock: clock, publisher: pub}
}

// commitBackoff bounds the optimistic-concurrency retry loop. The heartbeat
// interval dwarfs these delays, so conflicts resolve well before the next
// event arrives.
func (e *Engine) commitBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)
}

// SubmitListenEvent applies the reward algorithm to one client heartbeat.
// Zero-reward outcomes are ordinary results carrying a reason, never errors.
func (e *Engine) SubmitListenEvent(ctx context.Context, userID, displayName, title, artist string, isPlaying bool, listenedSeconds float64) (*ListenEventResult, error) {
	ctrl, err := e.control.Get(ctx)
	if err != nil {
		return nil, err
	}

	if ctrl.RewardsPaused {
		return e.zeroResult(ctx, userID, ctrl, domain.ReasonRewardsPaused)
	}
	if !isPlaying {
		return e.zeroResult(ctx, userID, ctrl, domain.ReasonNotPlaying)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(artist) == "" {
		return e.zeroResult(ctx, userID, ctrl, domain.ReasonMissingTrack)
	}

	clamped := domain.ClampListenedSeconds(listenedSeconds, ctrl.MaxSecondsPerEvent)
	if clamped == 0 {
		return e.zeroResult(ctx, userID, ctrl, domain.ReasonInvalidSeconds)
	}

	return backoff.RetryWithData(func() (*ListenEventResult, error) {
		result, err := e.tryListenEvent(ctx, userID, displayName, title, artist, clamped, ctrl)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}, e.commitBackoff(ctx))
}

// tryListenEvent runs one optimistic attempt: read the aggregate, apply the
// algorithm, and commit conditionally.
func (e *Engine) tryListenEvent(ctx context.Context, userID, displayName, title, artist string, clamped int64, ctrl *schema.TokenControl) (*ListenEventResult, error) {
	acc, err := e.loadOrCreateAccount(ctx, userID, displayName, ctrl.Symbol)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	dayKey := domain.DayKeyFor(now)
	trackKey := domain.NewTrackKey(title, artist)
	normalizedArtist := domain.NormalizeArtist(artist)

	daily, err := acc.DailyCounters()
	if err != nil {
		return nil, err
	}

	rolledOver := e.rolloverIfNeeded(acc, &daily, dayKey, ctrl)

	var elapsed int64 = -1
	if acc.LastListenEventAt != nil {
		elapsed = int64(now.Sub(*acc.LastListenEventAt).Seconds())
	}

	// Cooldown gate: repeating the same track faster than the minimum
	// interval scores as abuse and grants nothing.
	if acc.LastRewardedTrackKey == trackKey && elapsed >= 0 && elapsed < ctrl.MinTrackEventIntervalSeconds {
		acc.SuspiciousScore += 2
		if err := e.commit(ctx, acc, daily, nil); err != nil {
			return nil, err
		}
		return e.buildListenResult(acc, daily, ctrl, 0, 0, 0, domain.ReasonCooldown)
	}

	// Daily cap gate, charged at the base (uninflated) rate
	base := clamped
	if rem := remainingToday(ctrl.MaxDailyQualifiedSeconds, daily.RewardedSeconds); base > rem {
		base = rem
	}
	if base == 0 {
		if rolledOver {
			if err := e.commit(ctx, acc, daily, nil); err != nil {
				return nil, err
			}
		}
		return e.buildListenResult(acc, daily, ctrl, 0, 0, 0, domain.ReasonDailyCapReached)
	}

	// Frequency tracking
	daily.TrackEvents[trackKey]++
	trackEventsForThisTrack := daily.TrackEvents[trackKey]
	daily.ArtistEvents[normalizedArtist]++

	// Abuse scoring: hammering one track and suspiciously exact timing
	if trackEventsForThisTrack > ctrl.MaxRepeatTrackEventsPerDay {
		acc.SuspiciousScore++
	}
	if elapsed >= 0 && elapsed == ctrl.MinTrackEventIntervalSeconds {
		acc.SuspiciousScore++
	}
	if ctrl.SuspiciousEventHardLimit > 0 && acc.SuspiciousScore >= ctrl.SuspiciousEventHardLimit {
		if err := e.commit(ctx, acc, daily, nil); err != nil {
			return nil, err
		}
		return e.buildListenResult(acc, daily, ctrl, 0, 0, 0, domain.ReasonSuspiciousThrottled)
	}

	// Reward shaping: streak bonus inflates minting speed, penalties deflate
	// it; none of them touch the daily cap charge.
	effective := e.shapeReward(acc, ctrl, base, trackEventsForThisTrack)

	// State commit
	daily.AddArtist(normalizedArtist, domain.MaxDailyUniqueArtists)
	acc.TotalQualifiedSeconds += effective
	acc.PendingQualifiedSeconds += effective
	daily.RewardedSeconds += base
	daily.ListenSeconds += base
	acc.LastRewardedTrackKey = trackKey
	acc.LastListenEventAt = &now

	// Minting: whole tokens only, remainder stays pending
	var entries []schema.LedgerEntry
	minted := acc.PendingQualifiedSeconds / ctrl.QualifiedSecondsPerToken
	if minted > 0 {
		consumed := minted * ctrl.QualifiedSecondsPerToken
		acc.PendingQualifiedSeconds -= consumed
		acc.Balance += minted
		acc.TotalEarned += minted
		acc.LastClaimAt = &now
		acc.LastRewardAt = &now

		claims, err := acc.Claims()
		if err != nil {
			return nil, err
		}
		if err := acc.SetClaims(schema.PushClaim(claims, schema.TokenClaim{
			Tokens:                   minted,
			CauseKey:                 trackKey,
			QualifiedSecondsConsumed: consumed,
			CreatedAt:                now,
		}, domain.MaxRecentClaims)); err != nil {
			return nil, err
		}

		metadata, err := json.Marshal(map[string]interface{}{
			"track_key":          trackKey,
			"base_seconds":       base,
			"effective_seconds":  effective,
			"streak_days":        acc.StreakDays,
			"suspicious_score":   acc.SuspiciousScore,
			"qualified_consumed": consumed,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, schema.LedgerEntry{
			UserID:    acc.UserID,
			Symbol:    ctrl.Symbol,
			EntryType: domain.LedgerEntryTypeReward,
			Delta:     minted,
			Reason:    "listen reward",
			SeasonKey: domain.SeasonKeyFor(now),
			Metadata:  metadata,
			CreatedAt: now,
		})
	}

	acc.Symbol = ctrl.Symbol
	if err := e.commit(ctx, acc, daily, entries); err != nil {
		return nil, err
	}

	return e.buildListenResult(acc, daily, ctrl, minted, base, effective, "")
}

// rolloverIfNeeded swaps in fresh daily counters and advances the streak
// when the UTC day changed. Re-entering the same day key is a no-op.
func (e *Engine) rolloverIfNeeded(acc *schema.RewardAccount, daily *schema.DailyCounters, dayKey string, ctrl *schema.TokenControl) bool {
	if daily.DayKey == dayKey {
		return false
	}

	*daily = schema.NewDailyCounters(dayKey)

	yesterday := domain.PreviousDayKeyFor(e.clock.Now().UTC())
	if acc.LastActiveDayKey == yesterday && acc.StreakDays > 0 {
		acc.StreakDays++
		if acc.StreakDays > ctrl.StreakMaxDays {
			acc.StreakDays = ctrl.StreakMaxDays
		}
	} else {
		acc.StreakDays = 1
	}
	acc.LastActiveDayKey = dayKey

	return true
}

// shapeReward applies the streak multiplier, diversity penalty, and soft
// suspicion penalty to the base granted seconds. Floors at 1 throughout.
func (e *Engine) shapeReward(acc *schema.RewardAccount, ctrl *schema.TokenControl, base, trackEventsForThisTrack int64) int64 {
	streakDays := acc.StreakDays
	if streakDays < 1 {
		streakDays = 1
	}
	bonusPercent := (streakDays - 1) * ctrl.StreakBonusPerDayPercent

	effective := base * (100 + bonusPercent) / 100
	if effective < 1 {
		effective = 1
	}

	if trackEventsForThisTrack > ctrl.MaxRepeatTrackEventsPerDay {
		effective = effective * (100 - ctrl.DiversityPenaltyPercent) / 100
		if effective < 1 {
			effective = 1
		}
	}

	if ctrl.SuspiciousEventPenaltyThreshold > 0 && acc.SuspiciousScore >= ctrl.SuspiciousEventPenaltyThreshold {
		effective /= 2
		if effective < 1 {
			effective = 1
		}
	}

	return effective
}

// commit persists the aggregate with its appends and fans committed ledger
// entries out to the publisher.
func (e *Engine) commit(ctx context.Context, acc *schema.RewardAccount, daily schema.DailyCounters, entries []schema.LedgerEntry) error {
	if err := acc.SetDailyCounters(daily); err != nil {
		return err
	}

	err := e.store.CommitAccountMutation(ctx, store.CommitAccountMutationInput{
		Account:       acc,
		LedgerEntries: entries,
	})
	if err != nil {
		return err
	}

	for _, entry := range entries {
		e.publisher.PublishLedgerEvent(ctx, messaging.LedgerEvent{
			UserID:    entry.UserID,
			Symbol:    entry.Symbol,
			Type:      entry.EntryType,
			Delta:     entry.Delta,
			Reason:    entry.Reason,
			SeasonKey: entry.SeasonKey,
			CreatedAt: entry.CreatedAt,
		})
	}

	return nil
}

// loadOrCreateAccount fetches the user's aggregate, creating a fresh one on
// first touch. Creation races resolve by re-reading.
func (e *Engine) loadOrCreateAccount(ctx context.Context, userID, displayName, symbol string) (*schema.RewardAccount, error) {
	acc, err := e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		if displayName != "" && acc.DisplayName != displayName {
			acc.DisplayName = displayName
		}
		return acc, nil
	}

	fresh := &schema.RewardAccount{
		UserID:      userID,
		DisplayName: displayName,
		Role:        string(domain.RoleUser),
		Symbol:      symbol,
	}
	if err := fresh.SetDailyCounters(schema.NewDailyCounters("")); err != nil {
		return nil, err
	}
	if err := e.store.CreateRewardAccount(ctx, fresh); err != nil {
		logger.Debug("reward account creation raced, re-reading", zap.String("user_id", userID), zap.Error(err))
	}

	acc, err = e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

// buildListenResult assembles the telemetry snapshot after an attempt
func (e *Engine) buildListenResult(acc *schema.RewardAccount, daily schema.DailyCounters, ctrl *schema.TokenControl, minted, base, effective int64, reason domain.ZeroRewardReason) (*ListenEventResult, error) {
	claims, err := acc.Claims()
	if err != nil {
		return nil, err
	}

	return &ListenEventResult{
		RewardedTokens:          minted,
		Reason:                  reason,
		RewardsPaused:           ctrl.RewardsPaused,
		Symbol:                  acc.Symbol,
		Balance:                 acc.Balance,
		TotalEarned:             acc.TotalEarned,
		PendingQualifiedSeconds: acc.PendingQualifiedSeconds,
		EstimatedPendingTokens:  estimatePendingTokens(acc.PendingQualifiedSeconds, ctrl.QualifiedSecondsPerToken),
		QualifiedSecondsAdded:   base,
		EffectiveSecondsAdded:   effective,
		RewardedSecondsToday:    daily.RewardedSeconds,
		DailyRemainingSeconds:   remainingToday(ctrl.MaxDailyQualifiedSeconds, daily.RewardedSeconds),
		StreakDays:              acc.StreakDays,
		SuspiciousScore:         acc.SuspiciousScore,
		Tier:                    domain.TierFor(acc.TotalEarned),
		Quests:                  BuildDailyQuests(daily, daily.DayKey, ctrl),
		RecentClaims:            topClaims(claims, domain.WalletRecentClaims),
	}, nil
}

// zeroResult returns a zero-reward outcome with the caller's current wallet
// snapshot, without touching any state.
func (e *Engine) zeroResult(ctx context.Context, userID string, ctrl *schema.TokenControl, reason domain.ZeroRewardReason) (*ListenEventResult, error) {
	result := &ListenEventResult{
		Reason:        reason,
		RewardsPaused: ctrl.RewardsPaused,
		Symbol:        ctrl.Symbol,
	}

	acc, err := e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		result.DailyRemainingSeconds = ctrl.MaxDailyQualifiedSeconds
		return result, nil
	}

	daily, err := acc.DailyCounters()
	if err != nil {
		return nil, err
	}
	todayKey := domain.DayKeyFor(e.clock.Now().UTC())
	if daily.DayKey != todayKey {
		daily = schema.NewDailyCounters(todayKey)
	}

	claims, err := acc.Claims()
	if err != nil {
		return nil, err
	}

	result.Symbol = acc.Symbol
	result.Balance = acc.Balance
	result.TotalEarned = acc.TotalEarned
	result.PendingQualifiedSeconds = acc.PendingQualifiedSeconds
	result.EstimatedPendingTokens = estimatePendingTokens(acc.PendingQualifiedSeconds, ctrl.QualifiedSecondsPerToken)
	result.RewardedSecondsToday = daily.RewardedSeconds
	result.DailyRemainingSeconds = remainingToday(ctrl.MaxDailyQualifiedSeconds, daily.RewardedSeconds)
	result.StreakDays = acc.StreakDays
	result.SuspiciousScore = acc.SuspiciousScore
	result.Tier = domain.TierFor(acc.TotalEarned)
	result.Quests = BuildDailyQuests(daily, todayKey, ctrl)
	result.RecentClaims = topClaims(claims, domain.WalletRecentClaims)
	return result, nil
}
