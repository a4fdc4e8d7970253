package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/muzeer/rewards/internal/adapter"
	"github.com/muzeer/rewards/internal/control"
	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/messaging"
	"github.com/muzeer/rewards/internal/store"
	"github.com/muzeer/rewards/internal/store/schema"
)

// MaxAdjustmentMagnitude caps a single manual mint or burn
const MaxAdjustmentMagnitude = 1_000_000

// Actor is the authenticated admin performing a console operation
type Actor struct {
	ID   string
	Name string
	Role domain.Role
}

// AdjustResult reports a balance-changing console operation
type AdjustResult struct {
	TargetUserID string `json:"target_user_id"`
	Delta        int64  `json:"delta"`
	Balance      int64  `json:"balance"`
	Symbol       string `json:"symbol"`
}

// ControlPatch carries the allow-listed control fields an admin may change.
// Nil fields keep their current value.
type ControlPatch struct {
	Symbol                          *string `json:"symbol,omitempty"`
	QualifiedSecondsPerToken        *int64  `json:"qualified_seconds_per_token,omitempty"`
	MaxSecondsPerEvent              *int64  `json:"max_seconds_per_event,omitempty"`
	MaxDailyQualifiedSeconds        *int64  `json:"max_daily_qualified_seconds,omitempty"`
	MinTrackEventIntervalSeconds    *int64  `json:"min_track_event_interval_seconds,omitempty"`
	MaxRepeatTrackEventsPerDay      *int64  `json:"max_repeat_track_events_per_day,omitempty"`
	DiversityPenaltyPercent         *int64  `json:"diversity_penalty_percent,omitempty"`
	SuspiciousEventPenaltyThreshold *int64  `json:"suspicious_event_penalty_threshold,omitempty"`
	SuspiciousEventHardLimit        *int64  `json:"suspicious_event_hard_limit,omitempty"`
	StreakMaxDays                   *int64  `json:"streak_max_days,omitempty"`
	StreakBonusPerDayPercent        *int64  `json:"streak_bonus_per_day_percent,omitempty"`
	QuestDailyListenSecondsTarget   *int64  `json:"quest_daily_listen_seconds_target,omitempty"`
	QuestDailyUniqueArtistsTarget   *int64  `json:"quest_daily_unique_artists_target,omitempty"`
	QuestDailyTokenReward           *int64  `json:"quest_daily_token_reward,omitempty"`
	RewardsPaused                   *bool   `json:"rewards_paused,omitempty"`
	AllowAdminMintBurn              *bool   `json:"allow_admin_mint_burn,omitempty"`
}

// Console executes privileged operations against accounts and the global
// control. Every operation re-checks the actor's capability and leaves an
// audit row in the same transaction as the change it describes.
type Console struct {
	store     store.Store
	control   *control.Service
	clock     adapter.Clock
	publisher messaging.Publisher
}

// NewConsole creates an admin console
func NewConsole(st store.Store, ctrl *control.Service, clock adapter.Clock, pub messaging.Publisher) *Console {
	if pub == nil {
		pub = messaging.NoopPublisher{}
	}
	return &Console{store: st, control: ctrl, clock: clock, publisher: pub}
}

func (c *Console) commitBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)
}

// MintOrBurn applies a signed manual adjustment to a user's balance. A burn
// can never drive the balance negative, and the magnitude is capped.
func (c *Console) MintOrBurn(ctx context.Context, actor Actor, targetUserID string, delta int64, reason string) (*AdjustResult, error) {
	if !actor.Role.CanModerate() {
		return nil, domain.ErrNotAuthorized
	}
	if delta == 0 || delta > MaxAdjustmentMagnitude || delta < -MaxAdjustmentMagnitude {
		return nil, domain.ErrInvalidDelta
	}

	ctrl, err := c.control.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ctrl.AllowAdminMintBurn {
		return nil, domain.ErrMintBurnDisabled
	}

	return backoff.RetryWithData(func() (*AdjustResult, error) {
		result, err := c.tryMintOrBurn(ctx, actor, targetUserID, delta, reason)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}, c.commitBackoff(ctx))
}

func (c *Console) tryMintOrBurn(ctx context.Context, actor Actor, targetUserID string, delta int64, reason string) (*AdjustResult, error) {
	acc, err := c.loadTarget(ctx, actor, targetUserID)
	if err != nil {
		return nil, err
	}
	if acc.Balance+delta < 0 {
		return nil, domain.ErrInsufficientBalance
	}

	now := c.clock.Now().UTC()
	acc.Balance += delta
	if delta > 0 {
		acc.TotalEarned += delta
	}

	entryType := domain.LedgerEntryTypeMint
	verb := "mint"
	if delta < 0 {
		entryType = domain.LedgerEntryTypeBurn
		verb = "burn"
	}

	if delta > 0 {
		if err := c.pushClaim(acc, delta, "admin::mint", now); err != nil {
			return nil, err
		}
	}

	metadata, err := json.Marshal(map[string]interface{}{"reason": reason})
	if err != nil {
		return nil, err
	}
	entries := []schema.LedgerEntry{{
		UserID:    acc.UserID,
		Symbol:    acc.Symbol,
		EntryType: entryType,
		Delta:     delta,
		Reason:    reason,
		SeasonKey: domain.SeasonKeyFor(now),
		Metadata:  metadata,
		CreatedAt: now,
	}}

	action := c.auditRow(actor, acc, schema.AdminActionTypeTokenAdjust,
		fmt.Sprintf("%s %d %s for %s", verb, abs(delta), acc.Symbol, acc.UserID),
		&delta, now)

	if err := c.commit(ctx, acc, entries, action); err != nil {
		return nil, err
	}

	return &AdjustResult{
		TargetUserID: acc.UserID,
		Delta:        delta,
		Balance:      acc.Balance,
		Symbol:       acc.Symbol,
	}, nil
}

// SetExactBalance pins a user's balance to an exact value, recording the
// implied signed delta in the ledger so conservation still holds.
func (c *Console) SetExactBalance(ctx context.Context, actor Actor, targetUserID string, balance int64, reason string) (*AdjustResult, error) {
	if !actor.Role.CanModerate() {
		return nil, domain.ErrNotAuthorized
	}
	if balance < 0 {
		return nil, domain.ErrInvalidDelta
	}

	ctrl, err := c.control.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ctrl.AllowAdminMintBurn {
		return nil, domain.ErrMintBurnDisabled
	}

	return backoff.RetryWithData(func() (*AdjustResult, error) {
		result, err := c.trySetExactBalance(ctx, actor, targetUserID, balance, reason)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}, c.commitBackoff(ctx))
}

func (c *Console) trySetExactBalance(ctx context.Context, actor Actor, targetUserID string, balance int64, reason string) (*AdjustResult, error) {
	acc, err := c.loadTarget(ctx, actor, targetUserID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC()
	delta := balance - acc.Balance
	acc.Balance = balance
	if delta > 0 {
		acc.TotalEarned += delta
		if err := c.pushClaim(acc, delta, "admin::set-balance", now); err != nil {
			return nil, err
		}
	}

	var entries []schema.LedgerEntry
	if delta != 0 {
		metadata, err := json.Marshal(map[string]interface{}{
			"reason":      reason,
			"set_balance": balance,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, schema.LedgerEntry{
			UserID:    acc.UserID,
			Symbol:    acc.Symbol,
			EntryType: domain.LedgerEntryTypeAdmin,
			Delta:     delta,
			Reason:    reason,
			SeasonKey: domain.SeasonKeyFor(now),
			Metadata:  metadata,
			CreatedAt: now,
		})
	}

	action := c.auditRow(actor, acc, schema.AdminActionTypeSetBalance,
		fmt.Sprintf("set balance of %s to %d %s", acc.UserID, balance, acc.Symbol),
		&delta, now)

	if err := c.commit(ctx, acc, entries, action); err != nil {
		return nil, err
	}

	return &AdjustResult{
		TargetUserID: acc.UserID,
		Delta:        delta,
		Balance:      acc.Balance,
		Symbol:       acc.Symbol,
	}, nil
}

// UpdateControl patches the live control row. Unknown fields never reach
// here; the patch struct is the allow-list.
func (c *Console) UpdateControl(ctx context.Context, actor Actor, patch ControlPatch) (*schema.TokenControl, error) {
	if !actor.Role.CanEditGlobalControl() {
		return nil, domain.ErrNotAuthorized
	}

	ctrl, err := c.control.Get(ctx)
	if err != nil {
		return nil, err
	}

	applyPatch(ctrl, patch)

	now := c.clock.Now().UTC()
	metadata, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	action := &schema.AdminAction{
		AdminID:    actor.ID,
		AdminName:  actor.Name,
		ActionType: schema.AdminActionTypeControlUpdate,
		Summary:    "updated token control",
		Symbol:     ctrl.Symbol,
		Metadata:   metadata,
		CreatedAt:  now,
	}
	if err := c.control.UpdateWithAudit(ctx, ctrl, action); err != nil {
		return nil, err
	}

	return ctrl, nil
}

// GetControl returns the live control for the console view
func (c *Console) GetControl(ctx context.Context, actor Actor) (*schema.TokenControl, error) {
	if !actor.Role.CanModerate() {
		return nil, domain.ErrNotAuthorized
	}
	return c.control.Get(ctx)
}

// RecentActions returns the newest audit rows
func (c *Console) RecentActions(ctx context.Context, actor Actor, limit int) ([]*schema.AdminAction, error) {
	if !actor.Role.CanModerate() {
		return nil, domain.ErrNotAuthorized
	}
	return c.store.ListRecentAdminActions(ctx, limit)
}

// loadTarget fetches the target aggregate and enforces that protected
// accounts are only touched by owners.
func (c *Console) loadTarget(ctx context.Context, actor Actor, targetUserID string) (*schema.RewardAccount, error) {
	acc, err := c.store.GetRewardAccount(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	if domain.Role(acc.Role).IsProtected() && actor.Role != domain.RoleOwner {
		return nil, domain.ErrNotAuthorized
	}
	return acc, nil
}

// pushClaim records a console-issued grant in the account's recent-claims
// ring, the same trail listen rewards and quest claims leave.
func (c *Console) pushClaim(acc *schema.RewardAccount, tokens int64, causeKey string, now time.Time) error {
	claims, err := acc.Claims()
	if err != nil {
		return err
	}
	return acc.SetClaims(schema.PushClaim(claims, schema.TokenClaim{
		Tokens:    tokens,
		CauseKey:  causeKey,
		CreatedAt: now,
	}, domain.MaxRecentClaims))
}

func (c *Console) auditRow(actor Actor, acc *schema.RewardAccount, actionType schema.AdminActionType, summary string, delta *int64, now time.Time) *schema.AdminAction {
	targetID := acc.UserID
	targetName := acc.DisplayName
	resulting := acc.Balance
	return &schema.AdminAction{
		AdminID:          actor.ID,
		AdminName:        actor.Name,
		ActionType:       actionType,
		Summary:          summary,
		TargetUserID:     &targetID,
		TargetUserName:   &targetName,
		Delta:            delta,
		ResultingBalance: &resulting,
		Symbol:           acc.Symbol,
		CreatedAt:        now,
	}
}

func (c *Console) commit(ctx context.Context, acc *schema.RewardAccount, entries []schema.LedgerEntry, action *schema.AdminAction) error {
	err := c.store.CommitAccountMutation(ctx, store.CommitAccountMutationInput{
		Account:       acc,
		LedgerEntries: entries,
		AdminAction:   action,
	})
	if err != nil {
		return err
	}

	for _, entry := range entries {
		c.publisher.PublishLedgerEvent(ctx, messaging.LedgerEvent{
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

func applyPatch(ctrl *schema.TokenControl, patch ControlPatch) {
	if patch.Symbol != nil {
		ctrl.Symbol = *patch.Symbol
	}
	if patch.QualifiedSecondsPerToken != nil {
		ctrl.QualifiedSecondsPerToken = *patch.QualifiedSecondsPerToken
	}
	if patch.MaxSecondsPerEvent != nil {
		ctrl.MaxSecondsPerEvent = *patch.MaxSecondsPerEvent
	}
	if patch.MaxDailyQualifiedSeconds != nil {
		ctrl.MaxDailyQualifiedSeconds = *patch.MaxDailyQualifiedSeconds
	}
	if patch.MinTrackEventIntervalSeconds != nil {
		ctrl.MinTrackEventIntervalSeconds = *patch.MinTrackEventIntervalSeconds
	}
	if patch.MaxRepeatTrackEventsPerDay != nil {
		ctrl.MaxRepeatTrackEventsPerDay = *patch.MaxRepeatTrackEventsPerDay
	}
	if patch.DiversityPenaltyPercent != nil {
		ctrl.DiversityPenaltyPercent = *patch.DiversityPenaltyPercent
	}
	if patch.SuspiciousEventPenaltyThreshold != nil {
		ctrl.SuspiciousEventPenaltyThreshold = *patch.SuspiciousEventPenaltyThreshold
	}
	if patch.SuspiciousEventHardLimit != nil {
		ctrl.SuspiciousEventHardLimit = *patch.SuspiciousEventHardLimit
	}
	if patch.StreakMaxDays != nil {
		ctrl.StreakMaxDays = *patch.StreakMaxDays
	}
	if patch.StreakBonusPerDayPercent != nil {
		ctrl.StreakBonusPerDayPercent = *patch.StreakBonusPerDayPercent
	}
	if patch.QuestDailyListenSecondsTarget != nil {
		ctrl.QuestDailyListenSecondsTarget = *patch.QuestDailyListenSecondsTarget
	}
	if patch.QuestDailyUniqueArtistsTarget != nil {
		ctrl.QuestDailyUniqueArtistsTarget = *patch.QuestDailyUniqueArtistsTarget
	}
	if patch.QuestDailyTokenReward != nil {
		ctrl.QuestDailyTokenReward = *patch.QuestDailyTokenReward
	}
	if patch.RewardsPaused != nil {
		ctrl.RewardsPaused = *patch.RewardsPaused
	}
	if patch.AllowAdminMintBurn != nil {
		ctrl.AllowAdminMintBurn = *patch.AllowAdminMintBurn
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
