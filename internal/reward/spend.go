package reward

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store/schema"
)

// SpendAction is one fixed catalog entry tokens can be redeemed against
type SpendAction struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Cost          int64  `json:"cost"`
	DurationHours int64  `json:"duration_hours"`
}

// spendCatalog is the fixed redemption menu. Entitlement fulfilment happens
// in the player client; the ledger only records that the burn happened.
var spendCatalog = []SpendAction{
	{Key: "hd-audio-24h", Label: "HD audio for 24 hours", Cost: 12, DurationHours: 24},
	{Key: "profile-flair-7d", Label: "Profile flair for 7 days", Cost: 30, DurationHours: 168},
	{Key: "queue-priority-24h", Label: "Queue priority for 24 hours", Cost: 8, DurationHours: 24},
}

// Catalog returns the spendable actions in display order
func Catalog() []SpendAction {
	out := make([]SpendAction, len(spendCatalog))
	copy(out, spendCatalog)
	return out
}

// catalogAction looks up a catalog entry by key
func catalogAction(key string) (SpendAction, bool) {
	for _, action := range spendCatalog {
		if action.Key == key {
			return action, true
		}
	}
	return SpendAction{}, false
}

// Spend debits a catalog action from the user's balance. The debit, the
// spend-ring append, and the negative ledger entry land in one commit, so a
// balance can never go negative and a spend can never vanish from history.
func (e *Engine) Spend(ctx context.Context, userID, actionKey string) (*SpendResult, error) {
	action, ok := catalogAction(actionKey)
	if !ok {
		return nil, domain.ErrUnknownSpendAction
	}

	return backoff.RetryWithData(func() (*SpendResult, error) {
		result, err := e.trySpend(ctx, userID, action)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}, e.commitBackoff(ctx))
}

func (e *Engine) trySpend(ctx context.Context, userID string, action SpendAction) (*SpendResult, error) {
	acc, err := e.store.GetRewardAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	if acc.Balance < action.Cost {
		return nil, domain.ErrInsufficientBalance
	}

	now := e.clock.Now().UTC()
	acc.Balance -= action.Cost

	spends, err := acc.Spends()
	if err != nil {
		return nil, err
	}
	spends = schema.PushSpend(spends, schema.SpendRecord{
		ActionKey:     action.Key,
		Label:         action.Label,
		Cost:          action.Cost,
		DurationHours: action.DurationHours,
		CreatedAt:     now,
	}, domain.MaxRecentSpends)
	if err := acc.SetSpends(spends); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"action_key":     action.Key,
		"duration_hours": action.DurationHours,
	})
	if err != nil {
		return nil, err
	}
	entries := []schema.LedgerEntry{{
		UserID:    acc.UserID,
		Symbol:    acc.Symbol,
		EntryType: domain.LedgerEntryTypeSpend,
		Delta:     -action.Cost,
		Reason:    "spend: " + action.Label,
		SeasonKey: domain.SeasonKeyFor(now),
		Metadata:  metadata,
		CreatedAt: now,
	}}

	daily, err := acc.DailyCounters()
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, acc, daily, entries); err != nil {
		return nil, err
	}

	return &SpendResult{
		Action:  action,
		Symbol:  acc.Symbol,
		Balance: acc.Balance,
		Spends:  spends,
	}, nil
}
