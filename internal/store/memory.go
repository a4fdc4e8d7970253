package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store/schema"
)

type memStore struct {
	mu sync.Mutex

	control *schema.TokenControl

	accounts   map[string]*schema.RewardAccount
	accountSeq uint64

	ledger    []schema.LedgerEntry
	ledgerSeq uint64

	actions   []schema.AdminAction
	actionSeq uint64
}

// NewMemoryStore creates an in-memory Store. It honors the same
// version-conflict contract as the PostgreSQL store and is used by tests
// and local development.
func NewMemoryStore() Store {
	return &memStore{
		accounts: make(map[string]*schema.RewardAccount),
	}
}

func (s *memStore) GetTokenControl(ctx context.Context) (*schema.TokenControl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.control == nil {
		return nil, nil
	}
	copied := *s.control
	return &copied, nil
}

func (s *memStore) CreateTokenControl(ctx context.Context, control *schema.TokenControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	control.Key = schema.TokenControlKey
	if s.control != nil {
		// a concurrent creator wins silently, matching the SQL upsert
		return nil
	}
	copied := *control
	copied.ID = 1
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	copied.UpdatedAt = copied.CreatedAt
	s.control = &copied
	return nil
}

func (s *memStore) UpdateTokenControl(ctx context.Context, control *schema.TokenControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.control == nil {
		return fmt.Errorf("failed to update token control: no live row")
	}
	copied := *control
	copied.ID = s.control.ID
	copied.Key = s.control.Key
	copied.CreatedAt = s.control.CreatedAt
	copied.UpdatedAt = time.Now()
	s.control = &copied
	return nil
}

func (s *memStore) UpdateTokenControlWithAudit(ctx context.Context, control *schema.TokenControl, action *schema.AdminAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.control == nil {
		return fmt.Errorf("failed to update token control: no live row")
	}
	copied := *control
	copied.ID = s.control.ID
	copied.Key = s.control.Key
	copied.CreatedAt = s.control.CreatedAt
	copied.UpdatedAt = time.Now()
	s.control = &copied

	if action != nil {
		s.actionSeq++
		row := *action
		row.ID = s.actionSeq
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now()
		}
		s.actions = append(s.actions, row)
	}
	return nil
}

func (s *memStore) GetRewardAccount(ctx context.Context, userID string) (*schema.RewardAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (s *memStore) CreateRewardAccount(ctx context.Context, account *schema.RewardAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return fmt.Errorf("failed to create reward account: duplicate user %s", account.UserID)
	}
	s.accountSeq++
	copied := *account
	copied.ID = s.accountSeq
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	copied.UpdatedAt = copied.CreatedAt
	s.accounts[account.UserID] = &copied
	account.ID = copied.ID
	return nil
}

func (s *memStore) CommitAccountMutation(ctx context.Context, input CommitAccountMutationInput) error {
	if input.Account == nil {
		return fmt.Errorf("failed to commit account mutation: nil account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[input.Account.UserID]
	if !ok || stored.ID != input.Account.ID || stored.Version != input.Account.Version {
		return domain.ErrVersionConflict
	}

	copied := *input.Account
	copied.UserID = stored.UserID
	copied.CreatedAt = stored.CreatedAt
	copied.UpdatedAt = time.Now()
	copied.Version = stored.Version + 1
	s.accounts[copied.UserID] = &copied
	input.Account.Version = copied.Version

	for _, entry := range input.LedgerEntries {
		s.ledgerSeq++
		entry.ID = s.ledgerSeq
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}
		s.ledger = append(s.ledger, entry)
	}

	if input.AdminAction != nil {
		s.actionSeq++
		action := *input.AdminAction
		action.ID = s.actionSeq
		if action.CreatedAt.IsZero() {
			action.CreatedAt = time.Now()
		}
		s.actions = append(s.actions, action)
	}

	return nil
}

func (s *memStore) ListRewardAccounts(ctx context.Context, afterID uint64, limit int) ([]*schema.RewardAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []*schema.RewardAccount
	for _, account := range s.accounts {
		if account.ID > afterID {
			copied := *account
			accounts = append(accounts, &copied)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (s *memStore) AppendAdminAction(ctx context.Context, action *schema.AdminAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actionSeq++
	copied := *action
	copied.ID = s.actionSeq
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.actions = append(s.actions, copied)
	return nil
}

func (s *memStore) ListRecentAdminActions(ctx context.Context, limit int) ([]*schema.AdminAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var actions []*schema.AdminAction
	for i := len(s.actions) - 1; i >= 0 && (limit <= 0 || len(actions) < limit); i-- {
		copied := s.actions[i]
		actions = append(actions, &copied)
	}
	return actions, nil
}

func (s *memStore) GetSeasonLeaderboard(ctx context.Context, seasonKey string, limit int) ([]LeaderboardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]int64)
	for _, entry := range s.ledger {
		if entry.SeasonKey != seasonKey || entry.Delta <= 0 {
			continue
		}
		if entry.EntryType != domain.LedgerEntryTypeReward && entry.EntryType != domain.LedgerEntryTypeQuest {
			continue
		}
		totals[entry.UserID] += entry.Delta
	}

	rows := make([]LeaderboardRow, 0, len(totals))
	for userID, tokens := range totals {
		row := LeaderboardRow{UserID: userID, Tokens: tokens}
		if account, ok := s.accounts[userID]; ok {
			row.DisplayName = account.DisplayName
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tokens != rows[j].Tokens {
			return rows[i].Tokens > rows[j].Tokens
		}
		return rows[i].UserID < rows[j].UserID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *memStore) SumLedgerDeltas(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, entry := range s.ledger {
		if entry.UserID == userID {
			total += entry.Delta
		}
	}
	return total, nil
}

func (s *memStore) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]*schema.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*schema.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID != userID {
			continue
		}
		copied := s.ledger[i]
		entries = append(entries, &copied)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}
