package store

import (
	"context"

	"github.com/muzeer/rewards/internal/store/schema"
)

// LeaderboardRow is one aggregated leaderboard position
type LeaderboardRow struct {
	UserID      string `gorm:"column:user_id" json:"user_id"`
	DisplayName string `gorm:"column:display_name" json:"display_name"`
	Tokens      int64  `gorm:"column:tokens" json:"tokens"`
}

// CommitAccountMutationInput bundles one all-or-nothing aggregate mutation:
// a version-checked write of the account plus the ledger entries and
// optional audit row it produced.
type CommitAccountMutationInput struct {
	// Account is the mutated aggregate. Its Version field still holds the
	// version observed at read time; the commit bumps it by one.
	Account *schema.RewardAccount
	// LedgerEntries are appended in the same transaction
	LedgerEntries []schema.LedgerEntry
	// AdminAction is appended in the same transaction when non-nil
	AdminAction *schema.AdminAction
}

// Store defines the interface for database operations
type Store interface {
	// GetTokenControl retrieves the live control row, nil when absent
	GetTokenControl(ctx context.Context) (*schema.TokenControl, error)
	// CreateTokenControl inserts the control row, keeping an existing one
	CreateTokenControl(ctx context.Context, control *schema.TokenControl) error
	// UpdateTokenControl overwrites the live control row
	UpdateTokenControl(ctx context.Context, control *schema.TokenControl) error
	// UpdateTokenControlWithAudit overwrites the live control row and appends
	// the audit row describing the change in the same transaction
	UpdateTokenControlWithAudit(ctx context.Context, control *schema.TokenControl, action *schema.AdminAction) error

	// GetRewardAccount retrieves a user's aggregate, nil when absent
	GetRewardAccount(ctx context.Context, userID string) (*schema.RewardAccount, error)
	// CreateRewardAccount inserts a fresh aggregate for a user
	CreateRewardAccount(ctx context.Context, account *schema.RewardAccount) error
	// CommitAccountMutation applies a version-checked aggregate write together
	// with its ledger and audit appends; returns domain.ErrVersionConflict
	// when the aggregate changed since it was read
	CommitAccountMutation(ctx context.Context, input CommitAccountMutationInput) error
	// ListRewardAccounts pages accounts by internal ID for sweeps
	ListRewardAccounts(ctx context.Context, afterID uint64, limit int) ([]*schema.RewardAccount, error)

	// AppendAdminAction records an audit row outside an aggregate mutation
	AppendAdminAction(ctx context.Context, action *schema.AdminAction) error
	// ListRecentAdminActions returns the newest audit rows
	ListRecentAdminActions(ctx context.Context, limit int) ([]*schema.AdminAction, error)

	// GetSeasonLeaderboard aggregates positive reward/quest deltas for a
	// season, grouped by user, summed, descending, truncated to limit
	GetSeasonLeaderboard(ctx context.Context, seasonKey string, limit int) ([]LeaderboardRow, error)
	// SumLedgerDeltas returns the signed ledger total for a user
	SumLedgerDeltas(ctx context.Context, userID string) (int64, error)
	// ListLedgerEntries returns a user's newest ledger rows
	ListLedgerEntries(ctx context.Context, userID string, limit int) ([]*schema.LedgerEntry, error)
}
