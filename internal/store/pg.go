package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the reward tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.TokenControl{},
		&schema.RewardAccount{},
		&schema.LedgerEntry{},
		&schema.AdminAction{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// GetTokenControl retrieves the live control row
func (s *pgStore) GetTokenControl(ctx context.Context) (*schema.TokenControl, error) {
	var control schema.TokenControl
	err := s.db.WithContext(ctx).Where("key = ?", schema.TokenControlKey).First(&control).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token control: %w", err)
	}
	return &control, nil
}

// CreateTokenControl inserts the control row. A concurrent creator wins
// silently; callers re-read after creation.
func (s *pgStore) CreateTokenControl(ctx context.Context, control *schema.TokenControl) error {
	control.Key = schema.TokenControlKey
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(control).Error
	if err != nil {
		return fmt.Errorf("failed to create token control: %w", err)
	}
	return nil
}

// UpdateTokenControl overwrites the live control row
func (s *pgStore) UpdateTokenControl(ctx context.Context, control *schema.TokenControl) error {
	result := s.db.WithContext(ctx).
		Model(&schema.TokenControl{}).
		Where("key = ?", schema.TokenControlKey).
		Select("*").
		Omit("id", "key", "created_at").
		Updates(control)
	if result.Error != nil {
		return fmt.Errorf("failed to update token control: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update token control: no live row")
	}
	return nil
}

// UpdateTokenControlWithAudit overwrites the live control row and appends
// the audit row in one transaction, so a control change is never persisted
// without its audit trail.
func (s *pgStore) UpdateTokenControlWithAudit(ctx context.Context, control *schema.TokenControl, action *schema.AdminAction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.TokenControl{}).
			Where("key = ?", schema.TokenControlKey).
			Select("*").
			Omit("id", "key", "created_at").
			Updates(control)
		if result.Error != nil {
			return fmt.Errorf("failed to update token control: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("failed to update token control: no live row")
		}
		if action != nil {
			if err := tx.Create(action).Error; err != nil {
				return fmt.Errorf("failed to append admin action: %w", err)
			}
		}
		return nil
	})
}

// GetRewardAccount retrieves a user's aggregate
func (s *pgStore) GetRewardAccount(ctx context.Context, userID string) (*schema.RewardAccount, error) {
	var account schema.RewardAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reward account: %w", err)
	}
	return &account, nil
}

// CreateRewardAccount inserts a fresh aggregate for a user
func (s *pgStore) CreateRewardAccount(ctx context.Context, account *schema.RewardAccount) error {
	err := s.db.WithContext(ctx).Create(account).Error
	if err != nil {
		return fmt.Errorf("failed to create reward account: %w", err)
	}
	return nil
}

// CommitAccountMutation applies a version-checked aggregate write together
// with its ledger and audit appends in one transaction. The whole commit
// rolls back when the aggregate changed since it was read.
func (s *pgStore) CommitAccountMutation(ctx context.Context, input CommitAccountMutationInput) error {
	if input.Account == nil {
		return fmt.Errorf("failed to commit account mutation: nil account")
	}

	expectedVersion := input.Account.Version
	input.Account.Version = expectedVersion + 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.RewardAccount{}).
			Where("id = ? AND version = ?", input.Account.ID, expectedVersion).
			Select("*").
			Omit("id", "user_id", "created_at").
			Updates(input.Account)
		if result.Error != nil {
			return fmt.Errorf("failed to update reward account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}

		for i := range input.LedgerEntries {
			if err := tx.Create(&input.LedgerEntries[i]).Error; err != nil {
				return fmt.Errorf("failed to append ledger entry: %w", err)
			}
		}

		if input.AdminAction != nil {
			if err := tx.Create(input.AdminAction).Error; err != nil {
				return fmt.Errorf("failed to append admin action: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		// Restore the observed version so callers can retry from a fresh read
		input.Account.Version = expectedVersion
		return err
	}

	return nil
}

// ListRewardAccounts pages accounts by internal ID for sweeps
func (s *pgStore) ListRewardAccounts(ctx context.Context, afterID uint64, limit int) ([]*schema.RewardAccount, error) {
	var accounts []*schema.RewardAccount
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reward accounts: %w", err)
	}
	return accounts, nil
}

// AppendAdminAction records an audit row outside an aggregate mutation
func (s *pgStore) AppendAdminAction(ctx context.Context, action *schema.AdminAction) error {
	err := s.db.WithContext(ctx).Create(action).Error
	if err != nil {
		return fmt.Errorf("failed to append admin action: %w", err)
	}
	return nil
}

// ListRecentAdminActions returns the newest audit rows
func (s *pgStore) ListRecentAdminActions(ctx context.Context, limit int) ([]*schema.AdminAction, error) {
	var actions []*schema.AdminAction
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&actions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list admin actions: %w", err)
	}
	return actions, nil
}

// GetSeasonLeaderboard aggregates positive reward/quest deltas for a season
func (s *pgStore) GetSeasonLeaderboard(ctx context.Context, seasonKey string, limit int) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := s.db.WithContext(ctx).
		Table("ledger_entries").
		Select("ledger_entries.user_id AS user_id, COALESCE(reward_accounts.display_name, '') AS display_name, SUM(ledger_entries.delta) AS tokens").
		Joins("LEFT JOIN reward_accounts ON reward_accounts.user_id = ledger_entries.user_id").
		Where("ledger_entries.season_key = ? AND ledger_entries.entry_type IN ? AND ledger_entries.delta > 0",
			seasonKey, []domain.LedgerEntryType{domain.LedgerEntryTypeReward, domain.LedgerEntryTypeQuest}).
		Group("ledger_entries.user_id, reward_accounts.display_name").
		Order("tokens DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get season leaderboard: %w", err)
	}
	return rows, nil
}

// SumLedgerDeltas returns the signed ledger total for a user
func (s *pgStore) SumLedgerDeltas(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&schema.LedgerEntry{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger deltas: %w", err)
	}
	return total, nil
}

// ListLedgerEntries returns a user's newest ledger rows
func (s *pgStore) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]*schema.LedgerEntry, error) {
	var entries []*schema.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
