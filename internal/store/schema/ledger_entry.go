package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/muzeer/rewards/internal/domain"
)

// LedgerEntry represents the ledger_entries table - the append-only record
// of every balance-affecting change. Rows are never updated or deleted; the
// sum of deltas per user must always reconcile to the live balance.
type LedgerEntry struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserID references the account whose balance changed
	UserID string `gorm:"column:user_id;not null;type:text;index:idx_ledger_entries_user_id"`
	// Symbol is the token symbol at write time
	Symbol string `gorm:"column:symbol;not null;type:text"`
	// EntryType tags the cause (reward, quest, spend, admin, mint, burn)
	EntryType domain.LedgerEntryType `gorm:"column:entry_type;not null;type:text;index:idx_ledger_entries_season,priority:2"`
	// Delta is the signed balance change
	Delta int64 `gorm:"column:delta;not null"`
	// Reason is a human-readable cause string
	Reason string `gorm:"column:reason;not null;type:text"`
	// SeasonKey is the UTC year-month bucket used by seasonal leaderboards
	SeasonKey string `gorm:"column:season_key;not null;type:text;index:idx_ledger_entries_season,priority:1"`
	// Metadata captures write-time context as JSON
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// CreatedAt is the event time
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LedgerEntry model
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
