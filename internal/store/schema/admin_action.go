package schema

import (
	"time"

	"gorm.io/datatypes"
)

// AdminActionType identifies the kind of privileged mutation
type AdminActionType string

const (
	AdminActionTypeTokenAdjust   AdminActionType = "token_adjust"
	AdminActionTypeSetBalance    AdminActionType = "set_balance"
	AdminActionTypeControlUpdate AdminActionType = "control_update"
)

// AdminAction represents the admin_actions table - the write-once audit
// record of every privileged mutation. Read back for the admin activity feed.
type AdminAction struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// AdminID identifies the acting admin
	AdminID string `gorm:"column:admin_id;not null;type:text;index:idx_admin_actions_admin_id"`
	// AdminName is the acting admin's display name at write time
	AdminName string `gorm:"column:admin_name;not null;type:text"`
	// ActionType identifies the kind of mutation
	ActionType AdminActionType `gorm:"column:action_type;not null;type:text"`
	// Summary is a human-readable description of the change
	Summary string `gorm:"column:summary;not null;type:text"`
	// TargetUserID references the target account, when the action has one
	TargetUserID *string `gorm:"column:target_user_id;type:text"`
	// TargetUserName is the target's display name at write time
	TargetUserName *string `gorm:"column:target_user_name;type:text"`
	// Delta is the signed balance change, when the action has one
	Delta *int64 `gorm:"column:delta"`
	// ResultingBalance is the target's balance after the action
	ResultingBalance *int64 `gorm:"column:resulting_balance"`
	// Symbol is the token symbol at write time
	Symbol string `gorm:"column:symbol;not null;type:text"`
	// Metadata captures write-time context as JSON
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// CreatedAt is the action time
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the AdminAction model
func (AdminAction) TableName() string {
	return "admin_actions"
}
