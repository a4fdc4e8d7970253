package schema

import (
	"time"
)

// TokenControlKey is the key of the single live control row
const TokenControlKey = "global"

// TokenControl represents the token_controls table - the versioned global
// parameter set governing reward economics. Exactly one live row exists,
// keyed "global"; it is created lazily with defaults and only the admin
// console writes it.
type TokenControl struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Key identifies the singleton row
	Key string `gorm:"column:key;not null;type:text;uniqueIndex:idx_token_controls_key"`
	// Symbol is the short token symbol shown to clients
	Symbol string `gorm:"column:symbol;not null;type:text"`

	// Reward economics
	QualifiedSecondsPerToken     int64 `gorm:"column:qualified_seconds_per_token;not null"`
	MaxSecondsPerEvent           int64 `gorm:"column:max_seconds_per_event;not null"`
	MaxDailyQualifiedSeconds     int64 `gorm:"column:max_daily_qualified_seconds;not null"`
	MinTrackEventIntervalSeconds int64 `gorm:"column:min_track_event_interval_seconds;not null"`

	// Anti-gaming heuristics
	MaxRepeatTrackEventsPerDay      int64 `gorm:"column:max_repeat_track_events_per_day;not null"`
	DiversityPenaltyPercent         int64 `gorm:"column:diversity_penalty_percent;not null"`
	SuspiciousEventPenaltyThreshold int64 `gorm:"column:suspicious_event_penalty_threshold;not null"`
	SuspiciousEventHardLimit        int64 `gorm:"column:suspicious_event_hard_limit;not null"`

	// Streak shaping
	StreakMaxDays            int64 `gorm:"column:streak_max_days;not null"`
	StreakBonusPerDayPercent int64 `gorm:"column:streak_bonus_per_day_percent;not null"`

	// Daily quests
	QuestDailyListenSecondsTarget int64 `gorm:"column:quest_daily_listen_seconds_target;not null"`
	QuestDailyUniqueArtistsTarget int64 `gorm:"column:quest_daily_unique_artists_target;not null"`
	QuestDailyTokenReward         int64 `gorm:"column:quest_daily_token_reward;not null"`

	// Kill switches
	RewardsPaused      bool `gorm:"column:rewards_paused;not null;default:false"`
	AllowAdminMintBurn bool `gorm:"column:allow_admin_mint_burn;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TokenControl model
func (TokenControl) TableName() string {
	return "token_controls"
}
