package schema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// DailyCounters is the per-day rolling state of a reward account. A new
// value is constructed on day rollover so the reset boundary is an explicit
// state transition rather than piecemeal field mutation.
type DailyCounters struct {
	// DayKey is the UTC calendar date these counters belong to
	DayKey string `json:"day_key"`
	// RewardedSeconds counts against the daily cap, charged at the base rate
	RewardedSeconds int64 `json:"rewarded_seconds"`
	// ListenSeconds is the raw quest-progress seconds for the day
	ListenSeconds int64 `json:"listen_seconds"`
	// UniqueArtists is the bounded set of normalized artists heard today
	UniqueArtists []string `json:"unique_artists"`
	// TrackEvents counts listen events per track key today
	TrackEvents map[string]int64 `json:"track_events"`
	// ArtistEvents counts listen events per normalized artist today
	ArtistEvents map[string]int64 `json:"artist_events"`
	// QuestClaimedKeys holds the quest keys already claimed today
	QuestClaimedKeys []string `json:"quest_claimed_keys"`
}

// NewDailyCounters returns fresh counters for a day
func NewDailyCounters(dayKey string) DailyCounters {
	return DailyCounters{
		DayKey:       dayKey,
		TrackEvents:  map[string]int64{},
		ArtistEvents: map[string]int64{},
	}
}

// HasArtist reports whether the normalized artist is already in today's set
func (d *DailyCounters) HasArtist(artist string) bool {
	for _, a := range d.UniqueArtists {
		if a == artist {
			return true
		}
	}
	return false
}

// AddArtist adds a normalized artist to today's set, bounded by cap
func (d *DailyCounters) AddArtist(artist string, cap int) {
	if artist == "" || d.HasArtist(artist) || len(d.UniqueArtists) >= cap {
		return
	}
	d.UniqueArtists = append(d.UniqueArtists, artist)
}

// HasClaimedQuest reports whether a quest key was claimed today
func (d *DailyCounters) HasClaimedQuest(questKey string) bool {
	for _, k := range d.QuestClaimedKeys {
		if k == questKey {
			return true
		}
	}
	return false
}

// TokenClaim is one successful mint, kept in a newest-first bounded ring
// as a display cache. The ledger is the authoritative record.
type TokenClaim struct {
	Tokens                   int64     `json:"tokens"`
	CauseKey                 string    `json:"cause_key"`
	QualifiedSecondsConsumed int64     `json:"qualified_seconds_consumed"`
	CreatedAt                time.Time `json:"created_at"`
}

// SpendRecord is one catalog spend, kept in a newest-first bounded ring
type SpendRecord struct {
	ActionKey     string    `json:"action_key"`
	Label         string    `json:"label"`
	Cost          int64     `json:"cost"`
	DurationHours int64     `json:"duration_hours"`
	CreatedAt     time.Time `json:"created_at"`
}

// PushClaim prepends a claim and trims the ring to cap
func PushClaim(ring []TokenClaim, claim TokenClaim, cap int) []TokenClaim {
	ring = append([]TokenClaim{claim}, ring...)
	if len(ring) > cap {
		ring = ring[:cap]
	}
	return ring
}

// PushSpend prepends a spend record and trims the ring to cap
func PushSpend(ring []SpendRecord, spend SpendRecord, cap int) []SpendRecord {
	ring = append([]SpendRecord{spend}, ring...)
	if len(ring) > cap {
		ring = ring[:cap]
	}
	return ring
}

// RewardAccount represents the reward_accounts table - the per-user aggregate
// of wallet balance and rolling reward state. All mutations go through a
// version-checked conditional write so concurrent heartbeats cannot lose
// updates.
type RewardAccount struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserID is the externally-issued authenticated user identifier
	UserID string `gorm:"column:user_id;not null;type:text;uniqueIndex:idx_reward_accounts_user_id"`
	// DisplayName is shown on leaderboards
	DisplayName string `gorm:"column:display_name;not null;default:'';type:text"`
	// Role is the privilege level (user, admin, owner)
	Role string `gorm:"column:role;not null;default:'user';type:text"`

	// Wallet
	Symbol      string     `gorm:"column:symbol;not null;type:text"`
	Balance     int64      `gorm:"column:balance;not null;default:0"`
	TotalEarned int64      `gorm:"column:total_earned;not null;default:0"`
	LastClaimAt *time.Time `gorm:"column:last_claim_at;type:timestamptz"`

	// Rolling reward state
	TotalQualifiedSeconds   int64      `gorm:"column:total_qualified_seconds;not null;default:0"`
	PendingQualifiedSeconds int64      `gorm:"column:pending_qualified_seconds;not null;default:0"`
	LastRewardedTrackKey    string     `gorm:"column:last_rewarded_track_key;not null;default:'';type:text"`
	LastRewardAt            *time.Time `gorm:"column:last_reward_at;type:timestamptz"`
	LastListenEventAt       *time.Time `gorm:"column:last_listen_event_at;type:timestamptz"`
	StreakDays              int64      `gorm:"column:streak_days;not null;default:0"`
	LastActiveDayKey        string     `gorm:"column:last_active_day_key;not null;default:'';type:text"`
	SuspiciousScore         int64      `gorm:"column:suspicious_score;not null;default:0"`

	// Daily holds the DailyCounters value object for the current day
	Daily datatypes.JSON `gorm:"column:daily;type:jsonb"`
	// RecentClaims is the bounded newest-first TokenClaim ring
	RecentClaims datatypes.JSON `gorm:"column:recent_claims;type:jsonb"`
	// RecentSpends is the bounded newest-first SpendRecord ring
	RecentSpends datatypes.JSON `gorm:"column:recent_spends;type:jsonb"`

	// Version guards the conditional aggregate write
	Version int64 `gorm:"column:version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the RewardAccount model
func (RewardAccount) TableName() string {
	return "reward_accounts"
}

// DailyCounters decodes the current day's counters. A missing or empty
// column yields zero counters with an empty day key, which the engine
// treats as a rollover.
func (a *RewardAccount) DailyCounters() (DailyCounters, error) {
	if len(a.Daily) == 0 {
		return NewDailyCounters(""), nil
	}
	var d DailyCounters
	if err := json.Unmarshal(a.Daily, &d); err != nil {
		return DailyCounters{}, err
	}
	if d.TrackEvents == nil {
		d.TrackEvents = map[string]int64{}
	}
	if d.ArtistEvents == nil {
		d.ArtistEvents = map[string]int64{}
	}
	return d, nil
}

// SetDailyCounters encodes the day's counters into the aggregate
func (a *RewardAccount) SetDailyCounters(d DailyCounters) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	a.Daily = raw
	return nil
}

// Claims decodes the recent claims ring
func (a *RewardAccount) Claims() ([]TokenClaim, error) {
	if len(a.RecentClaims) == 0 {
		return nil, nil
	}
	var claims []TokenClaim
	if err := json.Unmarshal(a.RecentClaims, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// SetClaims encodes the recent claims ring
func (a *RewardAccount) SetClaims(claims []TokenClaim) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	a.RecentClaims = raw
	return nil
}

// Spends decodes the recent spends ring
func (a *RewardAccount) Spends() ([]SpendRecord, error) {
	if len(a.RecentSpends) == 0 {
		return nil, nil
	}
	var spends []SpendRecord
	if err := json.Unmarshal(a.RecentSpends, &spends); err != nil {
		return nil, err
	}
	return spends, nil
}

// SetSpends encodes the recent spends ring
func (a *RewardAccount) SetSpends(spends []SpendRecord) error {
	raw, err := json.Marshal(spends)
	if err != nil {
		return err
	}
	a.RecentSpends = raw
	return nil
}
