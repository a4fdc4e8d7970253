package domain

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// LedgerEntryType represents the cause of a balance change
type LedgerEntryType string

const (
	LedgerEntryTypeReward LedgerEntryType = "reward"
	LedgerEntryTypeQuest  LedgerEntryType = "quest"
	LedgerEntryTypeSpend  LedgerEntryType = "spend"
	LedgerEntryTypeAdmin  LedgerEntryType = "admin"
	LedgerEntryTypeMint   LedgerEntryType = "mint"
	LedgerEntryTypeBurn   LedgerEntryType = "burn"
)

// IsValidLedgerEntryType checks if an entry type is one of the known causes
func IsValidLedgerEntryType(t LedgerEntryType) bool {
	switch t {
	case LedgerEntryTypeReward, LedgerEntryTypeQuest, LedgerEntryTypeSpend,
		LedgerEntryTypeAdmin, LedgerEntryTypeMint, LedgerEntryTypeBurn:
		return true
	}
	return false
}

// ZeroRewardReason is the machine-readable outcome of a listen event that
// minted nothing. These are expected business outcomes, not errors.
type ZeroRewardReason string

const (
	ReasonRewardsPaused       ZeroRewardReason = "rewards-paused"
	ReasonNotPlaying          ZeroRewardReason = "not-playing"
	ReasonMissingTrack        ZeroRewardReason = "missing-track"
	ReasonInvalidSeconds      ZeroRewardReason = "invalid-seconds"
	ReasonCooldown            ZeroRewardReason = "cooldown"
	ReasonDailyCapReached     ZeroRewardReason = "daily-cap-reached"
	ReasonSuspiciousThrottled ZeroRewardReason = "suspicious-throttled"
)

// Role represents the privilege level of an account
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// Valid reports whether the role is one of the known privilege levels
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleOwner
}

// CanModerate reports whether the role may perform balance mutations on
// other users (mint, burn, set-balance).
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleOwner
}

// CanEditGlobalControl reports whether the role may edit the global token
// control parameters.
func (r Role) CanEditGlobalControl() bool {
	return r == RoleAdmin || r == RoleOwner
}

// IsProtected reports whether the role may not be altered by a
// lower-privileged admin.
func (r Role) IsProtected() bool {
	return r == RoleOwner
}

// Tier is a cosmetic bracket derived from lifetime earned tokens
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// TierFor derives the tier bracket from lifetime earned tokens
func TierFor(totalEarned int64) Tier {
	switch {
	case totalEarned >= 1000:
		return TierPlatinum
	case totalEarned >= 250:
		return TierGold
	case totalEarned >= 50:
		return TierSilver
	default:
		return TierBronze
	}
}

// Quest keys for the two fixed daily quests
const (
	QuestKeyDailyListen  = "daily-listen-seconds"
	QuestKeyDailyArtists = "daily-unique-artists"
)

// Bounded collection caps on the per-user aggregate
const (
	// MaxRecentClaims is the capacity of the recent token claims ring
	MaxRecentClaims = 20
	// MaxRecentSpends is the capacity of the recent spends ring
	MaxRecentSpends = 20
	// MaxDailyUniqueArtists bounds the per-day unique artist set
	MaxDailyUniqueArtists = 50
	// WalletRecentClaims is how many claims the wallet read model surfaces
	WalletRecentClaims = 5
)

const (
	dayKeyLayout    = "2006-01-02"
	seasonKeyLayout = "2006-01"
)

var seasonKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// DayKeyFor returns the UTC calendar-date key for a point in time
func DayKeyFor(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// PreviousDayKeyFor returns the day key of the UTC day before t
func PreviousDayKeyFor(t time.Time) string {
	return t.UTC().AddDate(0, 0, -1).Format(dayKeyLayout)
}

// SeasonKeyFor returns the UTC year-month key for a point in time
func SeasonKeyFor(t time.Time) string {
	return t.UTC().Format(seasonKeyLayout)
}

// IsValidSeasonKey checks if a season key has the "YYYY-MM" shape
func IsValidSeasonKey(key string) bool {
	return seasonKeyPattern.MatchString(key)
}

// NewTrackKey builds the normalized "title::artist" session identifier.
// Title comparison stays case-sensitive; artist bucketing is handled
// separately via NormalizeArtist.
func NewTrackKey(title, artist string) string {
	return strings.TrimSpace(title) + "::" + strings.TrimSpace(artist)
}

// NormalizeArtist lowercases and trims an artist name for bucketing
func NormalizeArtist(artist string) string {
	return strings.ToLower(strings.TrimSpace(artist))
}

// ClampListenedSeconds converts raw client-reported seconds into an integer
// in [1, maxPerEvent]. Returns 0 when the input is non-finite or <= 0.
func ClampListenedSeconds(raw float64, maxPerEvent int64) int64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return 0
	}
	// Values at or beyond the cap clamp before the int64 conversion, which
	// is implementation-defined for floats outside the int64 range.
	if raw >= float64(maxPerEvent) {
		return maxPerEvent
	}
	seconds := int64(math.Floor(raw))
	if seconds < 1 {
		return 0
	}
	if seconds > maxPerEvent {
		return maxPerEvent
	}
	return seconds
}
