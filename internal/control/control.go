package control

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/muzeer/rewards/internal/adapter"
	"github.com/muzeer/rewards/internal/store"
	"github.com/muzeer/rewards/internal/store/schema"
)

// DefaultCacheTTL bounds how long a control read may be served from cache.
// Updates invalidate explicitly, so the TTL only covers out-of-band writes.
const DefaultCacheTTL = 30 * time.Second

// Service serves the global token control parameters with an in-process
// cache. The row is created lazily from defaults on first read; writes go
// through Update, which invalidates the cache promptly so stale caps are
// never applied after an admin edit.
type Service struct {
	store    store.Store
	defaults schema.TokenControl
	cacheTTL time.Duration
	clock    adapter.Clock

	mu       sync.RWMutex
	cached   *schema.TokenControl
	cachedAt time.Time
}

// NewService creates a control service. The defaults seed the lazily-created
// row and backfill invalid persisted values on read.
func NewService(st store.Store, defaults schema.TokenControl, cacheTTL time.Duration, clock adapter.Clock) *Service {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Service{
		store:    st,
		defaults: defaults,
		cacheTTL: cacheTTL,
		clock:    clock,
	}
}

// Get returns the live control, serving from cache within the TTL
func (s *Service) Get(ctx context.Context) (*schema.TokenControl, error) {
	s.mu.RLock()
	if s.cached != nil && s.clock.Since(s.cachedAt) < s.cacheTTL {
		cached := *s.cached
		s.mu.RUnlock()
		return &cached, nil
	}
	s.mu.RUnlock()

	control, err := s.store.GetTokenControl(ctx)
	if err != nil {
		return nil, err
	}

	if control == nil {
		seed := s.defaults
		seed.Key = schema.TokenControlKey
		if err := s.store.CreateTokenControl(ctx, &seed); err != nil {
			return nil, err
		}
		// Re-read so a concurrent creator's row wins over our seed
		control, err = s.store.GetTokenControl(ctx)
		if err != nil {
			return nil, err
		}
		if control == nil {
			return nil, fmt.Errorf("token control missing after creation")
		}
	}

	s.sanitize(control)

	s.mu.Lock()
	snapshot := *control
	s.cached = &snapshot
	s.cachedAt = s.clock.Now()
	s.mu.Unlock()

	return control, nil
}

// Update persists a new control row and invalidates the cache
func (s *Service) Update(ctx context.Context, control *schema.TokenControl) error {
	s.sanitize(control)
	if err := s.store.UpdateTokenControl(ctx, control); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// UpdateWithAudit persists a new control row together with its audit row in
// one store transaction, then invalidates the cache
func (s *Service) UpdateWithAudit(ctx context.Context, control *schema.TokenControl, action *schema.AdminAction) error {
	s.sanitize(control)
	if action != nil {
		// the audit row describes the row as persisted, not as submitted
		action.Symbol = control.Symbol
	}
	if err := s.store.UpdateTokenControlWithAudit(ctx, control, action); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Invalidate drops the cached control so the next read hits the store
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// MaxSymbolLength caps the ticker symbol stored on the control row
const MaxSymbolLength = 10

// sanitize backfills invalid persisted values from defaults. The symbol is
// normalized to a trimmed, uppercased, length-capped ticker; rates that must
// be positive fall back entirely; plain counters floor at zero.
func (s *Service) sanitize(control *schema.TokenControl) {
	control.Symbol = strings.ToUpper(strings.TrimSpace(control.Symbol))
	if len(control.Symbol) > MaxSymbolLength {
		control.Symbol = control.Symbol[:MaxSymbolLength]
	}
	if control.Symbol == "" {
		control.Symbol = s.defaults.Symbol
	}
	if control.QualifiedSecondsPerToken < 1 {
		control.QualifiedSecondsPerToken = s.defaults.QualifiedSecondsPerToken
	}
	if control.MaxSecondsPerEvent < 1 {
		control.MaxSecondsPerEvent = s.defaults.MaxSecondsPerEvent
	}
	if control.MaxDailyQualifiedSeconds < 0 {
		control.MaxDailyQualifiedSeconds = 0
	}
	if control.MinTrackEventIntervalSeconds < 0 {
		control.MinTrackEventIntervalSeconds = 0
	}
	if control.MaxRepeatTrackEventsPerDay < 0 {
		control.MaxRepeatTrackEventsPerDay = 0
	}
	if control.DiversityPenaltyPercent < 0 {
		control.DiversityPenaltyPercent = 0
	}
	if control.DiversityPenaltyPercent > 100 {
		control.DiversityPenaltyPercent = 100
	}
	if control.SuspiciousEventPenaltyThreshold < 0 {
		control.SuspiciousEventPenaltyThreshold = 0
	}
	if control.SuspiciousEventHardLimit < 0 {
		control.SuspiciousEventHardLimit = 0
	}
	if control.StreakMaxDays < 1 {
		control.StreakMaxDays = 1
	}
	if control.StreakBonusPerDayPercent < 0 {
		control.StreakBonusPerDayPercent = 0
	}
	if control.QuestDailyListenSecondsTarget < 0 {
		control.QuestDailyListenSecondsTarget = 0
	}
	if control.QuestDailyUniqueArtistsTarget < 0 {
		control.QuestDailyUniqueArtistsTarget = 0
	}
	if control.QuestDailyTokenReward < 0 {
		control.QuestDailyTokenReward = 0
	}
}
