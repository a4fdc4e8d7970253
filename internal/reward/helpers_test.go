package reward

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/muzeer/rewards/internal/adapter"
	"github.com/muzeer/rewards/internal/control"
	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/messaging"
	"github.com/muzeer/rewards/internal/store"
	"github.com/muzeer/rewards/internal/store/schema"
)

// fakeClock is a manually advanced clock shared by the engine and the
// control service in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now().Add(d)
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// capturePublisher records every published ledger event
type capturePublisher struct {
	mu     sync.Mutex
	events []messaging.LedgerEvent
}

func (p *capturePublisher) PublishLedgerEvent(ctx context.Context, event messaging.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) Events() []messaging.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]messaging.LedgerEvent, len(p.events))
	copy(out, p.events)
	return out
}

// conflictingStore injects version conflicts into the first N commits to
// exercise the optimistic retry loop.
type conflictingStore struct {
	store.Store
	mu        sync.Mutex
	conflicts int
	commits   int
}

func (s *conflictingStore) CommitAccountMutation(ctx context.Context, input store.CommitAccountMutationInput) error {
	s.mu.Lock()
	s.commits++
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	s.mu.Unlock()

	if inject {
		return domain.ErrVersionConflict
	}
	return s.Store.CommitAccountMutation(ctx, input)
}

func testControl() schema.TokenControl {
	return schema.TokenControl{
		Symbol:                          "MUZR",
		QualifiedSecondsPerToken:        180,
		MaxSecondsPerEvent:              60,
		MaxDailyQualifiedSeconds:        7200,
		MinTrackEventIntervalSeconds:    8,
		MaxRepeatTrackEventsPerDay:      12,
		DiversityPenaltyPercent:         30,
		SuspiciousEventPenaltyThreshold: 25,
		SuspiciousEventHardLimit:        50,
		StreakMaxDays:                   7,
		StreakBonusPerDayPercent:        5,
		QuestDailyListenSecondsTarget:   2700,
		QuestDailyUniqueArtistsTarget:   3,
		QuestDailyTokenReward:           5,
		AllowAdminMintBurn:              true,
	}
}

type engineFixture struct {
	engine    *Engine
	store     store.Store
	clock     *fakeClock
	publisher *capturePublisher
}

func newEngineFixture(t *testing.T, defaults schema.TokenControl) *engineFixture {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore()
	pub := &capturePublisher{}
	ctrl := control.NewService(st, defaults, control.DefaultCacheTTL, clock)

	return &engineFixture{
		engine:    NewEngine(st, ctrl, clock, pub),
		store:     st,
		clock:     clock,
		publisher: pub,
	}
}

// submit sends one playing heartbeat and fails the test on error
func (f *engineFixture) submit(t *testing.T, userID, title, artist string, seconds float64) *ListenEventResult {
	t.Helper()
	result, err := f.engine.SubmitListenEvent(context.Background(), userID, "Tester", title, artist, true, seconds)
	require.NoError(t, err)
	return result
}

var _ adapter.Clock = (*fakeClock)(nil)
var _ messaging.Publisher = (*capturePublisher)(nil)
