package admin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzeer/rewards/internal/control"
	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/store"
	"github.com/muzeer/rewards/internal/store/schema"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

var (
	adminActor = Actor{ID: "adm-1", Name: "Admin", Role: domain.RoleAdmin}
	ownerActor = Actor{ID: "own-1", Name: "Owner", Role: domain.RoleOwner}
	userActor  = Actor{ID: "usr-1", Name: "User", Role: domain.RoleUser}
)

func consoleDefaults() schema.TokenControl {
	return schema.TokenControl{
		Symbol:                   "MUZR",
		QualifiedSecondsPerToken: 180,
		MaxSecondsPerEvent:       60,
		MaxDailyQualifiedSeconds: 7200,
		StreakMaxDays:            7,
		AllowAdminMintBurn:       true,
	}
}

func newConsoleFixture(t *testing.T, defaults schema.TokenControl) (*Console, store.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore()
	ctrl := control.NewService(st, defaults, control.DefaultCacheTTL, clock)
	return NewConsole(st, ctrl, clock, nil), st, clock
}

func seedAccount(t *testing.T, st store.Store, userID string, role domain.Role, balance int64) {
	t.Helper()
	err := st.CreateRewardAccount(context.Background(), &schema.RewardAccount{
		UserID:      userID,
		DisplayName: "Target",
		Role:        string(role),
		Symbol:      "MUZR",
		Balance:     balance,
		TotalEarned: balance,
	})
	require.NoError(t, err)
}

func TestMintOrBurn(t *testing.T) {
	console, st, _ := newConsoleFixture(t, consoleDefaults())
	seedAccount(t, st, "u1", domain.RoleUser, 40)

	result, err := console.MintOrBurn(context.Background(), adminActor, "u1", 100, "promo grant")
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Delta)
	assert.Equal(t, int64(140), result.Balance)

	acc, err := st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(140), acc.Balance)
	assert.Equal(t, int64(140), acc.TotalEarned)

	result, err = console.MintOrBurn(context.Background(), adminActor, "u1", -40, "abuse clawback")
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Balance)

	// Burns are not earnings
	acc, err = st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(140), acc.TotalEarned)

	entries, err := st.ListLedgerEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.LedgerEntryTypeBurn, entries[0].EntryType)
	assert.Equal(t, int64(-40), entries[0].Delta)
	assert.Equal(t, domain.LedgerEntryTypeMint, entries[1].EntryType)
	assert.Equal(t, int64(100), entries[1].Delta)

	actions, err := st.ListRecentAdminActions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, schema.AdminActionTypeTokenAdjust, actions[0].ActionType)
	assert.Equal(t, "adm-1", actions[0].AdminID)
	require.NotNil(t, actions[0].Delta)
	assert.Equal(t, int64(-40), *actions[0].Delta)
	require.NotNil(t, actions[0].ResultingBalance)
	assert.Equal(t, int64(100), *actions[0].ResultingBalance)
}

func TestMintLeavesClaim(t *testing.T) {
	console, st, clock := newConsoleFixture(t, consoleDefaults())
	seedAccount(t, st, "u1", domain.RoleUser, 40)

	_, err := console.MintOrBurn(context.Background(), adminActor, "u1", 25, "promo grant")
	require.NoError(t, err)

	acc, err := st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	claims, err := acc.Claims()
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, int64(25), claims[0].Tokens)
	assert.Equal(t, "admin::mint", claims[0].CauseKey)
	assert.Equal(t, clock.Now().UTC(), claims[0].CreatedAt)

	// A burn is not a grant and leaves no claim
	_, err = console.MintOrBurn(context.Background(), adminActor, "u1", -10, "clawback")
	require.NoError(t, err)

	acc, err = st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	claims, err = acc.Claims()
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestSetBalanceLeavesClaimOnRaise(t *testing.T) {
	console, st, _ := newConsoleFixture(t, consoleDefaults())
	seedAccount(t, st, "u1", domain.RoleUser, 40)

	_, err := console.SetExactBalance(context.Background(), adminActor, "u1", 100, "support correction")
	require.NoError(t, err)

	acc, err := st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	claims, err := acc.Claims()
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, int64(60), claims[0].Tokens)
	assert.Equal(t, "admin::set-balance", claims[0].CauseKey)

	// Lowering the balance grants nothing
	_, err = console.SetExactBalance(context.Background(), adminActor, "u1", 70, "partial clawback")
	require.NoError(t, err)

	acc, err = st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	claims, err = acc.Claims()
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestMintOrBurnGuards(t *testing.T) {
	console, st, _ := newConsoleFixture(t, consoleDefaults())
	seedAccount(t, st, "u1", domain.RoleUser, 40)

	_, err := console.MintOrBurn(context.Background(), userActor, "u1", 10, "nope")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = console.MintOrBurn(context.Background(), adminActor, "u1", 0, "noop")
	assert.ErrorIs(t, err, domain.ErrInvalidDelta)

	_, err = console.MintOrBurn(context.Background(), adminActor, "u1", MaxAdjustmentMagnitude+1, "too big")
	assert.ErrorIs(t, err, domain.ErrInvalidDelta)

	_, err = console.MintOrBurn(context.Background(), adminActor, "ghost", 10, "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	// A burn can never drive the balance negative
	_, err = console.MintOrBurn(context.Background(), adminActor, "u1", -41, "overdraft")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	acc, err := st.GetRewardAccount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), acc.Balance)
}

func TestMintOrBurnDisabledByControl(t *testing.T) {
	defaults := consoleDefaults()
	defaults.AllowAdminMintBurn = false
	console, st, _ := newConsoleFixture(t, defaults)
	seedAccount(t, st, "u1", domain.RoleUser, 40)

	_, err := console.MintOrBurn(context.Background(), adminActor, "u1", 10, "grant")
	assert.ErrorIs(t, err, domain.ErrMintBurnDisabled)

	_, err = console.SetExactBalance(context.Background(), adminActor, "u1", 100, "pin")
	assert.ErrorIs(t, err, domain.ErrMintBurnDisabled)
}

func TestProtectedTargets(t *testing.T) {
	console, st, _ := newConsoleFixture(t, consoleDefaults())
	seedAccount(t, st, "boss", domain.RoleOwner, 40)

	_, err := console.MintOrBurn(context.Background(), adminActor, "boss", 10, "grant")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	result, err := console.MintOrBurn(context.Background(), ownerActor, "boss", 10, "grant")
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Balance)
}

func TestSetExactBalance(t *testing.T) {
	console, st, _ := newConsoleFixture(t, consoleDefaults())
	seedAccount(t, st, "u1", domain.RoleUser, 40)

	_, err := console.SetExactBalance(context.Background(), adminActor, "u1", -1, "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidDelta)

	result, err := console.SetExactBalance(context.Background(), adminActor, "u1", 100, "support correction")
	require.NoError(t, err)
	assert.Equal(t, int64(60), result.Delta)
	assert.Equal(t, int64(100), result.Balance)

	// The implied delta lands in the ledger so conservation holds
	entries, err := st.ListLedgerEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerEntryTypeAdmin, entries[0].EntryType)
	assert.Equal(t, int64(60), entries[0].Delta)

	// Setting the same value audits without a ledger entry
	result, err = console.SetExactBalance(context.Background(), adminActor, "u1", 100, "no change")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Delta)

	entries, err = st.ListLedgerEntries(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	actions, err := st.ListRecentAdminActions(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, actions, 2)
	assert.Equal(t, schema.AdminActionTypeSetBalance, actions[0].ActionType)
}

func TestUpdateControl(t *testing.T) {
	console, st, _ := newConsoleFixture(t, consoleDefaults())

	_, err := console.UpdateControl(context.Background(), userActor, ControlPatch{})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	paused := true
	rate := int64(240)
	updated, err := console.UpdateControl(context.Background(), adminActor, ControlPatch{
		RewardsPaused:            &paused,
		QualifiedSecondsPerToken: &rate,
	})
	require.NoError(t, err)
	assert.True(t, updated.RewardsPaused)
	assert.Equal(t, int64(240), updated.QualifiedSecondsPerToken)
	// Untouched fields keep their values
	assert.Equal(t, int64(7200), updated.MaxDailyQualifiedSeconds)

	// The cache is invalidated, so the next read sees the new values
	current, err := console.GetControl(context.Background(), adminActor)
	require.NoError(t, err)
	assert.True(t, current.RewardsPaused)
	assert.Equal(t, int64(240), current.QualifiedSecondsPerToken)

	actions, err := st.ListRecentAdminActions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, schema.AdminActionTypeControlUpdate, actions[0].ActionType)
	assert.Contains(t, string(actions[0].Metadata), "rewards_paused")
}

func TestRecentActionsRequiresModerator(t *testing.T) {
	console, _, _ := newConsoleFixture(t, consoleDefaults())

	_, err := console.RecentActions(context.Background(), userActor, 10)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	actions, err := console.RecentActions(context.Background(), adminActor, 10)
	require.NoError(t, err)
	assert.Empty(t, actions)
}
