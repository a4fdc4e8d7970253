package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzeer/rewards/internal/admin"
	"github.com/muzeer/rewards/internal/api/middleware"
	"github.com/muzeer/rewards/internal/control"
	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/reward"
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

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func restDefaults() schema.TokenControl {
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

// restFixture serves the full route table over an in-memory store, with the
// auth middleware replaced by a stub that injects f.caller.
type restFixture struct {
	store  store.Store
	clock  *fakeClock
	router *gin.Engine

	mu     sync.Mutex
	caller *middleware.Caller
}

func newRestFixture(t *testing.T, defaults schema.TokenControl) *restFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &fakeClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore()
	ctrl := control.NewService(st, defaults, control.DefaultCacheTTL, clock)
	handler := NewHandler(reward.NewEngine(st, ctrl, clock, nil), admin.NewConsole(st, ctrl, clock, nil))

	f := &restFixture{store: st, clock: clock}

	injectCaller := func(c *gin.Context) {
		f.mu.Lock()
		caller := f.caller
		f.mu.Unlock()
		if caller != nil {
			c.Set(middleware.AUTH_USER_KEY, *caller)
		}
		c.Next()
	}

	router := gin.New()
	router.GET("/health", handler.HealthCheck)
	v1 := router.Group("/api/v1")
	v1.GET("/rewards/config", handler.GetConfig)
	v1.GET("/rewards/leaderboard", handler.GetLeaderboard)
	rewards := v1.Group("/rewards", injectCaller)
	{
		rewards.POST("/listen-events", handler.SubmitListenEvent)
		rewards.GET("/wallet", handler.GetWallet)
		rewards.GET("/quests", handler.ListQuests)
		rewards.POST("/quests/:key/claim", handler.ClaimQuest)
		rewards.GET("/catalog", handler.GetCatalog)
		rewards.POST("/spends", handler.Spend)
		rewards.GET("/ledger", handler.GetLedger)
	}
	adminGroup := v1.Group("/admin", injectCaller, middleware.RequireModerator())
	{
		adminGroup.GET("/control", handler.GetControl)
		adminGroup.PATCH("/control", handler.UpdateControl)
		adminGroup.POST("/adjustments", handler.AdjustBalance)
		adminGroup.POST("/balances", handler.SetBalance)
		adminGroup.GET("/actions", handler.ListAdminActions)
	}
	f.router = router

	return f
}

func (f *restFixture) as(userID, name string, role domain.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caller = &middleware.Caller{UserID: userID, DisplayName: name, Role: role}
}

func (f *restFixture) anonymous() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caller = nil
}

func (f *restFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// errorCode extracts the code from the standard error envelope
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	decodeBody(t, w, &resp)
	return string(resp.Error.Code)
}

func listenBody(title, artist string, seconds float64) gin.H {
	return gin.H{
		"title":            title,
		"artist":           artist,
		"is_playing":       true,
		"listened_seconds": seconds,
	}
}

func TestHealthCheck(t *testing.T) {
	f := newRestFixture(t, restDefaults())

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "muzeer-rewards-api", body["service"])
}

func TestGetConfigEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())

	w := f.do(t, http.MethodGet, "/api/v1/rewards/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cfg reward.PublicConfig
	decodeBody(t, w, &cfg)
	assert.Equal(t, "MUZR", cfg.Symbol)
	assert.Equal(t, int64(180), cfg.QualifiedSecondsPerToken)
	assert.Equal(t, int64(7200), cfg.MaxDailyQualifiedSeconds)
	assert.False(t, cfg.RewardsPaused)

	// Abuse thresholds never leave the server
	var raw map[string]any
	decodeBody(t, w, &raw)
	assert.NotContains(t, raw, "suspicious_event_hard_limit")
	assert.NotContains(t, raw, "min_track_event_interval_seconds")
}

func TestSubmitListenEventEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)

	w := f.do(t, http.MethodPost, "/api/v1/rewards/listen-events", listenBody("Alison", "Slowdive", 60))
	require.Equal(t, http.StatusOK, w.Code)

	var result reward.ListenEventResult
	decodeBody(t, w, &result)
	assert.Equal(t, "MUZR", result.Symbol)
	assert.Equal(t, int64(60), result.QualifiedSecondsAdded)
	assert.Equal(t, int64(60), result.PendingQualifiedSeconds)
	assert.Equal(t, int64(1), result.StreakDays)
	assert.Empty(t, result.Reason)
}

func TestSubmitListenEventEndpointRejectsBadBodies(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)

	t.Run("malformed json", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/listen-events", "{not json")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
	})

	t.Run("oversized title", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/listen-events",
			listenBody(strings.Repeat("x", 513), "Slowdive", 60))
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
	})
}

func TestMissingCallerIdentity(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.anonymous()

	w := f.do(t, http.MethodGet, "/api/v1/rewards/wallet", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errCodeBadRequest), errorCode(t, w))
}

func TestGetWalletEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)

	f.do(t, http.MethodPost, "/api/v1/rewards/listen-events", listenBody("Alison", "Slowdive", 60))

	w := f.do(t, http.MethodGet, "/api/v1/rewards/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot reward.WalletSnapshot
	decodeBody(t, w, &snapshot)
	assert.Equal(t, "MUZR", snapshot.Symbol)
	assert.Equal(t, int64(60), snapshot.PendingQualifiedSeconds)
	assert.Equal(t, int64(60), snapshot.RewardedSecondsToday)
	assert.Equal(t, int64(7140), snapshot.DailyRemainingSeconds)
	assert.Len(t, snapshot.Quests, 2)
	assert.Len(t, snapshot.Catalog, 3)
}

func TestQuestEndpoints(t *testing.T) {
	defaults := restDefaults()
	defaults.QuestDailyListenSecondsTarget = 60
	f := newRestFixture(t, defaults)
	f.as("u1", "Tester", domain.RoleUser)

	w := f.do(t, http.MethodGet, "/api/v1/rewards/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var board struct {
		Quests []reward.Quest `json:"quests"`
	}
	decodeBody(t, w, &board)
	require.Len(t, board.Quests, 2)
	assert.Equal(t, domain.QuestKeyDailyListen, board.Quests[0].Key)
	assert.Equal(t, domain.QuestKeyDailyArtists, board.Quests[1].Key)

	// A short heartbeat creates the account without completing anything
	f.do(t, http.MethodPost, "/api/v1/rewards/listen-events", listenBody("Warmth", "Lowtide", 10))

	t.Run("unknown quest", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/quests/no-such-quest/claim", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, string(errCodeNotFound), errorCode(t, w))
	})

	t.Run("not completed", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/quests/"+domain.QuestKeyDailyListen+"/claim", nil)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(errCodeConflict), errorCode(t, w))
	})

	t.Run("claim after completion", func(t *testing.T) {
		f.do(t, http.MethodPost, "/api/v1/rewards/listen-events", listenBody("Alison", "Slowdive", 60))

		w := f.do(t, http.MethodPost, "/api/v1/rewards/quests/"+domain.QuestKeyDailyListen+"/claim", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var result reward.QuestClaimResult
		decodeBody(t, w, &result)
		assert.Equal(t, domain.QuestKeyDailyListen, result.ClaimedKey)
		assert.Equal(t, int64(5), result.RewardedTokens)
		assert.Equal(t, int64(5), result.Balance)
	})

	t.Run("double claim", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/quests/"+domain.QuestKeyDailyListen+"/claim", nil)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(errCodeConflict), errorCode(t, w))
	})
}

func TestCatalogEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)

	w := f.do(t, http.MethodGet, "/api/v1/rewards/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Catalog []reward.SpendAction `json:"catalog"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Catalog, 3)
	assert.Equal(t, "hd-audio-24h", body.Catalog[0].Key)
	assert.Equal(t, int64(12), body.Catalog[0].Cost)
}

func TestSpendEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)
	seedRestAccount(t, f, "u1", 40)

	w := f.do(t, http.MethodPost, "/api/v1/rewards/spends", gin.H{"action_key": "hd-audio-24h"})
	require.Equal(t, http.StatusOK, w.Code)

	var result reward.SpendResult
	decodeBody(t, w, &result)
	assert.Equal(t, "hd-audio-24h", result.Action.Key)
	assert.Equal(t, int64(28), result.Balance)
	require.Len(t, result.Spends, 1)

	t.Run("blank action key", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/spends", gin.H{"action_key": "  "})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
	})

	t.Run("unknown action", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/rewards/spends", gin.H{"action_key": "teleport"})
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, string(errCodeNotFound), errorCode(t, w))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f.as("broke", "Broke", domain.RoleUser)
		seedRestAccount(t, f, "broke", 3)

		w := f.do(t, http.MethodPost, "/api/v1/rewards/spends", gin.H{"action_key": "hd-audio-24h"})
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(errCodeConflict), errorCode(t, w))
	})
}

func TestLedgerEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)
	seedRestAccount(t, f, "u1", 40)

	f.do(t, http.MethodPost, "/api/v1/rewards/spends", gin.H{"action_key": "hd-audio-24h"})
	f.do(t, http.MethodPost, "/api/v1/rewards/spends", gin.H{"action_key": "queue-priority-24h"})

	w := f.do(t, http.MethodGet, "/api/v1/rewards/ledger?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []schema.LedgerEntry `json:"entries"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Entries, 1)

	w = f.do(t, http.MethodGet, "/api/v1/rewards/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body.Entries = nil
	decodeBody(t, w, &body)
	assert.Len(t, body.Entries, 2)

	w = f.do(t, http.MethodGet, "/api/v1/rewards/ledger?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
}

func TestLeaderboardEndpoint(t *testing.T) {
	defaults := restDefaults()
	defaults.QualifiedSecondsPerToken = 60
	f := newRestFixture(t, defaults)

	f.as("u1", "Tester", domain.RoleUser)
	f.do(t, http.MethodPost, "/api/v1/rewards/listen-events", listenBody("Alison", "Slowdive", 60))

	w := f.do(t, http.MethodGet, "/api/v1/rewards/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Season  string                 `json:"season"`
		Entries []store.LeaderboardRow `json:"entries"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, "2025-06", body.Season)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "u1", body.Entries[0].UserID)
	assert.Equal(t, int64(1), body.Entries[0].Tokens)

	t.Run("bad season", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/rewards/leaderboard?season=2025-13", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeBadRequest), errorCode(t, w))
	})
}

func TestAdminEndpointsRequireModerator(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("u1", "Tester", domain.RoleUser)

	w := f.do(t, http.MethodGet, "/api/v1/admin/control", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/admin/adjustments", gin.H{"user_id": "u1", "delta": 5, "reason": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestControlEndpoints(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("adm-1", "Admin", domain.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/v1/admin/control", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ctrl schema.TokenControl
	decodeBody(t, w, &ctrl)
	assert.Equal(t, "MUZR", ctrl.Symbol)
	assert.False(t, ctrl.RewardsPaused)

	w = f.do(t, http.MethodPatch, "/api/v1/admin/control",
		gin.H{"rewards_paused": true, "qualified_seconds_per_token": 240})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &ctrl)
	assert.True(t, ctrl.RewardsPaused)
	assert.Equal(t, int64(240), ctrl.QualifiedSecondsPerToken)

	// The patch is immediately live for reads
	w = f.do(t, http.MethodGet, "/api/v1/admin/control", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &ctrl)
	assert.True(t, ctrl.RewardsPaused)
}

func TestAdjustBalanceEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("adm-1", "Admin", domain.RoleAdmin)
	seedRestAccount(t, f, "u1", 40)

	w := f.do(t, http.MethodPost, "/api/v1/admin/adjustments",
		gin.H{"user_id": "u1", "delta": 100, "reason": "promo grant"})
	require.Equal(t, http.StatusOK, w.Code)

	var result admin.AdjustResult
	decodeBody(t, w, &result)
	assert.Equal(t, "u1", result.TargetUserID)
	assert.Equal(t, int64(100), result.Delta)
	assert.Equal(t, int64(140), result.Balance)

	t.Run("zero delta", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/admin/adjustments",
			gin.H{"user_id": "u1", "delta": 0, "reason": "noop"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
	})

	t.Run("missing reason", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/admin/adjustments",
			gin.H{"user_id": "u1", "delta": 5})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
	})

	t.Run("unknown account", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/admin/adjustments",
			gin.H{"user_id": "ghost", "delta": 5, "reason": "x"})
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, string(errCodeNotFound), errorCode(t, w))
	})
}

func TestSetBalanceEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("adm-1", "Admin", domain.RoleAdmin)
	seedRestAccount(t, f, "u1", 40)

	w := f.do(t, http.MethodPost, "/api/v1/admin/balances",
		gin.H{"user_id": "u1", "balance": 100, "reason": "support correction"})
	require.Equal(t, http.StatusOK, w.Code)

	var result admin.AdjustResult
	decodeBody(t, w, &result)
	assert.Equal(t, int64(60), result.Delta)
	assert.Equal(t, int64(100), result.Balance)

	t.Run("negative balance", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/admin/balances",
			gin.H{"user_id": "u1", "balance": -1, "reason": "x"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errCodeValidationFailed), errorCode(t, w))
	})
}

func TestListAdminActionsEndpoint(t *testing.T) {
	f := newRestFixture(t, restDefaults())
	f.as("adm-1", "Admin", domain.RoleAdmin)
	seedRestAccount(t, f, "u1", 40)

	f.do(t, http.MethodPost, "/api/v1/admin/adjustments",
		gin.H{"user_id": "u1", "delta": 10, "reason": "first"})
	f.do(t, http.MethodPost, "/api/v1/admin/adjustments",
		gin.H{"user_id": "u1", "delta": 20, "reason": "second"})

	w := f.do(t, http.MethodGet, "/api/v1/admin/actions?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Actions []schema.AdminAction `json:"actions"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Actions, 1)
	assert.Equal(t, "adm-1", body.Actions[0].AdminID)
	assert.Equal(t, schema.AdminActionTypeTokenAdjust, body.Actions[0].ActionType)
}

// TestSetupRoutesAuth exercises the real route table: health and leaderboard
// are public, everything else rejects unauthenticated requests.
func TestSetupRoutesAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &fakeClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore()
	ctrl := control.NewService(st, restDefaults(), control.DefaultCacheTTL, clock)
	handler := NewHandler(reward.NewEngine(st, ctrl, clock, nil), admin.NewConsole(st, ctrl, clock, nil))

	router := gin.New()
	SetupRoutes(router, handler, middleware.AuthConfig{})

	serve := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/v1/rewards/config").Code)
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/v1/rewards/leaderboard").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/api/v1/rewards/wallet").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodPost, "/api/v1/rewards/listen-events").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/api/v1/admin/control").Code)
}

func seedRestAccount(t *testing.T, f *restFixture, userID string, balance int64) {
	t.Helper()
	err := f.store.CreateRewardAccount(context.Background(), &schema.RewardAccount{
		UserID:      userID,
		DisplayName: "Tester",
		Role:        string(domain.RoleUser),
		Symbol:      "MUZR",
		Balance:     balance,
		TotalEarned: balance,
	})
	require.NoError(t, err)
}
