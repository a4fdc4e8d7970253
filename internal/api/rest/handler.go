package rest

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muzeer/rewards/internal/admin"
	"github.com/muzeer/rewards/internal/api/middleware"
	"github.com/muzeer/rewards/internal/reward"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// SubmitListenEvent ingests one playback heartbeat and returns the
	// reward telemetry for it
	// POST /api/v1/rewards/listen-events
	SubmitListenEvent(c *gin.Context)

	// GetConfig returns the public reward economics
	// GET /api/v1/rewards/config
	GetConfig(c *gin.Context)

	// GetWallet returns the caller's wallet snapshot
	// GET /api/v1/rewards/wallet
	GetWallet(c *gin.Context)

	// ListQuests returns today's quest board for the caller
	// GET /api/v1/rewards/quests
	ListQuests(c *gin.Context)

	// ClaimQuest pays out a completed daily quest
	// POST /api/v1/rewards/quests/:key/claim
	ClaimQuest(c *gin.Context)

	// GetCatalog returns the fixed spend catalog
	// GET /api/v1/rewards/catalog
	GetCatalog(c *gin.Context)

	// Spend redeems tokens against a catalog action
	// POST /api/v1/rewards/spends
	Spend(c *gin.Context)

	// GetLedger returns the caller's newest ledger entries
	// GET /api/v1/rewards/ledger?limit=<limit>
	GetLedger(c *gin.Context)

	// GetLeaderboard ranks earners for a season
	// GET /api/v1/rewards/leaderboard?season=<YYYY-MM>&limit=<limit>
	GetLeaderboard(c *gin.Context)

	// GetControl returns the live token control
	// GET /api/v1/admin/control
	GetControl(c *gin.Context)

	// UpdateControl patches the live token control
	// PATCH /api/v1/admin/control
	UpdateControl(c *gin.Context)

	// AdjustBalance applies a manual mint or burn to a user
	// POST /api/v1/admin/adjustments
	AdjustBalance(c *gin.Context)

	// SetBalance pins a user's balance to an exact value
	// POST /api/v1/admin/balances
	SetBalance(c *gin.Context)

	// ListAdminActions returns the newest audit rows
	// GET /api/v1/admin/actions?limit=<limit>
	ListAdminActions(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	engine  *reward.Engine
	console *admin.Console
}

// NewHandler creates a new REST API handler
func NewHandler(engine *reward.Engine, console *admin.Console) Handler {
	return &handler{
		engine:  engine,
		console: console,
	}
}

// SubmitListenEvent ingests one playback heartbeat
func (h *handler) SubmitListenEvent(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	var req ListenEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.engine.SubmitListenEvent(
		c.Request.Context(),
		caller.UserID,
		caller.DisplayName,
		req.Title,
		req.Artist,
		req.IsPlaying,
		req.ListenedSeconds,
	)
	if err != nil {
		respondDomainError(c, err, "Failed to process listen event")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetConfig returns the public reward economics
func (h *handler) GetConfig(c *gin.Context) {
	cfg, err := h.engine.GetConfig(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "Failed to load config")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GetWallet returns the caller's wallet snapshot
func (h *handler) GetWallet(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	snapshot, err := h.engine.GetWallet(c.Request.Context(), caller.UserID)
	if err != nil {
		respondDomainError(c, err, "Failed to load wallet")
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// ListQuests returns today's quest board
func (h *handler) ListQuests(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	quests, err := h.engine.ListQuests(c.Request.Context(), caller.UserID)
	if err != nil {
		respondDomainError(c, err, "Failed to load quests")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quests": quests})
}

// ClaimQuest pays out a completed daily quest
func (h *handler) ClaimQuest(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	questKey := c.Param("key")
	if questKey == "" {
		respondBadRequest(c, "Quest key is required")
		return
	}

	result, err := h.engine.ClaimQuest(c.Request.Context(), caller.UserID, questKey)
	if err != nil {
		respondDomainError(c, err, "Failed to claim quest")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCatalog returns the fixed spend catalog
func (h *handler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"catalog": reward.Catalog()})
}

// Spend redeems tokens against a catalog action
func (h *handler) Spend(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.engine.Spend(c.Request.Context(), caller.UserID, req.ActionKey)
	if err != nil {
		respondDomainError(c, err, "Failed to spend")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetLedger returns the caller's newest ledger entries
func (h *handler) GetLedger(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	params, err := ParseLedgerQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	entries, err := h.engine.GetLedger(c.Request.Context(), caller.UserID, params.Limit)
	if err != nil {
		respondDomainError(c, err, "Failed to load ledger")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetLeaderboard ranks earners for a season
func (h *handler) GetLeaderboard(c *gin.Context) {
	params, err := ParseLeaderboardQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	seasonKey, rows, err := h.engine.GetLeaderboard(c.Request.Context(), params.Season, params.Limit)
	if err != nil {
		respondDomainError(c, err, "Failed to load leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"season":  seasonKey,
		"entries": rows,
	})
}

// GetControl returns the live token control
func (h *handler) GetControl(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	control, err := h.console.GetControl(c.Request.Context(), actor)
	if err != nil {
		respondDomainError(c, err, "Failed to load control")
		return
	}

	c.JSON(http.StatusOK, control)
}

// UpdateControl patches the live token control
func (h *handler) UpdateControl(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	var req UpdateControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	control, err := h.console.UpdateControl(c.Request.Context(), actor, req.ControlPatch)
	if err != nil {
		respondDomainError(c, err, "Failed to update control")
		return
	}

	c.JSON(http.StatusOK, control)
}

// AdjustBalance applies a manual mint or burn to a user
func (h *handler) AdjustBalance(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.console.MintOrBurn(c.Request.Context(), actor, req.UserID, req.Delta, req.Reason)
	if err != nil {
		respondDomainError(c, err, "Failed to adjust balance")
		return
	}

	c.JSON(http.StatusOK, result)
}

// SetBalance pins a user's balance to an exact value
func (h *handler) SetBalance(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	var req SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.console.SetExactBalance(c.Request.Context(), actor, req.UserID, req.Balance, req.Reason)
	if err != nil {
		respondDomainError(c, err, "Failed to set balance")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListAdminActions returns the newest audit rows
func (h *handler) ListAdminActions(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		respondBadRequest(c, "Caller identity missing")
		return
	}

	params, err := ParseAdminActionsQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	actions, err := h.console.RecentActions(c.Request.Context(), actor, params.Limit)
	if err != nil {
		respondDomainError(c, err, "Failed to load admin actions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "muzeer-rewards-api",
	})
}

// adminActor converts the authenticated caller into a console actor
func adminActor(c *gin.Context) (admin.Actor, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return admin.Actor{}, false
	}
	return admin.Actor{
		ID:   caller.UserID,
		Name: caller.DisplayName,
		Role: caller.Role,
	}, true
}
