package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/muzeer/rewards/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		// Config and leaderboard are public read access
		v1.GET("/rewards/config", handler.GetConfig)
		v1.GET("/rewards/leaderboard", handler.GetLeaderboard)

		// Player endpoints (require a user JWT)
		rewards := v1.Group("/rewards", middleware.Auth(authCfg))
		{
			rewards.POST("/listen-events", handler.SubmitListenEvent)
			rewards.GET("/wallet", handler.GetWallet)
			rewards.GET("/quests", handler.ListQuests)
			rewards.POST("/quests/:key/claim", handler.ClaimQuest)
			rewards.GET("/catalog", handler.GetCatalog)
			rewards.POST("/spends", handler.Spend)
			rewards.GET("/ledger", handler.GetLedger)
		}

		// Admin endpoints (require a moderator JWT; the console re-checks
		// capabilities per operation)
		adminGroup := v1.Group("/admin", middleware.Auth(authCfg), middleware.RequireModerator())
		{
			adminGroup.GET("/control", handler.GetControl)
			adminGroup.PATCH("/control", handler.UpdateControl)
			adminGroup.POST("/adjustments", handler.AdjustBalance)
			adminGroup.POST("/balances", handler.SetBalance)
			adminGroup.GET("/actions", handler.ListAdminActions)
		}
	}
}
