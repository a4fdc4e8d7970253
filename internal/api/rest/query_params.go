package rest

import (
	"github.com/gin-gonic/gin"
)

const MAX_PAGE_SIZE = 100

// LeaderboardQueryParams holds query parameters for GET /rewards/leaderboard
type LeaderboardQueryParams struct {
	// Season selects the season to rank; empty means the current one
	Season string `form:"season"`
	Limit  int    `form:"limit,default=20"`
}

// ParseLeaderboardQuery parses query parameters for GET /rewards/leaderboard
func ParseLeaderboardQuery(c *gin.Context) (*LeaderboardQueryParams, error) {
	var params LeaderboardQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}

// LedgerQueryParams holds query parameters for GET /rewards/ledger
type LedgerQueryParams struct {
	Limit int `form:"limit,default=50"`
}

// ParseLedgerQuery parses query parameters for GET /rewards/ledger
func ParseLedgerQuery(c *gin.Context) (*LedgerQueryParams, error) {
	var params LedgerQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Limit < 1 {
		params.Limit = 50
	}
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}

// AdminActionsQueryParams holds query parameters for GET /admin/actions
type AdminActionsQueryParams struct {
	Limit int `form:"limit,default=50"`
}

// ParseAdminActionsQuery parses query parameters for GET /admin/actions
func ParseAdminActionsQuery(c *gin.Context) (*AdminActionsQueryParams, error) {
	var params AdminActionsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Limit < 1 {
		params.Limit = 50
	}
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}
