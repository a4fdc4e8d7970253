package rest

import (
	"errors"
	"strings"

	"github.com/muzeer/rewards/internal/admin"
)

// ListenEventRequest is the body of POST /rewards/listen-events. One request
// per playback heartbeat; the server decides what, if anything, it earns.
type ListenEventRequest struct {
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	IsPlaying       bool    `json:"is_playing"`
	ListenedSeconds float64 `json:"listened_seconds"`
}

// Validate checks structural limits only; semantic gating (empty track,
// bad seconds) is the engine's job and yields zero-reward results, not
// request errors.
func (r *ListenEventRequest) Validate() error {
	if len(r.Title) > 512 {
		return errors.New("title too long")
	}
	if len(r.Artist) > 512 {
		return errors.New("artist too long")
	}
	return nil
}

// SpendRequest is the body of POST /rewards/spends
type SpendRequest struct {
	ActionKey string `json:"action_key"`
}

// Validate checks the spend request
func (r *SpendRequest) Validate() error {
	if strings.TrimSpace(r.ActionKey) == "" {
		return errors.New("action_key is required")
	}
	return nil
}

// AdjustBalanceRequest is the body of POST /admin/adjustments
type AdjustBalanceRequest struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// Validate checks the adjustment request
func (r *AdjustBalanceRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if r.Delta == 0 {
		return errors.New("delta must be non-zero")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return errors.New("reason is required")
	}
	return nil
}

// SetBalanceRequest is the body of POST /admin/balances
type SetBalanceRequest struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Reason  string `json:"reason"`
}

// Validate checks the set-balance request
func (r *SetBalanceRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if r.Balance < 0 {
		return errors.New("balance must be non-negative")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return errors.New("reason is required")
	}
	return nil
}

// UpdateControlRequest is the body of PATCH /admin/control. The patch struct
// is the allow-list; unknown fields are ignored by binding.
type UpdateControlRequest struct {
	admin.ControlPatch
}
