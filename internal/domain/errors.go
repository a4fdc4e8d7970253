package domain

import "errors"

var (
	// ErrVersionConflict is returned when a conditional aggregate write lost
	// a race and should be retried against fresh state
	ErrVersionConflict = errors.New("aggregate version conflict")

	// ErrAccountNotFound is returned when a user has no reward account
	ErrAccountNotFound = errors.New("reward account not found")

	// ErrInsufficientBalance is returned when a spend or burn would drive
	// the balance negative
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrQuestNotFound is returned for an unknown quest key
	ErrQuestNotFound = errors.New("quest not found")

	// ErrQuestNotCompleted is returned when claiming an incomplete quest
	ErrQuestNotCompleted = errors.New("quest not completed")

	// ErrQuestAlreadyClaimed is returned when claiming a quest twice in a day
	ErrQuestAlreadyClaimed = errors.New("quest already claimed")

	// ErrUnknownSpendAction is returned for an unknown spend catalog key
	ErrUnknownSpendAction = errors.New("unknown spend action")

	// ErrMintBurnDisabled is returned when manual balance edits are gated off
	ErrMintBurnDisabled = errors.New("admin mint/burn disabled")

	// ErrInvalidDelta is returned for an out-of-range admin adjustment
	ErrInvalidDelta = errors.New("invalid adjustment delta")

	// ErrNotAuthorized is returned when the caller's role lacks the
	// capability for the requested operation
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidSeasonKey is returned for a season key not shaped "YYYY-MM"
	ErrInvalidSeasonKey = errors.New("invalid season key")
)
