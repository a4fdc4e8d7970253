package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/muzeer/rewards/internal/domain"
	"github.com/muzeer/rewards/internal/logger"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	errCodeBadRequest       ErrorCode = "bad_request"
	errCodeNotFound         ErrorCode = "not_found"
	errCodeValidationFailed ErrorCode = "validation_failed"
	errCodeForbidden        ErrorCode = "forbidden"
	errCodeConflict         ErrorCode = "conflict"

	// Server errors (5xx)
	errCodeInternalError ErrorCode = "internal_error"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...string) {
	response := errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	}

	if len(details) > 0 {
		response.Error.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message, details...)
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message, details...)
}

// respondValidationError sends a 400 Bad Request with validation error
func respondValidationError(c *gin.Context, details string) {
	respondWithError(c, http.StatusBadRequest, errCodeValidationFailed, "Validation failed", details)
}

// respondInternalError sends a 500 Internal Server Error response and logs the error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.Error(err, fields...)
	respondWithError(c, http.StatusInternalServerError, errCodeInternalError, message)
}

// respondDomainError maps known domain errors to client responses; anything
// unrecognized is a server error.
func respondDomainError(c *gin.Context, err error, fallbackMessage string) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		respondNotFound(c, "Reward account not found")
	case errors.Is(err, domain.ErrQuestNotFound):
		respondNotFound(c, "Quest not found")
	case errors.Is(err, domain.ErrQuestNotCompleted):
		respondWithError(c, http.StatusConflict, errCodeConflict, "Quest not completed")
	case errors.Is(err, domain.ErrQuestAlreadyClaimed):
		respondWithError(c, http.StatusConflict, errCodeConflict, "Quest already claimed today")
	case errors.Is(err, domain.ErrUnknownSpendAction):
		respondNotFound(c, "Unknown spend action")
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondWithError(c, http.StatusConflict, errCodeConflict, "Insufficient balance")
	case errors.Is(err, domain.ErrMintBurnDisabled):
		respondWithError(c, http.StatusConflict, errCodeConflict, "Admin mint/burn is disabled")
	case errors.Is(err, domain.ErrInvalidDelta):
		respondBadRequest(c, "Adjustment delta out of range")
	case errors.Is(err, domain.ErrInvalidSeasonKey):
		respondBadRequest(c, "Season must look like YYYY-MM")
	case errors.Is(err, domain.ErrNotAuthorized):
		respondWithError(c, http.StatusForbidden, errCodeForbidden, "Not authorized")
	default:
		respondInternalError(c, err, fallbackMessage)
	}
}
