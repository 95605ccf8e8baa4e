package apperr

import (
	"errors"
	"net/http"
)

// Domain error codes. Every code maps to exactly one HTTP status via
// statusByCode, so handlers never decide statuses ad hoc.
const (
	CodeProjectNotFound          = "PROJECT_NOT_FOUND"
	CodeProjectNotOpen           = "PROJECT_NOT_OPEN"
	CodeProjectNotOwner          = "PROJECT_NOT_OWNER"
	CodeProjectInvalidStatus     = "PROJECT_INVALID_STATUS"
	CodeProjectInvalidTransition = "PROJECT_INVALID_TRANSITION"

	CodeBidNotFound       = "BID_NOT_FOUND"
	CodeBidDeadlinePassed = "BID_DEADLINE_PASSED"
	CodeBidMaxReached     = "BID_MAX_REACHED"
	CodeBidInvalidStatus  = "BID_INVALID_STATUS"
	CodeBidAlreadyActive  = "BID_ALREADY_ACTIVE"

	CodeEscrowNotFound          = "ESCROW_NOT_FOUND"
	CodeEscrowExists            = "ESCROW_EXISTS"
	CodeEscrowInvalidTransition = "ESCROW_INVALID_TRANSITION"
	CodeEscrowInvalidAmount     = "ESCROW_INVALID_AMOUNT"
	CodeEscrowNotHeld           = "ESCROW_NOT_HELD"

	CodeMilestoneNotFound       = "MILESTONE_NOT_FOUND"
	CodeMilestoneDuplicate      = "MILESTONE_DUPLICATE"
	CodeMilestoneInvalidStatus  = "MILESTONE_INVALID_STATUS"
	CodeMilestoneOrderViolation = "MILESTONE_ORDER_VIOLATION"
	CodeMilestoneInvalidShares  = "MILESTONE_INVALID_SHARES"

	CodeFeeNotFound          = "FEE_NOT_FOUND"
	CodeFeeExists            = "FEE_EXISTS"
	CodeFeeInvalidTransition = "FEE_INVALID_TRANSITION"

	CodeMatchNotFound = "MATCH_NOT_FOUND"

	CodeUserNotFound = "USER_NOT_FOUND"
	CodeUserExists   = "USER_EXISTS"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	CodeInvalidInput = "INVALID_INPUT"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL"
)

var statusByCode = map[string]int{
	CodeProjectNotFound:          http.StatusNotFound,
	CodeProjectNotOpen:           http.StatusBadRequest,
	CodeProjectNotOwner:          http.StatusForbidden,
	CodeProjectInvalidStatus:     http.StatusBadRequest,
	CodeProjectInvalidTransition: http.StatusBadRequest,

	CodeBidNotFound:       http.StatusNotFound,
	CodeBidDeadlinePassed: http.StatusBadRequest,
	CodeBidMaxReached:     http.StatusBadRequest,
	CodeBidInvalidStatus:  http.StatusBadRequest,
	CodeBidAlreadyActive:  http.StatusConflict,

	CodeEscrowNotFound:          http.StatusNotFound,
	CodeEscrowExists:            http.StatusConflict,
	CodeEscrowInvalidTransition: http.StatusBadRequest,
	CodeEscrowInvalidAmount:     http.StatusBadRequest,
	CodeEscrowNotHeld:           http.StatusBadRequest,

	CodeMilestoneNotFound:       http.StatusNotFound,
	CodeMilestoneDuplicate:      http.StatusConflict,
	CodeMilestoneInvalidStatus:  http.StatusBadRequest,
	CodeMilestoneOrderViolation: http.StatusBadRequest,
	CodeMilestoneInvalidShares:  http.StatusBadRequest,

	CodeFeeNotFound:          http.StatusNotFound,
	CodeFeeExists:            http.StatusConflict,
	CodeFeeInvalidTransition: http.StatusBadRequest,

	CodeMatchNotFound: http.StatusNotFound,

	CodeUserNotFound: http.StatusNotFound,
	CodeUserExists:   http.StatusConflict,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,

	CodeInvalidInput: http.StatusBadRequest,
	CodeConflict:     http.StatusConflict,
	CodeInternal:     http.StatusInternalServerError,
}

// Error is a typed domain error carrying a stable code and the HTTP status
// derived from it.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New builds an Error for a known code. Unknown codes map to 500.
func New(code, message string) *Error {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Internal wraps an unexpected error as a generic internal error. The cause
// is logged at the call site, not leaked to the client.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// From extracts an *Error from err, or nil.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsCode reports whether err is a domain error with the given code.
func IsCode(err error, code string) bool {
	if appErr := From(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}
