package dto

import (
	"net/http"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
)

// Error codes produced by the transport layer itself. Domain errors keep the
// code of their DomainError.
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeUnauthorized is used when authentication is required but missing or invalid
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeTokenExpired is used when the bearer token has expired
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeRouteNotFound is used for unknown routes
	ErrCodeRouteNotFound = "ROUTE_NOT_FOUND"
)

// Shared domain codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeCurrencyMismatch    = "CurrencyMismatch"
	ErrCodeInsufficientBalance = "InsufficientBalance"
	ErrCodeOutboxEntryNotDead  = "OUTBOX_ENTRY_NOT_DEAD"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Transport errors
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRouteNotFound:   http.StatusNotFound,

	// Not found family -> 404
	ErrCodeNotFound:                    http.StatusNotFound,
	commission.CodePartyNotFound:       http.StatusNotFound,
	commission.CodeMilestoneNotFound:   http.StatusNotFound,
	escrow.CodeTransactionNotFound:     http.StatusNotFound,
	ErrCodeForbidden:                   http.StatusForbidden,
	ErrCodeAlreadyExists:               http.StatusConflict,
	ErrCodeConcurrencyConflict:         http.StatusConflict,
	escrow.CodeDuplicateIdempotencyKey: http.StatusConflict,
	escrow.CodeIdempotencyKeyConflict:  http.StatusConflict,

	// Validation errors -> 400 Bad Request
	ErrCodeInvalidInput:                       http.StatusBadRequest,
	ErrCodeCurrencyMismatch:                   http.StatusBadRequest,
	valueobject.ErrInvalidAmount.Code:         http.StatusBadRequest,
	valueobject.ErrInvalidPercentage.Code:     http.StatusBadRequest,
	valueobject.ErrInvalidCurrency.Code:       http.StatusBadRequest,
	valueobject.ErrInvalidIdempotencyKey.Code: http.StatusBadRequest,
	commission.CodeInvalidSplit:               http.StatusBadRequest,
	commission.CodeInvalidAgreement:           http.StatusBadRequest,
	commission.CodeDuplicateParty:             http.StatusBadRequest,
	commission.CodeDuplicateMilestone:         http.StatusBadRequest,
	escrow.CodeInvalidEscrowAccount:           http.StatusBadRequest,
	escrow.CodeInvalidWebhookSignature:        http.StatusBadRequest,

	// State errors -> 422 Unprocessable Entity
	commission.CodeInvalidTransition:                 http.StatusUnprocessableEntity,
	commission.CodeAlreadyCompleted:                  http.StatusUnprocessableEntity,
	commission.CodeEscrowAlreadyAttached:             http.StatusUnprocessableEntity,
	commission.CodeSplitTotalMustBeOneHundredPercent: http.StatusUnprocessableEntity,
	commission.CodePartiesNotAccepted:                http.StatusUnprocessableEntity,
	commission.CodeMilestoneTotalExceedsAgreement:    http.StatusUnprocessableEntity,
	commission.CodeMilestonesIncomplete:              http.StatusUnprocessableEntity,
	commission.CodeMilestoneNotOverdue:               http.StatusUnprocessableEntity,
	escrow.CodeInvalidTransactionState:               http.StatusUnprocessableEntity,
	escrow.CodeMilestoneValueExceeded:                http.StatusUnprocessableEntity,
	escrow.CodePayoutAlreadyReleased:                 http.StatusUnprocessableEntity,
	escrow.CodeAccountNotActive:                      http.StatusUnprocessableEntity,
	escrow.CodeAccountHasOpenFunds:                   http.StatusUnprocessableEntity,
	escrow.CodePayoutDestinationMissing:              http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance:                       http.StatusUnprocessableEntity,
	ErrCodeOutboxEntryNotDead:                        http.StatusUnprocessableEntity,

	// Payment rail failures -> 502 Bad Gateway
	escrow.CodeGatewayFailure: http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[NormalizeErrorCode(code)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps the codes older clients were built against to
// the stable codes
var LegacyErrorCodeMapping = map[string]string{
	commission.LegacyCodeSplitTotal:         commission.CodeSplitTotalMustBeOneHundredPercent,
	escrow.LegacyCodeCurrencyMismatch:       ErrCodeCurrencyMismatch,
	escrow.LegacyCodeMilestoneValueExceeded: escrow.CodeMilestoneValueExceeded,
}

// legacyAliases is the reverse of LegacyErrorCodeMapping
var legacyAliases = func() map[string]string {
	out := make(map[string]string, len(LegacyErrorCodeMapping))
	for legacy, stable := range LegacyErrorCodeMapping {
		out[stable] = legacy
	}
	return out
}()

// NormalizeErrorCode converts a legacy error code to the stable code.
// Stable and unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// LegacyAlias returns the legacy code older clients expect for a stable code
func LegacyAlias(code string) (string, bool) {
	alias, ok := legacyAliases[code]
	return alias, ok
}
