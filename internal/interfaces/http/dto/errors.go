package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Workflow, approval and numbering codes. These are the domain error codes
// and are returned to clients unchanged.
const (
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeGuardViolation        = "GUARD_VIOLATION"
	ErrCodeUnknownDomain         = "UNKNOWN_DOMAIN"
	ErrCodeDocumentBusy          = "DOCUMENT_BUSY"
	ErrCodeStateConflict         = "STATE_CONFLICT"
	ErrCodeAlreadyApproved       = "ALREADY_APPROVED"
	ErrCodeDuplicateVote         = "DUPLICATE_VOTE"
	ErrCodeNoActiveRequest       = "NO_ACTIVE_REQUEST"
	ErrCodeApproverNotAuthorized = "APPROVER_NOT_AUTHORIZED"
	ErrCodeInvalidVoteAction     = "INVALID_VOTE_ACTION"
	ErrCodeInvalidRule           = "INVALID_RULE"
	ErrCodeInvalidOperator       = "INVALID_OPERATOR"
	ErrCodeRuleNotFound          = "RULE_NOT_FOUND"
	ErrCodeApprovalNotRequired   = "APPROVAL_NOT_REQUIRED"
	ErrCodeCounterPersistence    = "COUNTER_PERSISTENCE_FAILURE"
	ErrCodeCounterRegression     = "COUNTER_REGRESSION"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Workflow
	ErrCodeInvalidTransition: http.StatusUnprocessableEntity,
	ErrCodeGuardViolation:    http.StatusUnprocessableEntity,
	ErrCodeUnknownDomain:     http.StatusNotFound,
	ErrCodeDocumentBusy:      http.StatusConflict,
	ErrCodeStateConflict:     http.StatusConflict,

	// Approval
	ErrCodeAlreadyApproved:       http.StatusConflict,
	ErrCodeDuplicateVote:         http.StatusConflict,
	ErrCodeNoActiveRequest:       http.StatusNotFound,
	ErrCodeApproverNotAuthorized: http.StatusForbidden,
	ErrCodeInvalidVoteAction:     http.StatusBadRequest,
	ErrCodeInvalidRule:           http.StatusBadRequest,
	ErrCodeInvalidOperator:       http.StatusBadRequest,
	ErrCodeRuleNotFound:          http.StatusNotFound,
	ErrCodeApprovalNotRequired:   http.StatusUnprocessableEntity,

	// Numbering
	ErrCodeCounterPersistence: http.StatusServiceUnavailable,
	ErrCodeCounterRegression:  http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// sharedErrorCodeMapping maps the generic shared.DomainError codes to the
// ERR_ family
var sharedErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"FORBIDDEN":            ErrCodeForbidden,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
}

// NormalizeErrorCode converts a generic domain code to the ERR_ format.
// Workflow and approval codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := sharedErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
