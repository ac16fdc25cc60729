package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{"INVALID_TRANSITION", http.StatusUnprocessableEntity},
		{"GUARD_VIOLATION", http.StatusUnprocessableEntity},
		{"UNKNOWN_DOMAIN", http.StatusNotFound},
		{"DOCUMENT_BUSY", http.StatusConflict},
		{"STATE_CONFLICT", http.StatusConflict},
		{"ALREADY_APPROVED", http.StatusConflict},
		{"DUPLICATE_VOTE", http.StatusConflict},
		{"NO_ACTIVE_REQUEST", http.StatusNotFound},
		{"APPROVER_NOT_AUTHORIZED", http.StatusForbidden},
		{"INVALID_RULE", http.StatusBadRequest},
		{"INVALID_OPERATOR", http.StatusBadRequest},
		{"APPROVAL_NOT_REQUIRED", http.StatusUnprocessableEntity},
		{"COUNTER_PERSISTENCE_FAILURE", http.StatusServiceUnavailable},
		{"COUNTER_REGRESSION", http.StatusConflict},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NOT_FOUND", ErrCodeNotFound},
		{"INVALID_INPUT", ErrCodeInvalidInput},
		{"CONCURRENCY_CONFLICT", ErrCodeConcurrencyConflict},
		{ErrCodeNotFound, ErrCodeNotFound},
		{"GUARD_VIOLATION", "GUARD_VIOLATION"},
		{"DUPLICATE_VOTE", "DUPLICATE_VOTE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "action", Message: "action is required"},
		{Field: "requiredApprovals", Message: "requiredApprovals must be at least 1"},
	}

	resp := NewValidationErrorResponse("Validation failed", "req-789", details)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-789", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
	assert.Equal(t, "action", resp.Error.Details[0].Field)
}

func TestErrorResponseJSON(t *testing.T) {
	resp := NewErrorResponseWithRequestID("GUARD_VIOLATION", "guard TotalPositive failed", "req-1").
		WithReason("TotalPositive")

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "data")
	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, "GUARD_VIOLATION", errInfo["code"])
	assert.Equal(t, "TotalPositive", errInfo["reason"])
	assert.Equal(t, "req-1", errInfo["request_id"])
}

func TestSuccessResponseJSON(t *testing.T) {
	data, err := json.Marshal(NewSuccessResponse(map[string]string{"state": "pending"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"state":"pending"}}`, string(data))
}
