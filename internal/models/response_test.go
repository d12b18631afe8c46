package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	message := "Test error message"
	code := "TEST_ERROR"

	response := NewErrorResponse(message, code)

	assert.Equal(t, "error", response.Error)
	assert.Equal(t, message, response.Message)
	assert.Equal(t, code, response.Code)
	assert.WithinDuration(t, time.Now(), response.Timestamp, time.Second)
	assert.Empty(t, response.Details)
	assert.Empty(t, response.RequestID)
	assert.Nil(t, response.ResetAt)
}

func TestErrorResponse_ResetAtOmittedWhenNil(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse("boom", ErrorCodeInternalError))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "reset_at")

	resetAt := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	withReset := NewErrorResponse("Daily quota exceeded", ErrorCodeRateLimitExceeded)
	withReset.ResetAt = &resetAt
	data, err = json.Marshal(withReset)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reset_at":"2026-01-02T00:00:00Z"`)
}

func TestNewHealthCheckResponse(t *testing.T) {
	response := NewHealthCheckResponse(StatusHealthy)

	assert.Equal(t, StatusHealthy, response.Status)
	assert.WithinDuration(t, time.Now(), response.Timestamp, time.Second)
	assert.NotNil(t, response.Components)
	assert.Empty(t, response.Components)
}

func TestHealthCheckResponse_AddComponent(t *testing.T) {
	response := NewHealthCheckResponse(StatusHealthy)

	response.AddComponent("quota_store", StatusDegraded, "redis unreachable")

	require.Contains(t, response.Components, "quota_store")
	component := response.Components["quota_store"]
	assert.Equal(t, StatusDegraded, component.Status)
	assert.Equal(t, "redis unreachable", component.Message)
	assert.WithinDuration(t, time.Now(), component.Timestamp, time.Second)
}

func TestErrorCodeConstants(t *testing.T) {
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", ErrorCodeRateLimitExceeded)
	assert.Equal(t, "PAYMENT_UNCONFIRMED", ErrorCodePaymentUnconfirmed)
	assert.Equal(t, "PAYMENT_VERIFICATION_FAILED", ErrorCodePaymentVerificationFailed)

	errorCodes := []string{
		ErrorCodeNotFound,
		ErrorCodeBadRequest,
		ErrorCodeInvalidRequest,
		ErrorCodeInternalError,
		ErrorCodeNotImplemented,
		ErrorCodeRateLimitExceeded,
		ErrorCodePaymentUnconfirmed,
		ErrorCodePaymentVerificationFailed,
	}

	for _, code := range errorCodes {
		assert.Equal(t, code, strings.ToUpper(code))
	}
}

func TestQuotaResponse_JSON(t *testing.T) {
	resp := QuotaResponse{
		Allowed:   true,
		Remaining: 2,
		Limit:     3,
		ResetAt:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowed":true,"remaining":2,"limit":3,"reset_at":"2026-01-02T00:00:00Z"}`, string(data))
}
