// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Machine-readable error codes next to human-readable messages
// - RFC3339 timestamps for reset times
package models

import (
	"time"
)

// QuotaResponse reports a quota verdict to the caller.
//
// Client Usage:
// - Check Allowed first; a denied request is also signalled with HTTP 429
// - ResetAt is always the next UTC midnight
// - Degraded is set when the counter store was unreachable and the verdict
//   was granted without counting
type QuotaResponse struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// CreditsResponse describes the ledger state carried by the client.
type CreditsResponse struct {
	Total          int64 `json:"total"`
	RecentPayments int   `json:"recent_payments"`
}

// GrantResponse reports the outcome of a payment confirmation.
// Applied is false for a reference that was already credited.
type GrantResponse struct {
	Applied     bool  `json:"applied"`
	AddedAmount int64 `json:"added_amount"`
	Total       int64 `json:"total"`
}

// ErrorResponse provides structured error information.
//
// Error Handling Design:
// - Consistent error structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Human-readable messages for user interfaces
// - ResetAt is populated for quota rejections
// - Request ID for support and log correlation
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Extra context
	ResetAt   *time.Time        `json:"reset_at,omitempty"`   // Quota reset instant
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
const (
	ErrorCodeNotFound                  = "NOT_FOUND"                   // 404: Resource doesn't exist
	ErrorCodeBadRequest                = "BAD_REQUEST"                 // 400: Invalid request format
	ErrorCodeInvalidRequest            = "INVALID_REQUEST"             // 400: Invalid request data
	ErrorCodeInternalError             = "INTERNAL_ERROR"              // 500: Server-side error
	ErrorCodeNotImplemented            = "NOT_IMPLEMENTED"             // 501: Backend lacks the capability
	ErrorCodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"         // 429: Daily quota used up
	ErrorCodePaymentUnconfirmed        = "PAYMENT_UNCONFIRMED"         // 402: Payment not (yet) paid
	ErrorCodePaymentVerificationFailed = "PAYMENT_VERIFICATION_FAILED" // 502: Verifier unreachable or failed
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
