package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"usagemeter/internal/carrier"
	"usagemeter/internal/ledger"
	"usagemeter/internal/models"
	"usagemeter/internal/quota"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports the reachability of a dependency for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// Handlers contains HTTP handlers for the usagemeter API
type Handlers struct {
	counter *quota.Counter
	ledger  *ledger.Ledger
	carrier *carrier.Carrier
	backend Pinger
	version string
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithBackend sets the counter backend reported by the health check.
func WithBackend(p Pinger) HandlerOption {
	return func(h *Handlers) {
		h.backend = p
	}
}

// WithVersion sets the version reported by the health check.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(counter *quota.Counter, l *ledger.Ledger, c *carrier.Carrier, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		counter: counter,
		ledger:  l,
		carrier: c,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ConsumeQuota reports the verdict of the quota middleware in front of it.
// POST /api/v1/quota/consume
func (h *Handlers) ConsumeQuota(w http.ResponseWriter, r *http.Request) {
	res, ok := quota.ResultFromContext(r.Context())
	if !ok {
		h.writeAPIError(w, r, NewInternalError("Quota check did not run", nil))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, quotaResponse(res))
}

// PeekQuota reports the caller's quota without consuming any of it.
// GET /api/v1/quota
func (h *Handlers) PeekQuota(w http.ResponseWriter, r *http.Request) {
	res, err := h.counter.Peek(r.Context(), quota.ClientKey(r))
	if err != nil {
		if errors.Is(err, quota.ErrPeekUnsupported) {
			h.writeAPIError(w, r, NewNotImplementedError("Quota peek is not supported by the counter backend", err))
			return
		}
		h.writeAPIError(w, r, NewInternalError("Failed to read quota", err))
		return
	}

	quota.WriteHeaders(w, res)
	h.writeJSONResponse(w, http.StatusOK, quotaResponse(res))
}

// GetCredits reports the ledger state carried by the caller's cookie.
// GET /api/v1/credits
func (h *Handlers) GetCredits(w http.ResponseWriter, r *http.Request) {
	state := h.carrier.Read(r)

	h.writeJSONResponse(w, http.StatusOK, &models.CreditsResponse{
		Total:          state.TotalCredits,
		RecentPayments: len(state.RecentPaymentRefs),
	})
}

// ConfirmPayment credits a completed payment once and rewrites the ledger
// cookie. It is the redirect target after checkout.
// GET /api/v1/credits/confirm?session_id={ref}
func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("session_id")
	if ref == "" {
		ref = r.URL.Query().Get("ref")
	}

	state := h.carrier.Read(r)

	grant, err := h.ledger.GrantIfUnseen(r.Context(), ref, state)
	if err != nil {
		h.writeAPIError(w, r, grantError(err))
		return
	}

	if err := h.carrier.Write(w, grant.State); err != nil {
		h.writeAPIError(w, r, NewInternalError("Failed to store ledger state", err))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.GrantResponse{
		Applied:     grant.Applied,
		AddedAmount: grant.AddedAmount,
		Total:       grant.State.TotalCredits,
	})
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version

	if h.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.backend.Ping(ctx); err != nil {
			response.Status = models.StatusDegraded
			response.AddComponent("counter_store", models.StatusUnhealthy, h.backend.Name()+": "+err.Error())
		} else {
			response.AddComponent("counter_store", models.StatusHealthy, h.backend.Name()+" is reachable")
		}
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, http.StatusOK, response)
}

func quotaResponse(res quota.Result) *models.QuotaResponse {
	return &models.QuotaResponse{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		Limit:     res.Limit,
		ResetAt:   res.ResetAt,
		Degraded:  res.Degraded,
	}
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// writeAPIError logs err and writes its error response
func (h *Handlers) writeAPIError(w http.ResponseWriter, r *http.Request, err *APIError) {
	if err.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"path", r.URL.Path,
			"code", err.Code,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}
	writeError(w, err.StatusCode, err.Code, err.Message)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeError writes an error response carrying the request ID set by
// requestIDMiddleware.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = w.Header().Get(RequestIDHeader)
	writeJSON(w, statusCode, errorResp)
}
