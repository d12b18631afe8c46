package quota

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"usagemeter/internal/models"
)

// AnonymousClient is the client key used when a request carries no origin
// headers. Every such request shares one quota.
const AnonymousClient = "anonymous"

type resultContextKey struct{}

// ResultFromContext returns the verdict stored by Middleware.
func ResultFromContext(ctx context.Context) (Result, bool) {
	res, ok := ctx.Value(resultContextKey{}).(Result)
	return res, ok
}

// Middleware returns HTTP middleware that counts every request against the
// daily quota of its client. Rate limit headers are always set; requests over
// the limit get 429 with the reset time. The verdict is available to the
// next handler through ResultFromContext.
func Middleware(counter *Counter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			res := counter.CheckAndIncrement(r.Context(), key)

			WriteHeaders(w, res)

			if !res.Allowed {
				retryAfter := counter.RetryAfter(res)
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				resetAt := res.ResetAt
				errorResp := models.NewErrorResponse(
					"Daily quota exceeded, resets at "+resetAt.Format(time.RFC3339),
					models.ErrorCodeRateLimitExceeded,
				)
				errorResp.ResetAt = &resetAt
				errorResp.RequestID = w.Header().Get("X-Request-ID")
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Daily quota exceeded",
					"client", key,
					"limit", res.Limit,
					"reset_at", resetAt,
				)
				return
			}

			ctx := context.WithValue(r.Context(), resultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteHeaders sets the X-RateLimit-* headers for res.
func WriteHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// ClientKey derives the best-effort client identifier for r: the first
// X-Forwarded-For address, else X-Real-IP, else AnonymousClient. Clients
// behind one address share a quota.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return AnonymousClient
}
