package api

import (
	"net/http"
	"usagemeter/internal/models"
	"usagemeter/internal/quota"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	// Request IDs are assigned before anything can write an error body.
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	// API routes sit on the root router: a subrouter answers a method
	// mismatch with 404 instead of 405.
	router.Handle("/api/v1/quota/consume", quota.Middleware(handlers.counter)(http.HandlerFunc(handlers.ConsumeQuota))).Methods("POST")
	router.HandleFunc("/api/v1/quota", handlers.PeekQuota).Methods("GET")
	router.HandleFunc("/api/v1/credits", handlers.GetCredits).Methods("GET")
	router.HandleFunc("/api/v1/credits/confirm", handlers.ConfirmPayment).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	// mux skips middleware for unmatched requests, so these carry their own
	// request ID.
	router.NotFoundHandler = requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, models.ErrorCodeNotFound, "Resource not found")
	}))

	router.MethodNotAllowedHandler = requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, models.ErrorCodeInvalidRequest, "Method not allowed")
	}))

	return router
}
