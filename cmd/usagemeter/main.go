package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"usagemeter/internal/api"
	"usagemeter/internal/carrier"
	"usagemeter/internal/config"
	"usagemeter/internal/ledger"
	"usagemeter/internal/logger"
	"usagemeter/internal/models"
	"usagemeter/internal/observability"
	"usagemeter/internal/payment"
	"usagemeter/internal/quota"
	"usagemeter/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	buildInfo := version.GetInfo()
	log, closer, err := logger.Setup(cfg.Logging, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, buildInfo)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the counter store
	backend, err := initializeBackend(cfg)
	if err != nil {
		slog.Error("Failed to initialize quota backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	counter, err := initializeCounter(cfg, backend)
	if err != nil {
		slog.Error("Failed to initialize quota counter", "error", err)
		os.Exit(1)
	}

	// Initialize the credit ledger and its cookie carrier
	verifier, err := initializeVerifier(cfg)
	if err != nil {
		slog.Error("Failed to initialize payment verifier", "error", err)
		os.Exit(1)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithVerifyTimeout(cfg.Payment.Timeout),
		ledger.WithDefaultCredits(cfg.Ledger.DefaultCredits),
	}
	if cfg.Metrics.Enabled {
		ledgerMetrics, err := observability.NewLedgerMetrics()
		if err != nil {
			slog.Error("Failed to create ledger metrics", "error", err)
			os.Exit(1)
		}
		ledgerOpts = append(ledgerOpts, ledger.WithObserver(ledgerMetrics))
	}
	creditLedger := ledger.New(verifier, ledgerOpts...)

	stateCarrier, err := initializeCarrier(cfg.Ledger)
	if err != nil {
		slog.Error("Failed to initialize ledger carrier", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP handlers with the backend for health checks
	handlers := api.NewHandlers(counter, creditLedger, stateCarrier,
		api.WithBackend(backend),
		api.WithVersion(buildInfo.Version),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"quota_backend", backend.Name(),
			"daily_limit", cfg.Quota.DailyLimit,
			"payment_provider", cfg.Payment.Provider,
		)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeBackend opens the configured counter store, removes rows left
// over from previous days, and wraps it with instrumentation when metrics are
// enabled.
func initializeBackend(cfg *models.Config) (quota.Backend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := quota.NewBackend(ctx, cfg.Quota, nil)
	if err != nil {
		return nil, err
	}

	if sweeper, ok := backend.(quota.Sweeper); ok {
		removed, err := sweeper.Sweep(ctx)
		if err != nil {
			slog.Warn("Failed to sweep expired quota counters", "backend", backend.Name(), "error", err)
		} else {
			slog.Info("Swept expired quota counters", "backend", backend.Name(), "removed", removed)
		}
	}

	if !cfg.Metrics.Enabled {
		return backend, nil
	}

	instrumented, err := observability.NewInstrumentedStore(backend)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to create instrumented store: %w", err)
	}
	return instrumented, nil
}

func initializeCounter(cfg *models.Config, backend quota.Backend) (*quota.Counter, error) {
	opts := []quota.Option{
		quota.WithTimeout(cfg.Quota.StoreTimeout),
		quota.WithKeyPrefix(cfg.Quota.KeyPrefix),
	}

	if cfg.Metrics.Enabled {
		quotaMetrics, err := observability.NewQuotaMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to create quota metrics: %w", err)
		}
		opts = append(opts, quota.WithObserver(quotaMetrics))
	}

	return quota.NewCounter(backend, cfg.Quota.DailyLimit, opts...), nil
}

// initializeVerifier returns the payment verifier for the configured provider
func initializeVerifier(cfg *models.Config) (payment.Verifier, error) {
	var verifier payment.Verifier

	switch cfg.Payment.Provider {
	case models.PaymentProviderStripe:
		stripeVerifier, err := payment.NewStripeVerifier(payment.StripeConfig{
			SecretKey:          cfg.Payment.SecretKey,
			APIURL:             cfg.Payment.APIURL,
			CreditsMetadataKey: cfg.Payment.CreditsMetadataKey,
		})
		if err != nil {
			return nil, err
		}
		verifier = stripeVerifier
	case models.PaymentProviderStatic:
		staticVerifier, err := payment.NewStaticVerifier(cfg.Payment.Static)
		if err != nil {
			return nil, err
		}
		slog.Warn("Using static payment provider; payments are not verified with a real provider",
			"confirmations", len(cfg.Payment.Static),
		)
		verifier = staticVerifier
	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", cfg.Payment.Provider)
	}

	if !cfg.Metrics.Enabled {
		return verifier, nil
	}
	return observability.NewInstrumentedVerifier(verifier)
}

// initializeCarrier builds the ledger cookie carrier. In dev mode without a
// configured secret a random one is generated, so cookies do not survive a
// restart.
func initializeCarrier(cfg models.LedgerConfig) (*carrier.Carrier, error) {
	secret := []byte(cfg.CookieSecret)
	if len(secret) == 0 {
		if !cfg.DevMode {
			return nil, fmt.Errorf("ledger cookie secret is required")
		}
		secret = make([]byte, models.MinCookieSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate ledger secret: %w", err)
		}
		slog.Warn("No ledger secret configured; using a random secret for this process",
			"env", "USAGEMETER_LEDGER_SECRET",
		)
	}

	return carrier.New(carrier.Config{
		Secret:     secret,
		CookieName: cfg.CookieName,
		MaxAge:     cfg.CookieMaxAge,
		Secure:     cfg.CookieSecure,
	})
}
