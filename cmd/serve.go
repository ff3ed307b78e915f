package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailfold/mailfold/internal/gmail"
	"github.com/mailfold/mailfold/internal/google"
	"github.com/mailfold/mailfold/internal/instrumentation"
	"github.com/mailfold/mailfold/internal/mail"
	"github.com/mailfold/mailfold/internal/server"
	"github.com/mailfold/mailfold/internal/store"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode          bool
		httpAddr           string
		baseURL            string
		googleClientID     string
		googleClientSecret string
		redirectURL        string
		fetchConcurrency   int
		metricsEnabled     bool
		metricsAddr        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mailfold HTTP server",
		Long: `Start the HTTP server exposing per-user Gmail mailboxes.

OAuth Configuration:
  Google OAuth client credentials are required for the /auth/google flow:
    --google-client-id and --google-client-secret flags
    OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars

  Base URL (required for deployed instances):
    --base-url https://your-domain.com OR MAILFOLD_BASE_URL env var
    Auto-detected for localhost (development only)

The base URL is also used to synthesize attachment and message URLs in
API responses, so it must match the address clients use to reach the
server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}
			return runServe(debugMode, httpAddr, baseURL, googleClientID, googleClientSecret, redirectURL, fetchConcurrency, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL used in synthesized attachment/message URLs and OAuth redirects. Can also use MAILFOLD_BASE_URL env var. Example: https://mail.example.com")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "OAuth redirect URL. Defaults to {base-url}/auth/google/callback.")
	cmd.Flags().IntVar(&fetchConcurrency, "fetch-concurrency", mail.DefaultFetchConcurrency, "Maximum concurrent message-detail fetches per request (0 = unbounded). Can also use MAILFOLD_FETCH_CONCURRENCY env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(debugMode bool, httpAddr, baseURL, googleClientID, googleClientSecret, redirectURL string, fetchConcurrency int, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	setupLogging(debugMode)

	// Load settings from environment if not set via flags
	if baseURL == "" {
		baseURL = os.Getenv("MAILFOLD_BASE_URL")
	}
	if baseURL == "" {
		// Fall back to auto-detection for local development
		baseURL = detectBaseURL(httpAddr)
		log.Printf("No base URL configured, using auto-detected: %s", baseURL)
		log.Printf("For deployed instances, set --base-url flag or MAILFOLD_BASE_URL env var")
	}
	if googleClientID == "" {
		googleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if googleClientSecret == "" {
		googleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if redirectURL == "" {
		redirectURL = baseURL + "/auth/google/callback"
	}
	if env := os.Getenv("MAILFOLD_FETCH_CONCURRENCY"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n >= 0 {
			fetchConcurrency = n
		}
	}
	if !metricsConfig.Enabled && os.Getenv("METRICS_ENABLED") == "true" {
		metricsConfig.Enabled = true
	}
	if addr := os.Getenv("METRICS_ADDR"); addr != "" && metricsConfig.Addr == ":9090" {
		metricsConfig.Addr = addr
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during instrumentation shutdown: %v", err)
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Credential store: single shared instance for the process lifetime
	credStore := store.New()

	// Feed the active-session gauge from store mutations
	if provider.Enabled() {
		watch := credStore.Watch()
		go func() {
			for ev := range watch {
				switch ev.Op {
				case store.OpSet:
					provider.Metrics().IncrementActiveSessions(shutdownCtx)
				case store.OpDelete:
					provider.Metrics().DecrementActiveSessions(shutdownCtx)
				}
			}
		}()
	}

	oauthCfg := google.NewConfig(googleClientID, googleClientSecret, redirectURL)
	authorizer := google.NewAuthorizer(oauthCfg, credStore)

	gmailClient := gmail.NewClient(authorizer.Service, slog.Default(), provider.Metrics())
	resolver := gmail.NewResolver(baseURL, slog.Default())
	mailService := mail.NewService(gmailClient, resolver, baseURL, fetchConcurrency, slog.Default(), provider.Metrics())

	srv := server.New(server.Config{
		Store:   credStore,
		OAuth:   oauthCfg,
		Mail:    mailService,
		Logger:  slog.Default(),
		Metrics: provider.Metrics(),
	})

	healthChecker := server.NewHealthChecker()
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           srv.Handler(healthChecker),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fmt.Printf("mailfold server starting on %s\n", httpAddr)
	fmt.Printf("  Mail endpoints: /mail/{userId}/...\n")
	fmt.Printf("  OAuth endpoints: /auth/google, /auth/google/callback\n")
	fmt.Printf("  Health endpoints: /healthz, /readyz\n")
	if metricsConfig.Enabled {
		fmt.Printf("  Metrics endpoint: %s/metrics\n", metricsConfig.Addr)
	}
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("\nWARNING: Google OAuth client credentials are not configured.")
		fmt.Println("The /auth/google flow will fail until GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are set.")
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		fmt.Println("Shutdown signal received, stopping HTTP server...")
		healthChecker.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	fmt.Println("HTTP server gracefully stopped")
	return nil
}

// detectBaseURL derives a base URL from the HTTP listen address. Addresses
// without a host part resolve to localhost.
func detectBaseURL(httpAddr string) string {
	if httpAddr != "" && httpAddr[0] == ':' {
		return fmt.Sprintf("http://localhost%s", httpAddr)
	}
	return fmt.Sprintf("http://%s", httpAddr)
}

// setupLogging installs the default slog logger for the process.
func setupLogging(debugMode bool) {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
