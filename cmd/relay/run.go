package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/accounts/auth"
	"mercator-hq/relay/pkg/accounts/pool"
	"mercator-hq/relay/pkg/apikeys"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/ratelimit"
	"mercator-hq/relay/pkg/resolver"
	"mercator-hq/relay/pkg/secrets"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/truncation"
	"mercator-hq/relay/pkg/upstream"
	"mercator-hq/relay/pkg/usage"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay gateway",
	Long: `Start the relay gateway with the specified configuration.

Examples:
  # Start with default config
  relay run

  # Start with a custom config
  relay run --config /etc/relay/config.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8080

  # Validate config without starting the server
  relay run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}

	logger := newLogger(runFlags.logLevel)
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx := context.Background()

	cipher, err := loadCipher()
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	accountStore, err := pool.OpenStore(cfg.Server.AccountsDBPath)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open accounts store: %w", err))
	}
	defer accountStore.Close()

	accountPool := pool.New(accountStore, cipher, pool.Config{}, logger)
	if err := bootstrapDefaultAccount(ctx, accountPool, cfg.Upstream); err != nil {
		return cli.NewCommandError("run", err)
	}

	keyStore, err := apikeys.OpenStore(cfg.Server.APIKeysDBPath)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open api keys store: %w", err))
	}
	defer keyStore.Close()

	usageStore, err := usage.Open(cfg.Server.UsageDBPath, usage.Config{}, logger)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open usage store: %w", err))
	}
	defer usageStore.Close()

	apiKeyManager := apikeys.New(keyStore, usageStore, logger)
	apiKeyMiddleware := apikeys.NewMiddleware(apiKeyManager, logger)

	truncationStore, err := truncation.Open(cfg.Server.TruncationDBPath, cfg.Behavior.TruncationRecovery, logger)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open truncation store: %w", err))
	}
	defer truncationStore.Close()

	limiter := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.RateLimit.MaxConcurrent,
		MinInterval:   cfg.RateLimit.MinInterval,
		Backoff429:    cfg.RateLimit.Backoff429,
	})

	httpClient := upstream.NewClient(upstream.Config{
		MaxRetries:          cfg.Upstream.MaxRetries,
		BaseBackoff:         cfg.Upstream.BaseRetryDelay,
		MaxIdleConns:        cfg.HTTPClient.MaxConnections,
		MaxIdleConnsPerHost: cfg.HTTPClient.MaxKeepAliveConnections,
		IdleConnTimeout:     cfg.HTTPClient.KeepAliveExpiry,
	}, nil, limiter, logger)
	defer httpClient.Close()

	modelsCache := upstream.NewModelsCache(httpClient, accountPool, logger)
	modelsCtx, cancelModels := context.WithCancel(ctx)
	defer cancelModels()
	go modelsCache.Run(modelsCtx, 15*time.Minute)

	hiddenModels := make(map[string]string, len(cfg.Upstream.HiddenModels))
	for _, id := range cfg.Upstream.HiddenModels {
		hiddenModels[id] = id
	}
	modelResolver := resolver.New(modelsCache, resolver.Config{
		HiddenModels:   hiddenModels,
		Aliases:        cfg.Upstream.ModelAliases,
		HiddenFromList: cfg.Upstream.HiddenFromList,
	}, logger)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Metrics, nil)
	}

	deps := &handlers.Deps{
		Resolver:   modelResolver,
		Pool:       accountPool,
		Client:     httpClient,
		Models:     modelsCache,
		Limiter:    limiter,
		Truncation: truncationStore,
		Usage:      usageStore,
		Metrics:    collector,
		Behavior:   cfg.Behavior,
		Upstream:   cfg.Upstream,
		Log:        logger,
	}

	srv := server.NewServer(cfg.Server, deps, apiKeyMiddleware, collector, logger)

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(serverCtx); err != nil {
			errChan <- err
		}
	}()

	fmt.Printf("relay listening on %s\n", cfg.Server.ListenAddress)

	sigChan := cli.WaitForShutdown()
	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("received signal %s, shutting down\n", sig)
		cancelServer()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return cli.NewCommandError("run", err)
		}
		fmt.Println("relay stopped")
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// loadCipher builds the account store's credential cipher from the
// RELAY_ENCRYPTION_KEY environment variable, a 64-character hex string
// decoding to 32 bytes.
func loadCipher() (secrets.Cipher, error) {
	raw := os.Getenv("RELAY_ENCRYPTION_KEY")
	if raw == "" {
		return nil, fmt.Errorf("RELAY_ENCRYPTION_KEY must be set to a 64-character hex string")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("RELAY_ENCRYPTION_KEY: %w", err)
	}
	return secrets.NewAESGCMCipher(key)
}

// bootstrapDefaultAccount seeds the account pool from the static
// credential source in config on first run, so a single-account
// deployment never needs a separate `relay accounts add` step.
func bootstrapDefaultAccount(ctx context.Context, p *pool.Pool, cfg config.UpstreamConfig) error {
	existing, err := p.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	var creds auth.Credentials
	switch {
	case cfg.CLIDBFile != "":
		creds, err = auth.NewSQLiteOrigin(cfg.CLIDBFile).Load(ctx)
	case cfg.CredsFile != "":
		creds, err = auth.NewFileOrigin(cfg.CredsFile).Load(ctx)
	case cfg.RefreshToken != "":
		creds = auth.Credentials{Type: auth.TypeDesktop, RefreshToken: cfg.RefreshToken, Region: cfg.Region}
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bootstrap credentials: %w", err)
	}
	if creds.Region == "" {
		creds.Region = cfg.Region
	}

	_, err = p.AddAccount(ctx, "default", creds.Type, creds.Region, 0,
		creds.RefreshToken, creds.AccessToken, creds.ClientID, creds.ClientSecret)
	return err
}
