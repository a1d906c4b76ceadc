package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/alerting"
	"github.com/good-yellow-bee/flare/internal/api"
	"github.com/good-yellow-bee/flare/internal/notifier"
	"github.com/good-yellow-bee/flare/internal/oncall"
	"github.com/good-yellow-bee/flare/internal/plugin"
	"github.com/good-yellow-bee/flare/internal/storage"
	"github.com/good-yellow-bee/flare/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "flare-server",
	Short: "Flare Server - Alert lifecycle engine",
	Long: `Flare Server receives alerts, deduplicates and correlates them,
drives their status through the alarm state machine, and routes
notifications to on-call users.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flare-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	model, err := loadAlarmModel(cfg.Alarm.ModelFile)
	if err != nil {
		return fmt.Errorf("load alarm model: %w", err)
	}

	classifier := alerting.NewClassifier(store.Alerts(), model, logger)
	classifier.HistoryOnValueChange = cfg.Processing.HistoryOnValueChange

	registry, heartbeats, err := buildRegistry(cfg, store)
	if err != nil {
		return fmt.Errorf("build plugin registry: %w", err)
	}

	pipeline := plugin.NewPipeline(registry, classifier, store.Alerts(), model, logger)
	pipeline.RaiseOnPluginError = cfg.Processing.RaiseOnPluginError
	pipeline.SkipPostReceive = cfg.Processing.SkipPostReceive

	matcher := alerting.NewMatcher(store.Rules())
	resolver := oncall.NewResolver(store.OnCalls(), store.Groups(), logger)

	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notifications.RateLimit.MaxPerWindow,
		Window:       cfg.Notifications.RateLimit.Window,
		Enabled:      !cfg.Notifications.RateLimit.Disabled,
	}, logger)
	defer dispatcher.Close()

	for _, wh := range cfg.Notifications.Webhooks {
		sender, err := notifier.NewWebhookSender(notifier.WebhookConfig{
			ChannelID: wh.ChannelID,
			URL:       wh.URL,
			Headers:   wh.Headers,
		})
		if err != nil {
			return fmt.Errorf("webhook channel %s: %w", wh.ChannelID, err)
		}
		dispatcher.Register(sender)
	}

	srv, err := api.New(&api.Config{
		Address:      cfg.Server.HTTPAddress,
		AlertTimeout: cfg.Processing.AlertTimeout,
	}, api.Deps{
		Storage:    store,
		Pipeline:   pipeline,
		Matcher:    matcher,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Model:      model,
		Heartbeats: heartbeats,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	housekeeper := alerting.NewHousekeeper(
		store.Alerts(), cfg.Processing.AlertTimeout, cfg.Processing.ShelveTimeout, logger)
	escalator := alerting.NewEscalator(store.Alerts(), matcher, pipeline, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting flare-server",
		zap.String("version", config.Version),
		zap.String("address", cfg.Server.HTTPAddress))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		runHousekeeping(ctx, housekeeper, cfg.Processing.HousekeepingInterval, logger)
		return nil
	})
	g.Go(func() error {
		runEscalation(ctx, escalator, cfg.Processing.EscalationInterval, logger)
		return nil
	})
	if configFile != "" {
		g.Go(func() error {
			return watchConfig(ctx, configFile, registry, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadAlarmModel loads the severity model override, or the builtin model when
// no file is configured.
func loadAlarmModel(path string) (*alarm.Model, error) {
	if path == "" {
		return alarm.NewModel(), nil
	}
	return alarm.LoadModelFromFile(path)
}

// buildRegistry constructs the builtin plugins named by the configured order
// and applies scope restrictions. The heartbeat handler is returned separately
// so the API can list heartbeats; it is nil when the plugin is not enabled.
func buildRegistry(cfg *Config, store *storage.SQLiteStorage) (*plugin.Registry, *plugin.HeartbeatHandler, error) {
	registry := plugin.NewRegistry()

	var heartbeats *plugin.HeartbeatHandler
	for _, name := range cfg.Plugins.Order {
		switch name {
		case "reject":
			reject, err := plugin.NewRejectPolicy(
				cfg.Plugins.Reject.OriginBlacklist, cfg.Plugins.Reject.AllowedEnvironments)
			if err != nil {
				return nil, nil, fmt.Errorf("reject plugin: %w", err)
			}
			registry.Register(reject)
		case "blackout":
			blackout := plugin.NewBlackoutHandler(store.Blackouts())
			if cfg.Plugins.Blackout.NotificationBlackout != nil {
				blackout.NotificationBlackout = *cfg.Plugins.Blackout.NotificationBlackout
			}
			blackout.AcceptSeverities = cfg.Plugins.Blackout.AcceptSeverities
			registry.Register(blackout)
		case "ratelimit":
			registry.Register(plugin.NewRateLimiter(
				rate.Limit(cfg.Plugins.RateLimit.PerSecond), cfg.Plugins.RateLimit.Burst))
		case "heartbeat":
			heartbeats = plugin.NewHeartbeatHandler()
			registry.Register(heartbeats)
		case "enhance":
			enhancer, err := plugin.NewEnhancer(cfg.Plugins.Enhance.Rules)
			if err != nil {
				return nil, nil, fmt.Errorf("enhance plugin: %w", err)
			}
			registry.Register(enhancer)
		}
	}

	if err := registry.SetOrder(cfg.Plugins.Order); err != nil {
		return nil, nil, err
	}
	for name, scope := range cfg.Plugins.Scopes {
		registry.SetScope(name, scope)
	}
	return registry, heartbeats, nil
}

func runHousekeeping(ctx context.Context, h *alerting.Housekeeper, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, unshelved, err := h.Sweep(ctx, now.UTC())
			if err != nil {
				logger.Error("housekeeping sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 || unshelved > 0 {
				logger.Info("housekeeping sweep",
					zap.Int("expired", expired), zap.Int("unshelved", unshelved))
			}
		}
	}
}

func runEscalation(ctx context.Context, e *alerting.Escalator, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			escalated, err := e.Sweep(ctx, now.UTC())
			if err != nil {
				logger.Error("escalation sweep failed", zap.Error(err))
				continue
			}
			if len(escalated) > 0 {
				logger.Info("escalation sweep", zap.Strings("alerts", escalated))
			}
		}
	}
}
