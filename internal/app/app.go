// Package app wires configuration, storage, provider clients and services
// into the single object shared by the server and its background jobs.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/tickermetrics/internal/clients/alphavantage"
	"github.com/bobmcallan/tickermetrics/internal/clients/fmp"
	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/services/aggregator"
	"github.com/bobmcallan/tickermetrics/internal/services/events"
	"github.com/bobmcallan/tickermetrics/internal/services/resolver"
	"github.com/bobmcallan/tickermetrics/internal/storage"
)

// App holds all initialized services, clients and storage.
type App struct {
	Config             *common.Config
	Logger             *common.Logger
	Cache              interfaces.ArtifactCache
	FMPClient          *fmp.Client
	AlphaVantageClient *alphavantage.Client
	Aggregator         interfaces.Aggregator
	Resolver           *resolver.Service
	Events             *events.Hub
	StartupTime        time.Time

	warmCron        *cron.Cron
	warmCacheCancel context.CancelFunc
	warmWG          sync.WaitGroup
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration and initializes everything.
// configPath may be empty, in which case TICKERMETRICS_CONFIG, the binary
// directory and then config/tickermetrics.toml are tried in turn.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("TICKERMETRICS_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "tickermetrics.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tickermetrics.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative paths to the binary directory
	if config.Storage.Badger.Path != "" && !filepath.IsAbs(config.Storage.Badger.Path) {
		config.Storage.Badger.Path = filepath.Join(binDir, config.Storage.Badger.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	return NewAppWithConfig(context.Background(), config, logger)
}

// NewAppWithConfig initializes the app from an already loaded configuration.
func NewAppWithConfig(ctx context.Context, config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	cache, err := storage.NewArtifactCache(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	for _, key := range config.MissingAPIKeys() {
		logger.Warn().Str("setting", key).Msg("Provider API key not configured - its fields will be null")
	}

	fmpClient := fmp.NewClient(config.Clients.FMP.APIKey,
		fmp.WithLogger(logger),
		fmp.WithBaseURL(config.Clients.FMP.BaseURL),
		fmp.WithRateLimit(config.Clients.FMP.RateLimit),
		fmp.WithTimeout(config.Clients.FMP.GetTimeout()),
		fmp.WithPeriod(config.Clients.FMP.Period),
		fmp.WithLimit(config.Clients.FMP.Limit),
	)

	avClient := alphavantage.NewClient(config.Clients.AlphaVantage.APIKey,
		alphavantage.WithLogger(logger),
		alphavantage.WithBaseURL(config.Clients.AlphaVantage.BaseURL),
		alphavantage.WithRateLimit(config.Clients.AlphaVantage.RateLimit),
		alphavantage.WithTimeout(config.Clients.AlphaVantage.GetTimeout()),
	)

	agg := aggregator.NewService(aggregator.Sources{
		Estimates:    fmpClient,
		Fundamentals: avClient,
		Quotes:       []interfaces.QuoteProvider{fmpClient, avClient},
	}, config.Metrics.DefaultPrice, logger)

	hub := events.NewHub(logger)
	go hub.Run()

	res := resolver.NewService(agg, cache, logger, resolver.Options{
		MethodTag:   config.Metrics.MethodTag,
		MaxAge:      config.Cache.GetMaxAge(),
		CurrentYear: config.Metrics.CurrentYear,
		Events:      hub,
	})

	a := &App{
		Config:             config,
		Logger:             logger,
		Cache:              cache,
		FMPClient:          fmpClient,
		AlphaVantageClient: avClient,
		Aggregator:         agg,
		Resolver:           res,
		Events:             hub,
		StartupTime:        startupStart,
	}

	logger.Info().
		Str("cache", config.Cache.Backend).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: stop the warm schedule, cancel warm cache and wait for it
// to return, wait for background computations, stop the event hub, close
// the cache.
func (a *App) Close() {
	if a.warmCron != nil {
		<-a.warmCron.Stop().Done()
		a.warmCron = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
	a.warmWG.Wait()
	if a.Resolver != nil {
		a.Resolver.Wait()
	}
	if a.Events != nil {
		a.Events.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache")
		}
		a.Cache = nil
	}
}

// StartWarmCache launches the startup cache warming goroutine.
func (a *App) StartWarmCache() {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	a.warmCacheCancel = warmCancel
	a.warmWG.Add(1)
	go func() {
		defer a.warmWG.Done()
		defer warmCancel()
		warmCache(warmCtx, a.Resolver, a.Config.Cache.WarmTickers, false, a.Logger)
	}()
}

// StartWarmScheduler refreshes the warm tickers on the configured cron schedule.
func (a *App) StartWarmScheduler() error {
	c, err := newWarmScheduler(a.Config.Cache.WarmSchedule, a.Resolver, a.Config.Cache.WarmTickers, a.Logger)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	a.warmCron = c
	c.Start()
	return nil
}
