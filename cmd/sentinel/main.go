// Command sentinel launches the Bybit private-feed monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/quantrail/sentinel/internal/bybit"
	"github.com/quantrail/sentinel/internal/config"
	"github.com/quantrail/sentinel/internal/journal"
	"github.com/quantrail/sentinel/internal/monitor"
	"github.com/quantrail/sentinel/internal/notify"
	"github.com/quantrail/sentinel/internal/telemetry"
	"github.com/quantrail/sentinel/lib/async"
)

const (
	defaultConfigPath   = "config/app.yaml"
	sentinelLogPrefix   = "sentinel "
	notifyPoolWorkers   = 4
	notifyPoolDepth     = 64
	shutdownTimeout     = 30 * time.Second
	journalCloseTimeout = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newSentinelLogger()

	appCfg, loadedFromFile, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	logger.Printf("configuration initialised: env=%s, category=%s",
		appCfg.Environment, appCfg.Bybit.Category)

	_, telemetryShutdown, err := telemetry.Init(ctx, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	pool, err := newNotifyPool(logger)
	if err != nil {
		logger.Fatalf("initialise worker pool: %v", err)
	}

	rest := bybit.NewClient(
		appCfg.Bybit.RESTURL,
		appCfg.Bybit.APIKey,
		appCfg.Bybit.APISecret,
		appCfg.Bybit.RecvWindow,
		appCfg.Bybit.HTTPTimeout,
	)

	notifier, err := notify.NewDiscord(appCfg.Discord, logger)
	if err != nil {
		logger.Fatalf("initialise notifier: %v", err)
	}

	store, journalClose := initJournal(ctx, logger, appCfg.Journal)

	mon, err := buildMonitor(appCfg, rest, notifier, store, logger, pool)
	if err != nil {
		logger.Fatalf("initialise monitor: %v", err)
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := mon.Run(ctx); err != nil {
			logger.Printf("monitor: %v", err)
		}
	})

	logger.Print("sentinel started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	cancel()
	lifecycle.Wait()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Printf("worker pool shutdown: %v", err)
	}
	journalClose()
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	cfgPath := flag.String("config", defaultConfigPath, fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newSentinelLogger() *log.Logger {
	return log.New(os.Stdout, sentinelLogPrefix, log.LstdFlags|log.Lmicroseconds)
}

func newNotifyPool(logger *log.Logger) (*async.Pool, error) {
	return async.NewPool(notifyPoolWorkers, notifyPoolDepth, logger)
}

// initJournal opens the trade journal when a DSN is configured. Journaling is
// optional; Sentinel runs without persistence when the DSN is empty.
func initJournal(ctx context.Context, logger *log.Logger, cfg config.JournalConfig) (monitor.Journal, func()) {
	if cfg.DSN == "" {
		logger.Print("journal disabled: no database DSN configured")
		return nil, func() {}
	}
	pool, err := journal.Connect(ctx, cfg.DSN)
	if err != nil {
		logger.Fatalf("connect journal: %v", err)
	}
	logger.Print("journal connected")
	closeFn := func() {
		done := make(chan struct{})
		go func() {
			pool.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(journalCloseTimeout):
			logger.Print("journal close timed out")
		}
	}
	return journal.NewStore(pool), closeFn
}

func buildMonitor(appCfg config.Config, rest *bybit.Client, notifier monitor.Notifier, store monitor.Journal, logger *log.Logger, pool *async.Pool) (*monitor.Monitor, error) {
	return monitor.New(monitor.Options{
		WebsocketURL: appCfg.Bybit.WebsocketURL,
		Category:     appCfg.Bybit.Category,
		APIKey:       appCfg.Bybit.APIKey,
		APISecret:    appCfg.Bybit.APISecret,
		Monitor:      appCfg.Monitor,
		Exchange:     rest,
		Notifier:     notifier,
		Journal:      store,
		Logger:       logger,
		Pool:         pool,
	})
}
