// Command report posts realized daily PnL summaries to the PnL webhook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/quantrail/sentinel/internal/bybit"
	"github.com/quantrail/sentinel/internal/config"
	"github.com/quantrail/sentinel/internal/notify"
	"github.com/quantrail/sentinel/internal/schema"
	"github.com/quantrail/sentinel/internal/stats"
)

const defaultConfigPath = "config/app.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath = flag.String("config", defaultConfigPath, "Path to application configuration file")
		days    = flag.Int("days", 1, "Number of past days to report")
		tz      = flag.String("tz", "UTC", "Time zone for day boundaries")
	)
	flag.Parse()

	if *days <= 0 {
		return fmt.Errorf("-days must be positive, got %d", *days)
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("load time zone %q: %w", *tz, err)
	}

	logger := log.New(os.Stdout, "sentinel-report ", log.LstdFlags)

	appCfg, _, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rest := bybit.NewClient(
		appCfg.Bybit.RESTURL,
		appCfg.Bybit.APIKey,
		appCfg.Bybit.APISecret,
		appCfg.Bybit.RecvWindow,
		appCfg.Bybit.HTTPTimeout,
	)
	notifier, err := notify.NewDiscord(appCfg.Discord, logger)
	if err != nil {
		return fmt.Errorf("initialise notifier: %w", err)
	}

	since := time.Now().In(loc).AddDate(0, 0, -*days)
	start := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, loc)

	records, err := rest.ClosedPnlSince(ctx, appCfg.Bybit.Category, start.UnixMilli())
	if err != nil {
		return fmt.Errorf("fetch closed pnl: %w", err)
	}
	logger.Printf("fetched %d closed-pnl record(s) since %s", len(records), start.Format("2006-01-02"))

	equity := fetchEquity(ctx, logger, rest)

	summaries := stats.DailyFromRecords(records, loc)
	if len(summaries) == 0 {
		logger.Print("no realized trades in the window; nothing to report")
		return nil
	}

	for _, summary := range summaries {
		report := summary.Report()
		report.Equity = equity
		err := notifier.Notify(ctx, schema.Notification{
			Kind:   schema.KindDailyReport,
			Report: &report,
			At:     time.Now(),
		})
		if err != nil {
			return fmt.Errorf("post report for %s: %w", summary.Date.Format("2006-01-02"), err)
		}
		logger.Printf("report posted: %s pnl=%s trades=%d",
			summary.Date.Format("2006-01-02"), summary.TotalPnl, summary.Trades)
	}
	return nil
}

// fetchEquity best-effort reads USDT equity for the report footer.
func fetchEquity(ctx context.Context, logger *log.Logger, rest *bybit.Client) string {
	coins, err := rest.WalletBalance(ctx)
	if err != nil {
		logger.Printf("wallet balance unavailable: %v", err)
		return ""
	}
	for _, coin := range coins {
		if coin.Coin == "USDT" {
			return coin.Equity
		}
	}
	return ""
}
