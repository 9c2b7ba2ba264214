// Command ace-daily runs one day's Generate/Execute cycle: it loads the
// Playbook, asks the Generator for a trading plan, replays it against the
// session's OHLC candles, and publishes the resulting state bundle.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/config"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/ace-loop/trading-ace/internal/wiring"
)

func main() {
	log.SetFlags(0)
	var cfgPath, date string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&date, "date", "", "session date (YYYY-MM-DD), defaults to today (UTC)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	bundles := wiring.NewBundleStore(cfg)
	notifier := notify.New(notify.Config{
		WebhookURL:      cfg.Notify.WebhookURL,
		DedupeWindowSec: cfg.Notify.DedupeWindowSec,
		MaxPerMinute:    cfg.Notify.MaxPerMinute,
	})
	defer notifier.Close()

	daily := wiring.BuildDaily(cfg, bundles, notifier)

	observ.Log("ace_daily.startup", map[string]any{"date": date, "pair": cfg.Market.Pair})

	res, err := daily.Run(context.Background(), date, generator.MarketSnapshot{Pair: cfg.Market.Pair, CurrentTimeUTC: time.Now().UTC()})
	if err != nil {
		log.Fatalf("daily cycle: %v", err)
	}
	if res.Skipped {
		observ.Log("ace_daily.already_published", map[string]any{"date": date})
		return
	}
	observ.Log("ace_daily.done", map[string]any{
		"date":    date,
		"bias":    res.Plan.Bias,
		"outcome": res.TradeLog.Execution.Outcome,
	})
}
