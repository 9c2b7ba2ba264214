// Command ace-weekly runs the weekly Reflect/Curate cycle: it first runs
// the current day's daily cycle (a no-op if already published), gathers
// the week's daily trade logs from the state bundle store, asks the
// Reflector for insights, and folds them into the Playbook via the
// Curator.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/cycle"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
	"github.com/ace-loop/trading-ace/internal/config"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/ace-loop/trading-ace/internal/wiring"
)

func main() {
	log.SetFlags(0)
	var cfgPath, weekEnd string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&weekEnd, "week-end", "", "last trading day of the week (YYYY-MM-DD), defaults to today (UTC)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	end, err := parseWeekEnd(weekEnd)
	if err != nil {
		log.Fatalf("bad -week-end: %v", err)
	}
	start := end.AddDate(0, 0, -4) // Mon..Fri window ending on end

	bundles := wiring.NewBundleStore(cfg)
	notifier := notify.New(notify.Config{
		WebhookURL:      cfg.Notify.WebhookURL,
		DedupeWindowSec: cfg.Notify.DedupeWindowSec,
		MaxPerMinute:    cfg.Notify.MaxPerMinute,
	})
	defer notifier.Close()

	daily := wiring.BuildDaily(cfg, bundles, notifier)
	weekly := wiring.BuildWeekly(cfg, bundles, notifier, daily)

	window := reflector.Window{Start: start.Format("2006-01-02"), End: end.Format("2006-01-02")}
	observ.Log("ace_weekly.startup", map[string]any{"start": window.Start, "end": window.End})

	report, err := weekly.Run(context.Background(), window, cycle.WeekLabel(end))
	if err != nil {
		log.Fatalf("weekly cycle: %v", err)
	}
	observ.Log("ace_weekly.done", map[string]any{"insights": len(report.Insights), "error": report.Error})
}

func parseWeekEnd(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}
