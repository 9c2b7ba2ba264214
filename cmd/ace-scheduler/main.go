// Command ace-scheduler runs the daily and weekly ACE cycles on a cron
// schedule, staying resident rather than exiting after one cycle like
// ace-daily/ace-weekly do.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ace-loop/trading-ace/internal/config"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/scheduler"
	"github.com/ace-loop/trading-ace/internal/wiring"
	"github.com/rs/zerolog"
)

func main() {
	var cfgPath, dailySchedule, weeklySchedule string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&dailySchedule, "daily-schedule", "0 14 * * MON-FRI", "cron schedule for the daily cycle")
	flag.StringVar(&weeklySchedule, "weekly-schedule", "0 22 * * FRI", "cron schedule for the weekly cycle")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	bundles := wiring.NewBundleStore(cfg)
	notifier := notify.New(notify.Config{
		WebhookURL:      cfg.Notify.WebhookURL,
		DedupeWindowSec: cfg.Notify.DedupeWindowSec,
		MaxPerMinute:    cfg.Notify.MaxPerMinute,
	})
	defer notifier.Close()

	daily := wiring.BuildDaily(cfg, bundles, notifier)
	weekly := wiring.BuildWeekly(cfg, bundles, notifier, daily)

	sched := scheduler.New(log)
	if err := sched.AddJob(dailySchedule, &scheduler.DailyJob{Cycle: daily, Pair: cfg.Market.Pair}); err != nil {
		log.Fatal().Err(err).Msg("register daily job")
	}
	if err := sched.AddJob(weeklySchedule, &scheduler.WeeklyJob{Cycle: weekly}); err != nil {
		log.Fatal().Err(err).Msg("register weekly job")
	}

	sched.Start()
	log.Info().Str("daily_schedule", dailySchedule).Str("weekly_schedule", weeklySchedule).Msg("ace-scheduler running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	sched.Stop()
}
