package scheduler

import (
	"context"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/cycle"
	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
)

// DailyJob runs one day's Generate/Execute cycle for "today" (UTC) at fire
// time.
type DailyJob struct {
	Cycle *cycle.Daily
	Pair  string
}

func (j *DailyJob) Name() string { return "ace_daily" }

func (j *DailyJob) Run() error {
	date := time.Now().UTC().Format("2006-01-02")
	_, err := j.Cycle.Run(context.Background(), date, generator.MarketSnapshot{Pair: j.Pair, CurrentTimeUTC: time.Now().UTC()})
	return err
}

// WeeklyJob runs the Reflect/Curate cycle over the trailing Mon-Fri window
// ending "today" (UTC) at fire time. Cycle.GatherLogs supplies the week's
// trade logs, and Cycle.Daily (if set) runs the leading daily cycle for
// today before the week's logs are gathered.
type WeeklyJob struct {
	Cycle *cycle.Weekly
}

func (j *WeeklyJob) Name() string { return "ace_weekly" }

func (j *WeeklyJob) Run() error {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -4)
	window := reflector.Window{Start: start.Format("2006-01-02"), End: end.Format("2006-01-02")}
	_, err := j.Cycle.Run(context.Background(), window, cycle.WeekLabel(end))
	return err
}
