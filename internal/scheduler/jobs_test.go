package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/cycle"
	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/marketdata"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
	"github.com/ace-loop/trading-ace/internal/statebundle"
	"github.com/stretchr/testify/require"
)

type stubLLM struct{ text string }

func (s stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg llmclient.Config) (llmclient.Result, error) {
	return llmclient.Result{Text: s.text}, nil
}

func TestDailyJobRunsOneCycle(t *testing.T) {
	notifier := notify.New(notify.Config{})
	defer notifier.Close()

	daily := &cycle.Daily{
		Playbook:   playbook.NewStore(t.TempDir()),
		Generator:  generator.New(stubLLM{text: `{"date":"x","bias":"neutral","confidence":"low"}`}, jsondecode.New(t.TempDir()), llmclient.Config{}),
		Market:     marketdata.New(marketdata.Config{Pair: "EURUSD"}, marketdata.NewMemoryCache()),
		Bundles:    statebundle.NewLocalStore(t.TempDir()),
		Notifier:   notifier,
		SessionDir: t.TempDir(),
		Pair:       "EURUSD",
		OpenUTC:    "13:00",
		DurationHr: 8,
		IntervalMn: 15,
	}

	job := &DailyJob{Cycle: daily, Pair: "EURUSD"}
	require.Equal(t, "ace_daily", job.Name())
	require.NoError(t, job.Run())
}

func TestWeeklyJobUsesGatherLogsWindow(t *testing.T) {
	var gotStart, gotEnd time.Time
	notifier := notify.New(notify.Config{})
	defer notifier.Close()

	job := &WeeklyJob{
		Cycle: &cycle.Weekly{
			Playbook:       playbook.NewStore(t.TempDir()),
			Reflector:      reflector.New(stubLLM{text: `{"insights":[],"market_regime_notes":""}`}, jsondecode.New(t.TempDir()), llmclient.Config{}),
			Bundles:        statebundle.NewLocalStore(t.TempDir()),
			Notifier:       notifier,
			ReflectionsDir: t.TempDir(),
			GatherLogs: func(start, end time.Time) []executor.TradeLog {
				gotStart, gotEnd = start, end
				return nil
			},
		},
	}
	require.Equal(t, "ace_weekly", job.Name())
	require.NoError(t, job.Run())

	require.Equal(t, 4*24*time.Hour, gotEnd.Sub(gotStart).Round(24*time.Hour), "gather window should span Mon-Fri")
}
