package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/curator"
	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
	"github.com/ace-loop/trading-ace/internal/ace/simulator"
	"github.com/ace-loop/trading-ace/internal/marketdata"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/statebundle"
	"github.com/stretchr/testify/require"
)

func newWeekly(t *testing.T, llmText string, logs []executor.TradeLog) (*Weekly, *playbook.Store) {
	t.Helper()
	store := playbook.NewStore(t.TempDir())
	ref := reflector.New(stubLLM{text: llmText}, jsondecode.New(t.TempDir()), llmclient.Config{})
	return &Weekly{
		Playbook:       store,
		Reflector:      ref,
		Curator:        curator.Config{PruneHarmfulMinusHelpful: 2, PruneHarmfulMinimum: 3},
		Bundles:        statebundle.NewLocalStore(t.TempDir()),
		Notifier:       notify.New(notify.Config{}),
		ReflectionsDir: t.TempDir(),
		GatherLogs:     func(start, end time.Time) []executor.TradeLog { return logs },
	}, store
}

func TestWeeklyRunAppliesInsightsAndPublishes(t *testing.T) {
	logs := []executor.TradeLog{{Execution: simulator.Execution{Outcome: simulator.OutcomeWin, PnLPips: 30}}}
	w, store := newWeekly(t, `{"insights":[{"kind":"success_pattern","description":"good week","suggested_action":"add_entry","target_section":"strategies_and_hard_rules","proposed_content":"trend continuation works on Fridays","priority":"high"}],"market_regime_notes":"trending"}`, logs)
	defer w.Notifier.Close()

	report, err := w.Run(context.Background(), reflector.Window{Start: "2025-10-27", End: "2025-10-31"}, "2025_W44")
	require.NoError(t, err)
	require.Empty(t, report.Error)

	pb, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "1.1", pb.Metadata.Version)
}

func TestWeeklyRunDegradesWithoutCuratingOnReflectFailure(t *testing.T) {
	w, store := newWeekly(t, "not json at all", nil)
	defer w.Notifier.Close()

	before, err := store.Load()
	require.NoError(t, err)
	beforeVersion := before.Metadata.Version

	report, err := w.Run(context.Background(), reflector.Window{}, "2025_W44")
	require.NoError(t, err)
	require.NotEmpty(t, report.Error)

	after, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, beforeVersion, after.Metadata.Version, "curator must be a no-op when reflection degrades")
}

func TestWeeklyRunRunsLeadingDailyCycleForWindowEnd(t *testing.T) {
	w, _ := newWeekly(t, `{"insights":[],"market_regime_notes":""}`, nil)
	defer w.Notifier.Close()

	gen := generator.New(stubLLM{text: `{"date":"2025-10-31","bias":"neutral","confidence":"low"}`}, jsondecode.New(t.TempDir()), llmclient.Config{})
	w.Daily = &Daily{
		Playbook:   playbook.NewStore(t.TempDir()),
		Generator:  gen,
		Market:     marketdata.New(marketdata.Config{Pair: "EURUSD"}, marketdata.NewMemoryCache()),
		Bundles:    w.Bundles,
		Notifier:   w.Notifier,
		SessionDir: t.TempDir(),
		Pair:       "EURUSD",
		OpenUTC:    "13:00",
		DurationHr: 8,
		IntervalMn: 15,
	}

	_, err := w.Run(context.Background(), reflector.Window{Start: "2025-10-27", End: "2025-10-31"}, "2025_W44")
	require.NoError(t, err)

	b, ok, err := w.Bundles.Restore(context.Background(), "2025-10-31")
	require.NoError(t, err)
	require.True(t, ok, "leading daily cycle should have published a bundle for window.End")
	require.Equal(t, "daily", b.Kind)
}

func TestWeekLabelFormatsISOWeek(t *testing.T) {
	tm := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
	require.Regexp(t, `^\d{4}_W\d{2}$`, WeekLabel(tm))
}
