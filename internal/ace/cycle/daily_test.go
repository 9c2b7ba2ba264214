package cycle

import (
	"context"
	"testing"

	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/marketdata"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/statebundle"
	"github.com/stretchr/testify/require"
)

type stubLLM struct{ text string }

func (s stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg llmclient.Config) (llmclient.Result, error) {
	return llmclient.Result{Text: s.text}, nil
}

func newDaily(t *testing.T) *Daily {
	t.Helper()
	dataDir := t.TempDir()
	sessionDir := t.TempDir()
	bundleDir := t.TempDir()

	gen := generator.New(stubLLM{text: `{"date":"2025-10-27","bias":"neutral","confidence":"low"}`}, jsondecode.New(t.TempDir()), llmclient.Config{})
	return &Daily{
		Playbook:   playbook.NewStore(dataDir),
		Generator:  gen,
		Market:     marketdata.New(marketdata.Config{Pair: "EURUSD"}, marketdata.NewMemoryCache()),
		Bundles:    statebundle.NewLocalStore(bundleDir),
		Notifier:   notify.New(notify.Config{}),
		SessionDir: sessionDir,
		Pair:       "EURUSD",
		OpenUTC:    "13:00",
		DurationHr: 8,
		IntervalMn: 15,
	}
}

func TestDailyRunFreshStartSeedsPlaybookAndPublishes(t *testing.T) {
	d := newDaily(t)
	defer d.Notifier.Close()

	res, err := d.Run(context.Background(), "2025-10-27", generator.MarketSnapshot{Pair: "EURUSD"})
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Equal(t, "neutral", res.Plan.Bias)

	pb, err := d.Playbook.Load()
	require.NoError(t, err)
	require.Equal(t, "1.0", pb.Metadata.Version, "fresh playbook load should still be the seeded version after a no-op cycle")

	b, ok, err := d.Bundles.Restore(context.Background(), "2025-10-27")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "daily", b.Kind)
}

func TestDailyRunSkipsWhenAlreadyPublished(t *testing.T) {
	d := newDaily(t)
	defer d.Notifier.Close()

	_, err := d.Run(context.Background(), "2025-10-27", generator.MarketSnapshot{})
	require.NoError(t, err)

	res, err := d.Run(context.Background(), "2025-10-27", generator.MarketSnapshot{})
	require.NoError(t, err)
	require.True(t, res.Skipped)
}
