package reflector

import (
	"context"
	"testing"

	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/simulator"
	"github.com/stretchr/testify/require"
)

func tradeLog(outcome simulator.Outcome, pips float64) executor.TradeLog {
	return executor.TradeLog{
		Execution: simulator.Execution{Outcome: outcome, PnLPips: pips, Entered: outcome != simulator.OutcomeNoEntry},
	}
}

func TestComputeSummary(t *testing.T) {
	logs := []executor.TradeLog{
		tradeLog(simulator.OutcomeWin, 60),
		tradeLog(simulator.OutcomeWin, 40),
		tradeLog(simulator.OutcomeLoss, -20),
		tradeLog(simulator.OutcomeNoEntry, 0),
	}
	s := ComputeSummary(logs)
	require.Equal(t, 4, s.TotalTrades)
	require.Equal(t, 2, s.Wins)
	require.Equal(t, 1, s.Losses)
	require.Equal(t, 1, s.NoEntries)
	require.InDelta(t, 2.0/3.0, s.WinRate, 1e-9)
	require.InDelta(t, 80, s.TotalPips, 1e-9)
	require.InDelta(t, 50, s.AvgWinPips, 1e-9)
	require.InDelta(t, -20, s.AvgLossPips, 1e-9)
}

type stubLLM struct {
	text string
	err  error
}

func (s stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg llmclient.Config) (llmclient.Result, error) {
	if s.err != nil {
		return llmclient.Result{}, s.err
	}
	return llmclient.Result{Text: s.text}, nil
}

func TestReflectDegradesToEmptyInsightsOnFailure(t *testing.T) {
	r := New(stubLLM{err: assertErr}, jsondecode.New(t.TempDir()), llmclient.Config{})
	report := r.Reflect(context.Background(), Window{Start: "2025-10-27", End: "2025-10-31"}, nil)
	require.NotEmpty(t, report.Error)
	require.Empty(t, report.Insights)
}

func TestReflectParsesInsights(t *testing.T) {
	text := `{"insights":[{"kind":"failure_pattern","description":"late entries lose more","evidence_plan_ids":["2025-10-27"],"suggested_action":"add_entry","target_section":"troubleshooting_and_pitfalls","proposed_content":"avoid entries after 2pm","priority":"high"}],"market_regime_notes":"choppy"}`
	r := New(stubLLM{text: text}, jsondecode.New(t.TempDir()), llmclient.Config{})
	report := r.Reflect(context.Background(), Window{}, nil)
	require.Empty(t, report.Error)
	require.Len(t, report.Insights, 1)
	require.Equal(t, "choppy", report.MarketRegimeNotes)
}

var assertErr = errTest{}

type errTest struct{}

func (errTest) Error() string { return "upstream unavailable" }
