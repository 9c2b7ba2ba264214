package executor

import (
	"testing"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/simulator"
	"github.com/stretchr/testify/require"
)

func TestExecuteAppliesDeltaForKnownEntriesOnly(t *testing.T) {
	pb := playbook.Seed(time.Now().UTC())
	sl, tp := 1.0820, 1.0900
	plan := generator.TradingPlan{
		Date:                "2025-10-29",
		Bias:                "bullish",
		Confidence:          "high",
		EntryZone:           []float64{1.0840, 1.0850},
		StopLoss:            &sl,
		TakeProfit1:         &tp,
		PlaybookEntriesUsed: []string{"strat-001", "does-not-exist"},
	}
	candles := []simulator.Candle{
		{OpenTime: time.Now(), Low: 1.0842, High: 1.0855},
		{OpenTime: time.Now().Add(time.Minute), Low: 1.0896, High: 1.0905},
	}

	log, delta := Execute(plan, candles, pb, 10000, time.Now())
	require.Equal(t, simulator.OutcomeWin, log.Execution.Outcome)
	require.Contains(t, delta.LastUsed, "strat-001")
	require.NotContains(t, delta.LastUsed, "does-not-exist")
	require.Equal(t, "helpful", log.Feedback.PlaybookEntriesFeedback["strat-001"])
}

func TestExecuteFallbackRecordsUnexpectedEvent(t *testing.T) {
	pb := playbook.Seed(time.Now().UTC())
	sl, tp := 1.0820, 1.0900
	plan := generator.TradingPlan{
		Date: "2025-10-29", Bias: "bullish", Confidence: "medium",
		EntryZone: []float64{1.0840, 1.0850}, StopLoss: &sl, TakeProfit1: &tp,
	}
	log, _ := Execute(plan, nil, pb, 10000, time.Now())
	require.Equal(t, simulator.MethodHashBasedFallback, log.Execution.Method)
	require.NotEmpty(t, log.Feedback.UnexpectedEvents)
}
