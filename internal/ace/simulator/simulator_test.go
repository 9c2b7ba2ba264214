package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func candle(minute int, low, high float64) Candle {
	return Candle{
		OpenTime: time.Date(2025, 10, 29, 13, minute, 0, 0, time.UTC),
		Low:      low,
		High:     high,
		Open:     (low + high) / 2,
		Close:    (low + high) / 2,
	}
}

func bullishPlan() Plan {
	return Plan{
		Date:        "2025-10-29",
		Bias:        Bullish,
		EntryLow:    1.0840,
		EntryHigh:   1.0850,
		StopLoss:    1.0820,
		TakeProfit1: 1.0900,
		Confidence:  High,
	}
}

func TestSimulateHappyPathWin(t *testing.T) {
	plan := bullishPlan()
	candles := []Candle{
		candle(0, 1.0842, 1.0855),
		candle(15, 1.0860, 1.0870),
		candle(30, 1.0896, 1.0905),
	}
	exec := Simulate(plan, candles, 10000)
	require.Equal(t, OutcomeWin, exec.Outcome)
	require.Equal(t, MethodRealPriceData, exec.Method)
	require.InDelta(t, 1.0900, exec.ExitPrice, 1e-9)
	require.Greater(t, exec.PnLPips, 0.0)
}

func TestSimulateSameBarTieStopLossWins(t *testing.T) {
	plan := bullishPlan()
	candles := []Candle{
		candle(0, 1.0842, 1.0855),
		candle(15, 1.0815, 1.0905),
	}
	exec := Simulate(plan, candles, 10000)
	require.Equal(t, OutcomeLoss, exec.Outcome)
	require.InDelta(t, 1.0820, exec.ExitPrice, 1e-9)
}

func TestSimulateNoEntry(t *testing.T) {
	plan := bullishPlan()
	candles := []Candle{
		candle(0, 1.0800, 1.0830),
		candle(15, 1.0790, 1.0835),
	}
	exec := Simulate(plan, candles, 10000)
	require.Equal(t, OutcomeNoEntry, exec.Outcome)
	require.False(t, exec.Entered)
}

func TestSimulateEndOfSessionOpen(t *testing.T) {
	plan := bullishPlan()
	candles := []Candle{
		candle(0, 1.0842, 1.0855),
		candle(15, 1.0855, 1.0865),
	}
	exec := Simulate(plan, candles, 10000)
	require.Equal(t, OutcomeOpen, exec.Outcome)
}

func TestSimulateFallbackWhenNoCandles(t *testing.T) {
	plan := bullishPlan()
	exec := Simulate(plan, nil, 10000)
	require.Equal(t, MethodHashBasedFallback, exec.Method)
	require.Contains(t, []Outcome{OutcomeWin, OutcomeLoss}, exec.Outcome)
	require.NotEmpty(t, exec.FallbackReason)
}

func TestSimulateNeutralIsAlwaysNoEntry(t *testing.T) {
	plan := bullishPlan()
	plan.Bias = Neutral
	exec := Simulate(plan, []Candle{candle(0, 1.0, 2.0)}, 10000)
	require.Equal(t, OutcomeNoEntry, exec.Outcome)
}

func TestSimulateDeterministic(t *testing.T) {
	plan := bullishPlan()
	candles := []Candle{candle(0, 1.0842, 1.0855), candle(15, 1.0896, 1.0905)}
	a := Simulate(plan, candles, 10000)
	b := Simulate(plan, candles, 10000)
	require.Equal(t, a, b)
}

func TestFallbackDeterministicAcrossCalls(t *testing.T) {
	plan := bullishPlan()
	a := Simulate(plan, nil, 10000)
	b := Simulate(plan, nil, 10000)
	require.Equal(t, a.Outcome, b.Outcome)
}

func TestPipScaleForDefaultsToTenThousand(t *testing.T) {
	require.Equal(t, 10000.0, PipScaleFor("EURUSD", nil))
	scales := map[string]float64{"USDJPY": 100}
	require.Equal(t, 100.0, PipScaleFor("USDJPY", scales))
	require.Equal(t, 10000.0, PipScaleFor("UNKNOWN", scales))
}
