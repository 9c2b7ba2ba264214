// Package executor orchestrates the price-replay simulator against a
// Generator plan, building the resulting trade log and the Playbook usage
// delta the caller must apply.
package executor

import (
	"math"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/simulator"
	"github.com/ace-loop/trading-ace/internal/observ"
)

// Feedback captures execution-quality heuristics attached to a trade log.
type Feedback struct {
	EntryQuality             string            `json:"entry_quality"`
	ExitTiming               string            `json:"exit_timing"`
	UnexpectedEvents         []string          `json:"unexpected_events"`
	PlaybookEntriesFeedback  map[string]string `json:"playbook_entries_feedback"`
}

// TradeLog is the Executor's output artifact.
type TradeLog struct {
	PlanID    string             `json:"plan_id"`
	Execution simulator.Execution `json:"execution"`
	Feedback  Feedback           `json:"feedback"`
}

// Delta is the set of Playbook mutations the Executor observed; the caller
// applies it and is responsible for persisting the Playbook.
type Delta struct {
	LastUsed map[string]time.Time
}

func toSimPlan(p generator.TradingPlan) simulator.Plan {
	sp := simulator.Plan{
		Date:       p.Date,
		Bias:       simulator.Bias(p.Bias),
		Confidence: simulator.Confidence(p.Confidence),
	}
	if len(p.EntryZone) == 2 {
		sp.EntryLow, sp.EntryHigh = p.EntryZone[0], p.EntryZone[1]
	}
	if p.StopLoss != nil {
		sp.StopLoss = *p.StopLoss
	}
	if p.TakeProfit1 != nil {
		sp.TakeProfit1 = *p.TakeProfit1
	}
	return sp
}

// Execute runs the simulator, builds a TradeLog, and returns the Playbook
// delta to apply. Unknown entry IDs cited by the plan are dropped with a
// warning, not treated as an error.
func Execute(plan generator.TradingPlan, candles []simulator.Candle, pb *playbook.Playbook, pipScale float64, now time.Time) (TradeLog, Delta) {
	exec := simulator.Simulate(toSimPlan(plan), candles, pipScale)

	feedback := Feedback{
		EntryQuality:            entryQuality(plan, exec),
		ExitTiming:              exitTiming(exec),
		UnexpectedEvents:        unexpectedEvents(exec),
		PlaybookEntriesFeedback: map[string]string{},
	}

	delta := Delta{LastUsed: map[string]time.Time{}}
	for _, id := range plan.PlaybookEntriesUsed {
		if _, _, ok := pb.FindEntry(id); !ok {
			observ.Log("executor.unknown_entry_cited", map[string]any{"entry_id": id})
			continue
		}
		delta.LastUsed[id] = now
		feedback.PlaybookEntriesFeedback[id] = entryFeedback(exec)
	}

	return TradeLog{
		PlanID:    plan.Date,
		Execution: exec,
		Feedback:  feedback,
	}, delta
}

func entryQuality(plan generator.TradingPlan, exec simulator.Execution) string {
	if !exec.Entered || len(plan.EntryZone) != 2 {
		return "n/a"
	}
	mid := (plan.EntryZone[0] + plan.EntryZone[1]) / 2
	width := plan.EntryZone[1] - plan.EntryZone[0]
	if width == 0 {
		return "n/a"
	}
	deviation := math.Abs(exec.EntryPrice-mid) / width
	if deviation <= 0.2 {
		return "good"
	}
	return "slippage"
}

func exitTiming(exec simulator.Execution) string {
	switch exec.Outcome {
	case simulator.OutcomeLoss:
		return "stopped_out"
	case simulator.OutcomeWin:
		return "target_hit"
	case simulator.OutcomeOpen:
		return "session_close"
	default:
		return "n/a"
	}
}

func unexpectedEvents(exec simulator.Execution) []string {
	if exec.Method == simulator.MethodHashBasedFallback {
		return []string{"no price data: " + exec.FallbackReason}
	}
	return nil
}

func entryFeedback(exec simulator.Execution) string {
	switch exec.Outcome {
	case simulator.OutcomeWin:
		return "helpful"
	case simulator.OutcomeLoss:
		return "harmful"
	default:
		return "neutral"
	}
}
