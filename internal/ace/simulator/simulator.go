// Package simulator deterministically replays a trading plan against a
// session's OHLC candles to decide whether it would have won, lost, gone
// unfilled, or remained open, falling back to a hash-derived outcome when no
// real price data is available.
package simulator

import (
	"hash/fnv"
	"time"

	"github.com/ace-loop/trading-ace/internal/observ"
)

// Bias is the directional call a plan makes.
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
	Neutral Bias = "neutral"
)

// Confidence is the Generator's stated conviction, used only by the
// hash-based fallback.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Outcome enumerates the four possible replay results.
type Outcome string

const (
	OutcomeNoEntry Outcome = "no_entry"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeOpen    Outcome = "open"
)

// Method distinguishes a real price replay from the deterministic fallback.
type Method string

const (
	MethodRealPriceData     Method = "real_price_data"
	MethodHashBasedFallback Method = "hash_based_fallback"
)

// Candle is one OHLC bar of the session.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// Plan is the subset of a TradingPlan the simulator needs.
type Plan struct {
	Date         string
	Bias         Bias
	EntryLow     float64
	EntryHigh    float64
	StopLoss     float64
	TakeProfit1  float64
	Confidence   Confidence
}

// PipScaleFor returns the pair's pip-scale multiplier, defaulting to the
// EURUSD convention of 10,000x when the pair is unknown.
func PipScaleFor(pair string, scales map[string]float64) float64 {
	if v, ok := scales[pair]; ok && v != 0 {
		return v
	}
	return 10000
}

// Execution is the simulator's decision, plus the fields needed to build a
// TradeLog. It serializes as the trade_log.json "execution" object, so its
// tags are the snake_case keys spec'd there, not Go's default field names;
// Entered and FallbackReason are executor/reflector-internal bookkeeping and
// are tagged json:"-", so they are never serialized.
type Execution struct {
	Outcome        Outcome    `json:"outcome"`
	Method         Method     `json:"method"`
	EntryTime      *time.Time `json:"entry_time,omitempty"`
	EntryPrice     float64    `json:"entry_price,omitempty"`
	ExitTime       *time.Time `json:"exit_time,omitempty"`
	ExitPrice      float64    `json:"exit_price,omitempty"`
	PnLPips        float64    `json:"pnl_pips,omitempty"`
	Entered        bool       `json:"-"`
	FallbackReason string     `json:"-"`
}

// Simulate walks candles in order, never reordering or shuffling them: the
// contract is time-ordered replay, not statistical sampling.
func Simulate(plan Plan, candles []Candle, pipScale float64) Execution {
	if plan.Bias == Neutral {
		return Execution{Outcome: OutcomeNoEntry, Method: MethodRealPriceData}
	}
	if len(candles) == 0 {
		return fallback(plan, "no price data")
	}

	entryIdx, entryPrice, entryTime, entered := findEntry(plan, candles)
	if !entered {
		observ.IncCounter("ace_simulator_outcomes_total", map[string]string{"outcome": string(OutcomeNoEntry), "method": string(MethodRealPriceData)})
		return Execution{Outcome: OutcomeNoEntry, Method: MethodRealPriceData}
	}

	for i := entryIdx + 1; i < len(candles); i++ {
		c := candles[i]
		slHit := rangeContains(c.Low, c.High, plan.StopLoss)
		tpHit := rangeContains(c.Low, c.High, plan.TakeProfit1)
		if slHit && tpHit {
			// Same-bar ambiguity: assume the adverse traversal order within
			// the bar and let the stop-loss win.
			return finish(plan, entryPrice, entryTime, c.OpenTime, plan.StopLoss, OutcomeLoss, pipScale)
		}
		if slHit {
			return finish(plan, entryPrice, entryTime, c.OpenTime, plan.StopLoss, OutcomeLoss, pipScale)
		}
		if tpHit {
			return finish(plan, entryPrice, entryTime, c.OpenTime, plan.TakeProfit1, OutcomeWin, pipScale)
		}
	}

	last := candles[len(candles)-1]
	outcome := OutcomeOpen
	exec := finish(plan, entryPrice, entryTime, last.OpenTime, last.Close, outcome, pipScale)
	return exec
}

func findEntry(plan Plan, candles []Candle) (idx int, price float64, at time.Time, ok bool) {
	for i, c := range candles {
		lo, hi := overlap(c.Low, c.High, plan.EntryLow, plan.EntryHigh)
		if lo <= hi {
			return i, (lo + hi) / 2, c.OpenTime, true
		}
	}
	return 0, 0, time.Time{}, false
}

func overlap(candleLow, candleHigh, zoneLow, zoneHigh float64) (float64, float64) {
	lo := candleLow
	if zoneLow > lo {
		lo = zoneLow
	}
	hi := candleHigh
	if zoneHigh < hi {
		hi = zoneHigh
	}
	return lo, hi
}

func rangeContains(low, high, level float64) bool {
	return level >= low && level <= high
}

func finish(plan Plan, entryPrice float64, entryTime, exitTime time.Time, exitPrice float64, outcome Outcome, pipScale float64) Execution {
	pnl := (exitPrice - entryPrice) * pipScale
	if plan.Bias == Bearish {
		pnl = (entryPrice - exitPrice) * pipScale
	}
	observ.IncCounter("ace_simulator_outcomes_total", map[string]string{"outcome": string(outcome), "method": string(MethodRealPriceData)})
	return Execution{
		Outcome:    outcome,
		Method:     MethodRealPriceData,
		EntryTime:  &entryTime,
		EntryPrice: entryPrice,
		ExitTime:   &exitTime,
		ExitPrice:  exitPrice,
		PnLPips:    pnl,
		Entered:    true,
	}
}

// fallback derives a deterministic outcome from (date, confidence) when no
// real OHLC session is available, pinned to the win-probability table:
// high confidence wins 2/3 of the time, medium wins half the time, low never
// wins.
func fallback(plan Plan, reason string) Execution {
	h := fnv.New32a()
	_, _ = h.Write([]byte(plan.Date))
	n := h.Sum32()

	var win bool
	switch plan.Confidence {
	case High:
		win = n%3 != 0
	case Medium:
		win = n%2 == 0
	default:
		win = false
	}

	outcome := OutcomeLoss
	if win {
		outcome = OutcomeWin
	}
	observ.Log("simulator.fallback", map[string]any{"date": plan.Date, "confidence": plan.Confidence, "reason": reason, "outcome": outcome})
	observ.IncCounter("ace_simulator_outcomes_total", map[string]string{"outcome": string(outcome), "method": string(MethodHashBasedFallback)})
	return Execution{
		Outcome:        outcome,
		Method:         MethodHashBasedFallback,
		Entered:        true,
		FallbackReason: reason,
	}
}
