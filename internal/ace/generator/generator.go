// Package generator implements the Generator role: turning the current
// Playbook plus a market snapshot into a schema-valid TradingPlan, degrading
// to a safe neutral plan whenever the model call, decode, or validation step
// fails.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/go-playground/validator/v10"
)

// MarketSnapshot is the opaque structured market context handed to the
// Generator; only this package inspects its fields.
type MarketSnapshot struct {
	Pair           string                       `json:"pair"`
	CurrentPrice   float64                      `json:"current_price"`
	CurrentTimeUTC time.Time                    `json:"current_time_utc"`
	Timeframes     map[string]TimeframeReading  `json:"timeframes"`
	Volatility     map[string]float64           `json:"volatility"`
	EconomicEvents []string                     `json:"economic_events"`
	Intermarket    map[string]string            `json:"intermarket"`
}

type TimeframeReading struct {
	Trend         string    `json:"trend"`
	KeySupport    []float64 `json:"key_support"`
	KeyResistance []float64 `json:"key_resistance"`
}

// TradingPlan is the Generator's output artifact.
type TradingPlan struct {
	Date               string   `json:"date" validate:"required"`
	Bias               string   `json:"bias" validate:"required,oneof=bullish bearish neutral"`
	EntryZone          []float64 `json:"entry_zone"`
	StopLoss           *float64 `json:"stop_loss"`
	TakeProfit1        *float64 `json:"take_profit_1"`
	TakeProfit2        *float64 `json:"take_profit_2"`
	PositionSizePct    *float64 `json:"position_size_pct"`
	RiskReward         string   `json:"risk_reward"`
	Rationale          string   `json:"rationale"`
	PlaybookEntriesUsed []string `json:"playbook_entries_used"`
	Confidence         string   `json:"confidence" validate:"required,oneof=high medium low"`
	Error              string   `json:"error,omitempty"`
}

const systemPrompt = `You are the Generator in an academic market-structure research exercise.
Given a knowledge base of prior strategy notes ("playbook entries") and a structured
market snapshot, produce a single JSON object describing a hypothetical trading plan
for the session. This is a research artifact, not investment advice, and no order will
ever be placed from it. Respond with exactly one JSON object and nothing else, matching:
{"date": "...", "bias": "bullish|bearish|neutral", "entry_zone": [low, high],
"stop_loss": number|null, "take_profit_1": number|null, "take_profit_2": number|null,
"position_size_pct": number|null, "risk_reward": "...", "rationale": "...",
"playbook_entries_used": ["..."], "confidence": "high|medium|low"}.
Cite the IDs of every playbook entry that informed the plan in playbook_entries_used.`

var validate = validator.New()

// Generator produces a TradingPlan from a Playbook and a MarketSnapshot.
type Generator struct {
	llm     llmclient.Client
	decoder *jsondecode.Decoder
	cfg     llmclient.Config
}

func New(llm llmclient.Client, decoder *jsondecode.Decoder, cfg llmclient.Config) *Generator {
	return &Generator{llm: llm, decoder: decoder, cfg: cfg}
}

func safeNeutral(date, reason string) TradingPlan {
	return TradingPlan{
		Date:       date,
		Bias:       "neutral",
		Confidence: "low",
		Rationale:  fmt.Sprintf("degraded to neutral: %s", reason),
		Error:      reason,
	}
}

// Generate produces a TradingPlan, degrading to a safe neutral plan on any
// upstream, decode, or validation failure rather than propagating an error.
func (g *Generator) Generate(ctx context.Context, date string, pb *playbook.Playbook, snapshot MarketSnapshot) TradingPlan {
	userPrompt, err := buildUserPrompt(date, pb, snapshot)
	if err != nil {
		observ.Log("generator.prompt_build_failed", map[string]any{"error": err.Error()})
		return safeNeutral(date, "failed to build prompt")
	}

	result, err := g.llm.Generate(ctx, systemPrompt, userPrompt, g.cfg)
	if err != nil {
		observ.Log("generator.llm_failed", map[string]any{"error": err.Error()})
		return safeNeutral(date, err.Error())
	}

	raw, err := g.decoder.Decode("generator", date, result.Text)
	if err != nil {
		observ.Log("generator.decode_failed", map[string]any{"error": err.Error()})
		return safeNeutral(date, err.Error())
	}

	plan, err := toPlan(raw)
	if err != nil {
		observ.Log("generator.schema_violation", map[string]any{"error": err.Error()})
		return safeNeutral(date, err.Error())
	}
	plan.Date = date

	if violations := gateCheck(plan); len(violations) > 0 {
		observ.Log("generator.gates_blocked", map[string]any{"violations": violations})
		return safeNeutral(date, fmt.Sprintf("bias-consistency violations: %v", violations))
	}

	return plan
}

func buildUserPrompt(date string, pb *playbook.Playbook, snapshot MarketSnapshot) (string, error) {
	pbJSON, err := json.Marshal(pb)
	if err != nil {
		return "", err
	}
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("date: %s\nplaybook: %s\nmarket_snapshot: %s\n", date, pbJSON, snapJSON), nil
}

func toPlan(raw map[string]any) (TradingPlan, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return TradingPlan{}, err
	}
	var plan TradingPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return TradingPlan{}, fmt.Errorf("schema decode: %w", err)
	}
	if err := validate.Struct(plan); err != nil {
		return TradingPlan{}, fmt.Errorf("schema validation: %w", err)
	}
	return plan, nil
}

// gateCheck applies the bias-consistency invariant: a non-neutral plan must
// carry an ordered entry zone, stop loss, and take profit on the correct
// sides of the zone for its direction. Returns the list of gates the plan
// failed (empty when the plan passes).
func gateCheck(plan TradingPlan) []string {
	var blocked []string
	if plan.Bias == "neutral" {
		return nil
	}
	if len(plan.EntryZone) != 2 {
		blocked = append(blocked, "entry_zone_missing")
		return blocked
	}
	low, high := plan.EntryZone[0], plan.EntryZone[1]
	if low >= high {
		blocked = append(blocked, "entry_zone_unordered")
	}
	if plan.StopLoss == nil || plan.TakeProfit1 == nil {
		blocked = append(blocked, "sl_tp_missing")
		return blocked
	}
	sl, tp := *plan.StopLoss, *plan.TakeProfit1
	switch plan.Bias {
	case "bullish":
		if !(sl < low && high < tp) {
			blocked = append(blocked, "bullish_ordering_violated")
		}
	case "bearish":
		if !(tp < low && high < sl) {
			blocked = append(blocked, "bearish_ordering_violated")
		}
	}
	return blocked
}
