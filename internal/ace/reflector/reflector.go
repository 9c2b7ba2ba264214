// Package reflector implements the Reflector role: computing deterministic
// weekly summary statistics from a set of trade logs, then asking the model
// for a structured, prioritized list of Playbook update suggestions.
package reflector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/observ"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window bounds the trading week a report covers.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary is computed deterministically, without any LLM involvement.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	NoEntries   int     `json:"no_entries"`
	WinRate     float64 `json:"win_rate"`
	TotalPips   float64 `json:"total_pips"`
	AvgWinPips  float64 `json:"avg_win_pips"`
	AvgLossPips float64 `json:"avg_loss_pips"`
	PipStdDev   float64 `json:"pip_std_dev"`
}

// Insight is one proposed Playbook change.
type Insight struct {
	Kind             string   `json:"kind"` // success_pattern | failure_pattern | outdated_rule
	Description      string   `json:"description"`
	EvidencePlanIDs  []string `json:"evidence_plan_ids"`
	SuggestedAction  string   `json:"suggested_action"` // add_entry | increment_helpful | increment_harmful | prune
	TargetSection    string   `json:"target_section,omitempty"`
	TargetEntryID    string   `json:"target_entry_id,omitempty"`
	ProposedContent  string   `json:"proposed_content,omitempty"`
	Priority         string   `json:"priority"` // high | medium | low
}

// Report is the Reflector's output artifact.
type Report struct {
	Window            Window    `json:"window"`
	Summary           Summary   `json:"summary"`
	Insights          []Insight `json:"insights"`
	MarketRegimeNotes string    `json:"market_regime_notes"`
	Error             string    `json:"error,omitempty"`
}

const systemPrompt = `You are the Reflector in an academic market-structure research exercise.
Given a week's worth of simulated trade outcomes and the strategy notes cited in each,
propose at most 5 concrete, testable knowledge-base updates. Respond with exactly one
JSON object and nothing else, matching:
{"insights": [{"kind": "success_pattern|failure_pattern|outdated_rule", "description": "...",
"evidence_plan_ids": ["..."], "suggested_action": "add_entry|increment_helpful|increment_harmful|prune",
"target_section": "...", "target_entry_id": "...", "proposed_content": "...",
"priority": "high|medium|low"}], "market_regime_notes": "..."}
Favor changes backed by repeated evidence over single-trade anecdotes.`

// Reflector produces a Report from a window of trade logs.
type Reflector struct {
	llm     llmclient.Client
	decoder *jsondecode.Decoder
	cfg     llmclient.Config
}

func New(llm llmclient.Client, decoder *jsondecode.Decoder, cfg llmclient.Config) *Reflector {
	return &Reflector{llm: llm, decoder: decoder, cfg: cfg}
}

// ComputeSummary derives Summary deterministically; this never touches the model.
func ComputeSummary(logs []executor.TradeLog) Summary {
	var s Summary
	var pips, wins, losses []float64
	for _, l := range logs {
		s.TotalTrades++
		switch l.Execution.Outcome {
		case "win":
			s.Wins++
			wins = append(wins, l.Execution.PnLPips)
		case "loss":
			s.Losses++
			losses = append(losses, l.Execution.PnLPips)
		case "no_entry":
			s.NoEntries++
		}
		if l.Execution.Entered {
			pips = append(pips, l.Execution.PnLPips)
		}
	}
	decided := s.Wins + s.Losses
	if decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided)
	}
	if len(pips) > 0 {
		s.TotalPips = floats.Sum(pips)
		if len(pips) > 1 {
			s.PipStdDev = stat.StdDev(pips, nil)
		}
	}
	if len(wins) > 0 {
		s.AvgWinPips = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		s.AvgLossPips = stat.Mean(losses, nil)
	}
	return s
}

// Reflect computes the summary locally then asks the model for insights,
// degrading to an empty-insights report (Curator becomes a no-op) on any
// upstream, decode, or schema failure.
func (r *Reflector) Reflect(ctx context.Context, window Window, logs []executor.TradeLog) Report {
	summary := ComputeSummary(logs)
	report := Report{Window: window, Summary: summary}

	evidence, err := json.Marshal(logs)
	if err != nil {
		report.Error = "failed to marshal evidence: " + err.Error()
		return report
	}
	summaryJSON, _ := json.Marshal(summary)
	userPrompt := fmt.Sprintf("window: %s to %s\nsummary: %s\ntrade_logs: %s\n", window.Start, window.End, summaryJSON, evidence)

	result, err := r.llm.Generate(ctx, systemPrompt, userPrompt, r.cfg)
	if err != nil {
		observ.Log("reflector.llm_failed", map[string]any{"error": err.Error()})
		report.Error = err.Error()
		return report
	}

	raw, err := r.decoder.Decode("reflector", window.End, result.Text)
	if err != nil {
		observ.Log("reflector.decode_failed", map[string]any{"error": err.Error()})
		report.Error = err.Error()
		return report
	}

	data, err := json.Marshal(raw)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	var decoded struct {
		Insights          []Insight `json:"insights"`
		MarketRegimeNotes string    `json:"market_regime_notes"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		observ.Log("reflector.schema_violation", map[string]any{"error": err.Error()})
		report.Error = err.Error()
		return report
	}

	report.Insights = decoded.Insights
	report.MarketRegimeNotes = decoded.MarketRegimeNotes
	return report
}
