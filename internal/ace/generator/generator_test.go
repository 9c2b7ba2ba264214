package generator

import (
	"context"
	"testing"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/aceerr"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/stretchr/testify/require"
)

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

func newGen(t *testing.T, text string, err error) *Generator {
	return New(stubLLM{text: text, err: err}, jsondecode.New(t.TempDir()), llmclient.Config{})
}

func TestGenerateHappyPathBullish(t *testing.T) {
	text := `{"date":"2025-10-29","bias":"bullish","entry_zone":[1.084,1.085],"stop_loss":1.082,"take_profit_1":1.090,"confidence":"high","rationale":"test","playbook_entries_used":["strat-001"]}`
	g := newGen(t, text, nil)
	plan := g.Generate(context.Background(), "2025-10-29", playbook.Seed(time.Now()), MarketSnapshot{})
	require.Equal(t, "bullish", plan.Bias)
	require.Empty(t, plan.Error)
}

func TestGenerateDegradesOnUpstreamFailure(t *testing.T) {
	g := newGen(t, "", aceerr.ErrUpstreamUnavailable)
	plan := g.Generate(context.Background(), "2025-10-29", playbook.Seed(time.Now()), MarketSnapshot{})
	require.Equal(t, "neutral", plan.Bias)
	require.Equal(t, "low", plan.Confidence)
	require.NotEmpty(t, plan.Error)
}

func TestGenerateDegradesOnMalformedJSON(t *testing.T) {
	g := newGen(t, "not json at all", nil)
	plan := g.Generate(context.Background(), "2025-10-29", playbook.Seed(time.Now()), MarketSnapshot{})
	require.Equal(t, "neutral", plan.Bias)
}

func TestGenerateDegradesOnBiasInconsistency(t *testing.T) {
	// bullish plan with stop loss above the entry zone violates ordering.
	text := `{"date":"2025-10-29","bias":"bullish","entry_zone":[1.084,1.085],"stop_loss":1.086,"take_profit_1":1.090,"confidence":"high","rationale":"bad"}`
	g := newGen(t, text, nil)
	plan := g.Generate(context.Background(), "2025-10-29", playbook.Seed(time.Now()), MarketSnapshot{})
	require.Equal(t, "neutral", plan.Bias)
	require.Contains(t, plan.Error, "bias-consistency")
}

func TestGenerateNeutralPlanNeedsNoNumericFields(t *testing.T) {
	text := `{"date":"2025-10-29","bias":"neutral","confidence":"low","rationale":"no edge today"}`
	g := newGen(t, text, nil)
	plan := g.Generate(context.Background(), "2025-10-29", playbook.Seed(time.Now()), MarketSnapshot{})
	require.Equal(t, "neutral", plan.Bias)
	require.Empty(t, plan.Error)
}

func TestGateCheckBearishOrdering(t *testing.T) {
	sl, tp := 1.090, 1.080
	plan := TradingPlan{Bias: "bearish", EntryZone: []float64{1.084, 1.085}, StopLoss: &sl, TakeProfit1: &tp}
	require.Empty(t, gateCheck(plan))

	badSL := 1.083
	plan.StopLoss = &badSL
	require.NotEmpty(t, gateCheck(plan))
}
