// Command replay runs a single trading plan against a fixture of OHLC
// candles through the price-replay simulator, printing the resulting
// execution as JSON. Useful for sanity-checking a plan or a candle fixture
// without wiring up the LLM client or a live market data provider.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/ace-loop/trading-ace/internal/ace/simulator"
)

type planFile struct {
	Date        string  `json:"date"`
	Bias        string  `json:"bias"`
	EntryLow    float64 `json:"entry_low"`
	EntryHigh   float64 `json:"entry_high"`
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit1 float64 `json:"take_profit_1"`
	Confidence  string  `json:"confidence"`
}

type candleFile struct {
	Candles []simulator.Candle `json:"candles"`
}

func mustRead(path string, v any) {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.Fatalf("json %s: %v", path, err)
	}
}

func main() {
	log.SetFlags(0)
	var planPath, candlesPath, pair string
	var pipScale float64
	flag.StringVar(&planPath, "plan", "fixtures/plan.json", "trading plan fixture path")
	flag.StringVar(&candlesPath, "candles", "fixtures/candles.json", "OHLC candle fixture path")
	flag.StringVar(&pair, "pair", "EURUSD", "currency pair, used only to label output")
	flag.Float64Var(&pipScale, "pip-scale", 10000, "pip scale for the pair (10000 for most pairs, 100 for JPY crosses)")
	flag.Parse()

	var pf planFile
	mustRead(planPath, &pf)
	var cf candleFile
	mustRead(candlesPath, &cf)

	plan := simulator.Plan{
		Date:        pf.Date,
		Bias:        simulator.Bias(pf.Bias),
		EntryLow:    pf.EntryLow,
		EntryHigh:   pf.EntryHigh,
		StopLoss:    pf.StopLoss,
		TakeProfit1: pf.TakeProfit1,
		Confidence:  simulator.Confidence(pf.Confidence),
	}

	exec := simulator.Simulate(plan, cf.Candles, pipScale)

	out, err := json.MarshalIndent(map[string]any{"pair": pair, "execution": exec}, "", "  ")
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
}
