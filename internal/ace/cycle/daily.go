// Package cycle wires the Generator, Executor, Reflector, and Curator roles
// together into the daily and weekly orchestrations, restoring and
// publishing a StateBundle around each run.
package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/aceerr"
	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/simulator"
	"github.com/ace-loop/trading-ace/internal/marketdata"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/ace-loop/trading-ace/internal/statebundle"
)

// Daily wires the per-session components a single day's cycle needs.
type Daily struct {
	Playbook            *playbook.Store
	Generator           *generator.Generator
	Market              *marketdata.Provider
	Bundles             statebundle.Store
	Notifier            *notify.Notifier
	SessionDir          string
	ReflectionsDir      string
	ArtifactSummaryPath string
	Pair                string
	PipScales           map[string]float64
	OpenUTC             string
	DurationHr          int
	IntervalMn          int
}

// Result is what a daily run produced, returned for the weekly cycle and
// for cmd/ace-daily to report.
type Result struct {
	Plan     generator.TradingPlan
	TradeLog executor.TradeLog
	Skipped  bool
}

// Run executes one full daily cycle for date (format "2006-01-02"): restore
// any prior bundle for the day, load the Playbook, generate a plan, notify,
// fetch session candles, execute, apply the delta, save the Playbook, and
// publish a fresh bundle. It never returns an error for a degraded plan or a
// corrupt Playbook (Load quarantines it and the cycle runs on the fresh
// seed). It aborts with an error only when the Playbook cannot be read or
// saved, or when publishing the bundle fails (wrapping
// aceerr.ErrPublishFailed).
func (d *Daily) Run(ctx context.Context, date string, snapshot generator.MarketSnapshot) (Result, error) {
	if existing, ok, err := d.Bundles.Restore(ctx, date); err == nil && ok {
		observ.Log("cycle.daily_already_published", map[string]any{"date": date, "run_id": existing.RunID})
		var res Result
		if len(existing.Plan) > 0 {
			_ = json.Unmarshal(existing.Plan, &res.Plan)
		}
		if len(existing.TradeLog) > 0 {
			_ = json.Unmarshal(existing.TradeLog, &res.TradeLog)
		}
		res.Skipped = true
		return res, nil
	}

	pb, err := d.Playbook.Load()
	if err != nil {
		if !errors.Is(err, aceerr.ErrCorruptState) || pb == nil {
			observ.Log("cycle.playbook_load_failed", map[string]any{"error": err.Error()})
			return Result{}, fmt.Errorf("cycle: load playbook: %w", err)
		}
		// A corrupt Playbook was quarantined and Load returned a fresh seed.
		observ.Log("cycle.playbook_reseeded", map[string]any{"error": err.Error(), "date": date})
	}

	pipScale := marketdata.PipScale(d.Pair, d.PipScales)
	if atrPips, err := d.Market.FetchATRDailyPips(ctx, pipScale); err != nil {
		observ.Log("cycle.atr_fetch_failed", map[string]any{"error": err.Error(), "date": date})
	} else if atrPips > 0 {
		if snapshot.Volatility == nil {
			snapshot.Volatility = map[string]float64{}
		}
		snapshot.Volatility["atr_daily_pips"] = atrPips
	}

	plan := d.Generator.Generate(ctx, date, pb, snapshot)
	d.writeSessionArtifact(date, "trading_plan.json", plan)

	if plan.Bias == "neutral" && plan.Error != "" {
		d.Notifier.Send(notify.Event{Kind: "plan_degraded", Date: date, Summary: plan.Error, Timestamp: time.Now().UTC()})
	} else {
		d.Notifier.Send(notify.Event{Kind: "plan_generated", Date: date, Summary: fmt.Sprintf("%s (%s confidence)", plan.Bias, plan.Confidence), Timestamp: time.Now().UTC()})
	}

	candles, err := d.Market.FetchSessionCandles(ctx, date, d.OpenUTC, d.DurationHr, d.IntervalMn)
	if err != nil {
		observ.Log("cycle.candle_fetch_failed", map[string]any{"error": err.Error(), "date": date})
	}

	tradeLog, delta := executor.Execute(plan, candles, pb, pipScale, time.Now().UTC())
	d.writeSessionArtifact(date, "trade_log.json", tradeLog)

	applyDelta(pb, delta, tradeLog)
	if err := d.Playbook.Save(pb); err != nil {
		observ.Log("cycle.playbook_save_failed", map[string]any{"error": err.Error()})
		return Result{}, fmt.Errorf("cycle: save playbook: %w", err)
	}

	if tradeLog.Execution.Outcome != simulator.OutcomeNoEntry {
		d.Notifier.Send(notify.Event{
			Kind:    "trade_closed",
			Date:    date,
			Summary: fmt.Sprintf("%s: %.1f pips", tradeLog.Execution.Outcome, tradeLog.Execution.PnLPips),
		})
	}

	planJSON, _ := json.Marshal(plan)
	logJSON, _ := json.Marshal(tradeLog)
	pbJSON, _ := json.Marshal(pb)
	bundle := statebundle.Bundle{
		RunID:       statebundle.NewRunID(),
		Date:        date,
		Kind:        "daily",
		PublishedAt: time.Now().UTC(),
		Playbook:    pbJSON,
		Plan:        planJSON,
		TradeLog:    logJSON,
	}
	if err := d.Bundles.Publish(ctx, bundle); err != nil {
		observ.Log("cycle.publish_failed", map[string]any{"error": err.Error(), "date": date})
		return Result{}, fmt.Errorf("cycle: publish bundle: %w: %w", aceerr.ErrPublishFailed, err)
	}

	writeArtifactSummary(pb, d.SessionDir, d.ReflectionsDir, d.ArtifactSummaryPath)
	return Result{Plan: plan, TradeLog: tradeLog}, nil
}

// applyDelta folds an executor.Delta's LastUsed timestamps back into pb,
// so a Playbook entry cited by today's plan shows freshness even before the
// weekly Reflector runs.
func applyDelta(pb *playbook.Playbook, delta executor.Delta, log executor.TradeLog) {
	for id, ts := range delta.LastUsed {
		e, _, ok := pb.FindEntry(id)
		if !ok {
			continue
		}
		tsCopy := ts
		e.LastUsed = &tsCopy
	}
}

func (d *Daily) sessionDir(date string) string {
	return filepath.Join(d.SessionDir, dateDirName(date))
}

func dateDirName(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("2006_01_02")
}

func (d *Daily) writeSessionArtifact(date, name string, v any) {
	dir := d.sessionDir(date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		observ.Log("cycle.artifact_dir_failed", map[string]any{"error": err.Error()})
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		observ.Log("cycle.artifact_marshal_failed", map[string]any{"error": err.Error(), "name": name})
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		observ.Log("cycle.artifact_write_failed", map[string]any{"error": err.Error(), "name": name})
	}
}

