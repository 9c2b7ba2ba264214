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
	"github.com/ace-loop/trading-ace/internal/ace/curator"
	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/ace-loop/trading-ace/internal/statebundle"
)

// Weekly wires the components a weekly reflect-and-curate cycle needs. If
// Daily is set, Run first runs that day's cycle for window.End (a no-op if
// already published for that date, per Daily.Run's own bundle check) before
// gathering the week's trade logs via GatherLogs — so the reflected week
// always includes the current day's session.
type Weekly struct {
	Playbook            *playbook.Store
	Reflector           *reflector.Reflector
	Curator             curator.Config
	Bundles             statebundle.Store
	Notifier            *notify.Notifier
	SessionDir          string
	ReflectionsDir      string
	ArtifactSummaryPath string
	Daily               *Daily
	GatherLogs          func(start, end time.Time) []executor.TradeLog
}

// Run first runs the leading daily cycle for window.End (if w.Daily is
// set), then reflects over logs spanning window, applies the resulting
// insights to the Playbook via the Curator, saves, and publishes a weekly
// bundle.
func (w *Weekly) Run(ctx context.Context, window reflector.Window, weekLabel string) (reflector.Report, error) {
	if w.Daily != nil {
		snapshot := generator.MarketSnapshot{Pair: w.Daily.Pair, CurrentTimeUTC: time.Now().UTC()}
		if _, err := w.Daily.Run(ctx, window.End, snapshot); err != nil {
			observ.Log("cycle.weekly_leading_daily_failed", map[string]any{"error": err.Error(), "date": window.End})
		}
	}

	var logs []executor.TradeLog
	if w.GatherLogs != nil {
		start, errStart := time.Parse("2006-01-02", window.Start)
		end, errEnd := time.Parse("2006-01-02", window.End)
		if errStart == nil && errEnd == nil {
			logs = w.GatherLogs(start, end)
		}
	}

	pb, err := w.Playbook.Load()
	if err != nil {
		if !errors.Is(err, aceerr.ErrCorruptState) || pb == nil {
			return reflector.Report{}, fmt.Errorf("cycle: load playbook: %w", err)
		}
		// A corrupt Playbook was quarantined and Load returned a fresh seed.
		observ.Log("cycle.playbook_reseeded", map[string]any{"error": err.Error()})
	}

	report := w.Reflector.Reflect(ctx, window, logs)
	w.writeReflection(weekLabel, report)

	if report.Error != "" {
		observ.Log("cycle.weekly_reflection_degraded", map[string]any{"error": report.Error, "week": weekLabel})
		w.Notifier.Send(notify.Event{Kind: "reflection_degraded", Date: window.End, Summary: report.Error})
		writeArtifactSummary(pb, w.SessionDir, w.ReflectionsDir, w.ArtifactSummaryPath)
		return report, nil
	}

	next := curator.Apply(pb, report, w.Curator, time.Now().UTC())
	if err := w.Playbook.Save(next); err != nil {
		return report, fmt.Errorf("cycle: save playbook: %w", err)
	}

	pbJSON, _ := json.Marshal(next)
	reportJSON, _ := json.Marshal(report)
	// The weekly bundle is keyed by weekLabel, not window.End, so it never
	// replaces the daily bundle published for window.End.
	bundle := statebundle.Bundle{
		RunID:       statebundle.NewRunID(),
		Date:        weekLabel,
		Kind:        "weekly",
		PublishedAt: time.Now().UTC(),
		Playbook:    pbJSON,
		TradeLog:    reportJSON,
	}
	if err := w.Bundles.Publish(ctx, bundle); err != nil {
		return report, fmt.Errorf("cycle: publish bundle: %w: %w", aceerr.ErrPublishFailed, err)
	}

	w.Notifier.Send(notify.Event{
		Kind:    "playbook_updated",
		Date:    window.End,
		Summary: fmt.Sprintf("v%s: %d insights applied", next.Metadata.Version, len(report.Insights)),
	})
	writeArtifactSummary(next, w.SessionDir, w.ReflectionsDir, w.ArtifactSummaryPath)
	return report, nil
}

func (w *Weekly) writeReflection(weekLabel string, report reflector.Report) {
	dir := w.ReflectionsDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		observ.Log("cycle.reflection_dir_failed", map[string]any{"error": err.Error()})
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		observ.Log("cycle.reflection_marshal_failed", map[string]any{"error": err.Error()})
		return
	}
	name := fmt.Sprintf("%s_reflection.json", weekLabel)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		observ.Log("cycle.reflection_write_failed", map[string]any{"error": err.Error()})
	}
}

// WeekLabel formats a date into the "{YYYY}_W{WW}" filename component used
// for weekly reflection artifacts.
func WeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d_W%02d", year, week)
}
