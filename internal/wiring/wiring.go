// Package wiring builds the cycle.Daily/cycle.Weekly component graphs that
// cmd/ace-daily, cmd/ace-weekly, and cmd/ace-scheduler each need, so the
// three entrypoints assemble the same components the same way instead of
// drifting apart in three copies of the same wiring.
package wiring

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/curator"
	"github.com/ace-loop/trading-ace/internal/ace/cycle"
	"github.com/ace-loop/trading-ace/internal/ace/executor"
	"github.com/ace-loop/trading-ace/internal/ace/generator"
	"github.com/ace-loop/trading-ace/internal/ace/jsondecode"
	"github.com/ace-loop/trading-ace/internal/ace/llmclient"
	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
	"github.com/ace-loop/trading-ace/internal/config"
	"github.com/ace-loop/trading-ace/internal/marketdata"
	"github.com/ace-loop/trading-ace/internal/notify"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/ace-loop/trading-ace/internal/statebundle"
)

// NewBundleStore picks an S3-backed store when configured, falling back to
// local disk both when S3 is unconfigured and when the S3 client itself
// fails to build.
func NewBundleStore(cfg config.Root) statebundle.Store {
	if cfg.Bundle.S3Bucket == "" {
		return statebundle.NewLocalStore(cfg.Paths.DataDir + "/bundles")
	}
	store, err := statebundle.NewS3Store(context.Background(), cfg.Bundle.S3Bucket, cfg.Bundle.S3Prefix)
	if err != nil {
		observ.Log("wiring.s3_unavailable_falling_back", map[string]any{"error": err.Error()})
		return statebundle.NewLocalStore(cfg.Paths.DataDir + "/bundles")
	}
	return store
}

// ArtifactSummaryPath is where artifact_summary.json lives: a sibling of
// SessionDir and ReflectionsDir, not nested under either.
func ArtifactSummaryPath(cfg config.Root) string {
	return filepath.Join(filepath.Dir(cfg.Paths.SessionDir), "artifact_summary.json")
}

func llmConfig(cfg config.Root, temperature float64) llmclient.Config {
	return llmclient.Config{
		Temperature:     temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		SafetyPosture:   llmclient.SafetyPosture(cfg.LLM.SafetyPosture),
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}
}

// BuildDaily assembles the daily cycle: Generator, market data provider,
// and the shared bundle/notifier collaborators.
func BuildDaily(cfg config.Root, bundles statebundle.Store, notifier *notify.Notifier) *cycle.Daily {
	llm := llmclient.New(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.Model)
	decoder := jsondecode.New(cfg.Paths.SessionDir)
	gen := generator.New(llm, decoder, llmConfig(cfg, cfg.LLM.TemperatureGenerator))

	market := marketdata.New(marketdata.Config{
		APIKey:             cfg.Market.AlphaVantageKey,
		Pair:               cfg.Market.Pair,
		RateLimitPerMinute: cfg.Market.RateLimitPerMin,
		ATRPeriodDays:      cfg.Market.ATRPeriodDays,
		RedisAddr:          cfg.Market.RedisAddr,
	}, marketdata.NewCache(cfg.Market.RedisAddr))

	return &cycle.Daily{
		Playbook:            playbook.NewStore(cfg.Paths.DataDir),
		Generator:           gen,
		Market:              market,
		Bundles:             bundles,
		Notifier:            notifier,
		SessionDir:          cfg.Paths.SessionDir,
		ReflectionsDir:      cfg.Paths.ReflectionsDir,
		ArtifactSummaryPath: ArtifactSummaryPath(cfg),
		Pair:                cfg.Market.Pair,
		PipScales:           cfg.Market.PipScales,
		OpenUTC:             cfg.Session.OpenUTC,
		DurationHr:          cfg.Session.DurationHours,
		IntervalMn:          cfg.Session.CandleIntervalMinutes,
	}
}

// BuildWeekly assembles the weekly cycle: Reflector, Curator config, and a
// reference to daily so Weekly.Run can perform its leading daily run for
// the current day before gathering the week's trade logs.
func BuildWeekly(cfg config.Root, bundles statebundle.Store, notifier *notify.Notifier, daily *cycle.Daily) *cycle.Weekly {
	llm := llmclient.New(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.Model)
	decoder := jsondecode.New(cfg.Paths.SessionDir)
	ref := reflector.New(llm, decoder, llmConfig(cfg, cfg.LLM.TemperatureReflector))

	return &cycle.Weekly{
		Playbook:            playbook.NewStore(cfg.Paths.DataDir),
		Reflector:           ref,
		Curator:             curator.Config{PruneHarmfulMinusHelpful: cfg.Curator.PruneHarmfulMinusHelpful, PruneHarmfulMinimum: cfg.Curator.PruneHarmfulMinimum},
		Bundles:             bundles,
		Notifier:            notifier,
		SessionDir:          cfg.Paths.SessionDir,
		ReflectionsDir:      cfg.Paths.ReflectionsDir,
		ArtifactSummaryPath: ArtifactSummaryPath(cfg),
		Daily:               daily,
		GatherLogs: func(start, end time.Time) []executor.TradeLog {
			return GatherWeekLogs(bundles, start, end)
		},
	}
}

// GatherWeekLogs reads back each day's published bundle in [start, end] and
// collects the ones carrying a trade log.
func GatherWeekLogs(store statebundle.Store, start, end time.Time) []executor.TradeLog {
	var logs []executor.TradeLog
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		b, ok, err := store.Restore(context.Background(), d.Format("2006-01-02"))
		if err != nil || !ok || len(b.TradeLog) == 0 {
			continue
		}
		var tl executor.TradeLog
		if json.Unmarshal(b.TradeLog, &tl) == nil {
			logs = append(logs, tl)
		}
	}
	return logs
}
