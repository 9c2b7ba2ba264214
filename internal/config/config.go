package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Session describes the trading session window a day's price replay covers.
type Session struct {
	OpenUTC               string `yaml:"open_utc" validate:"required"`
	DurationHours         int    `yaml:"duration_hours" validate:"gt=0"`
	CandleIntervalMinutes int    `yaml:"candle_interval_minutes" validate:"gt=0"`
}

// LLM configures the Generator/Reflector model calls.
type LLM struct {
	Model                 string            `yaml:"model" validate:"required"`
	TemperatureGenerator  float64           `yaml:"temperature_generator" validate:"gte=0,lte=1"`
	TemperatureReflector  float64           `yaml:"temperature_reflector" validate:"gte=0,lte=1"`
	MaxOutputTokens       int               `yaml:"max_output_tokens" validate:"gt=0"`
	TimeoutSeconds        int               `yaml:"timeout_seconds" validate:"gt=0"`
	SafetyPosture         map[string]string `yaml:"safety_posture"`
}

// Curator configures the pruning guard applied when folding a reflection into the Playbook.
type Curator struct {
	PruneHarmfulMinusHelpful int `yaml:"prune_harmful_minus_helpful"`
	PruneHarmfulMinimum      int `yaml:"prune_harmful_minimum"`
}

// Bundle configures cross-run state persistence.
type Bundle struct {
	RetentionDays int    `yaml:"retention_days" validate:"gt=0"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
}

// Paths locates the on-disk artifact tree relative to the process working directory.
type Paths struct {
	DataDir        string `yaml:"data_dir"`
	SessionDir     string `yaml:"session_dir"`
	ReflectionsDir string `yaml:"reflections_dir"`
}

// Market configures instrument-specific pip scaling and ATR lookback.
type Market struct {
	Pair              string             `yaml:"pair" validate:"required"`
	PipScales         map[string]float64 `yaml:"pip_scales"`
	RedisAddr         string             `yaml:"redis_addr"`
	AlphaVantageKey   string             `yaml:"alpha_vantage_key"`
	ATRPeriodDays     int                `yaml:"atr_period_days"`
	RateLimitPerMin   int                `yaml:"rate_limit_per_min"`
}

// Notify configures the best-effort Slack sink.
type Notify struct {
	WebhookURL      string `yaml:"webhook_url"`
	DedupeWindowSec int    `yaml:"dedupe_window_seconds"`
	MaxPerMinute    int    `yaml:"max_per_minute"`
}

type Root struct {
	Market  Market  `yaml:"market"`
	Session Session `yaml:"session" validate:"required"`
	LLM     LLM     `yaml:"llm" validate:"required"`
	Curator Curator `yaml:"curator"`
	Bundle  Bundle  `yaml:"bundle"`
	Paths   Paths   `yaml:"paths"`
	Notify  Notify  `yaml:"notify"`
}

var validate = validator.New()

// Load reads a YAML configuration file, fills in defaults for anything left at
// its zero value, and validates the result. A missing LLM API key is not a load
// error: components fall back to a degraded, credential-less mode at call time.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := validate.Struct(c); err != nil {
		return c, fmt.Errorf("config validation: %w", err)
	}
	return c, nil
}

func applyDefaults(c *Root) {
	if c.Market.Pair == "" {
		c.Market.Pair = "EURUSD"
	}
	if len(c.Market.PipScales) == 0 {
		c.Market.PipScales = map[string]float64{"EURUSD": 10000, "GBPUSD": 10000, "USDJPY": 100}
	}
	if c.Market.ATRPeriodDays == 0 {
		c.Market.ATRPeriodDays = 14
	}
	if c.Market.RateLimitPerMin == 0 {
		c.Market.RateLimitPerMin = 5
	}

	if c.Session.OpenUTC == "" {
		c.Session.OpenUTC = "13:00"
	}
	if c.Session.DurationHours == 0 {
		c.Session.DurationHours = 8
	}
	if c.Session.CandleIntervalMinutes == 0 {
		c.Session.CandleIntervalMinutes = 15
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-5"
	}
	if c.LLM.TemperatureGenerator == 0 {
		c.LLM.TemperatureGenerator = 0.4
	}
	if c.LLM.TemperatureReflector == 0 {
		c.LLM.TemperatureReflector = 0.3
	}
	if c.LLM.MaxOutputTokens == 0 {
		c.LLM.MaxOutputTokens = 2048
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.SafetyPosture == nil {
		c.LLM.SafetyPosture = map[string]string{
			"harassment":        "block_none",
			"hate_speech":       "block_none",
			"sexually_explicit": "block_none",
			"dangerous_content": "block_only_high",
		}
	}

	if c.Curator.PruneHarmfulMinusHelpful == 0 {
		c.Curator.PruneHarmfulMinusHelpful = 2
	}
	if c.Curator.PruneHarmfulMinimum == 0 {
		c.Curator.PruneHarmfulMinimum = 3
	}

	if c.Bundle.RetentionDays == 0 {
		c.Bundle.RetentionDays = 30
	}
	if c.Bundle.S3Prefix == "" {
		c.Bundle.S3Prefix = "ace-loop"
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.SessionDir == "" {
		c.Paths.SessionDir = "trading_session"
	}
	if c.Paths.ReflectionsDir == "" {
		c.Paths.ReflectionsDir = "weekly_reflections"
	}

	if c.Notify.DedupeWindowSec == 0 {
		c.Notify.DedupeWindowSec = 300
	}
	if c.Notify.MaxPerMinute == 0 {
		c.Notify.MaxPerMinute = 10
	}
}
