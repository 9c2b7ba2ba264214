// Package llmclient adapts a text-generation backend into the single-call
// contract the Generator and Reflector roles depend on, normalizing safety
// blocks and transport failures into first-class results rather than
// provider-specific error shapes.
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/aceerr"
	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// SafetyPosture maps a safety category to a threshold name (e.g. block_none,
// block_only_high, block_medium_and_above). AnthropicClient does not send it
// to the backend.
type SafetyPosture map[string]string

// Config carries per-call decoding parameters.
type Config struct {
	Temperature     float64
	MaxOutputTokens int
	SafetyPosture   SafetyPosture
	Timeout         time.Duration
}

// Result is the normalized outcome of a single generate call.
type Result struct {
	Text          string
	FinishReason  string
	SafetySignals map[string]string
	Blocked       bool
}

// Client is the contract every ACE role depends on.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, cfg Config) (Result, error)
}

// Option configures an AnthropicClient.
type Option func(*AnthropicClient)

// WithHTTPTimeout overrides the client-wide request timeout used when a
// call's Config.Timeout is zero.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *AnthropicClient) { c.defaultTimeout = d }
}

// AnthropicClient backs Client with github.com/anthropics/anthropic-sdk-go,
// guarded by a circuit breaker and post-block cooldown so a misbehaving
// backend degrades the loop instead of hammering it.
type AnthropicClient struct {
	model          string
	sdk            *anthropic.Client
	breaker        *CircuitBreaker
	cooldown       *Cooldown
	defaultTimeout time.Duration
}

// New builds an AnthropicClient. An empty apiKey is valid: the client still
// implements Client, but every call returns aceerr.ErrUpstreamUnavailable,
// which is exactly the degraded behavior the rest of the loop expects when
// no credential is configured (local demo runs, most tests).
func New(apiKey, model string, opts ...Option) *AnthropicClient {
	c := &AnthropicClient{
		model:          model,
		breaker:        NewCircuitBreaker(3, 2*time.Minute),
		cooldown:       NewCooldown(30 * time.Second),
		defaultTimeout: 60 * time.Second,
	}
	if apiKey != "" {
		sdk := anthropic.NewClient(option.WithAPIKey(apiKey))
		c.sdk = sdk
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnthropicClient) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg Config) (Result, error) {
	if c.sdk == nil {
		observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "no_credential"})
		return Result{}, fmt.Errorf("%w: no api key configured", aceerr.ErrUpstreamUnavailable)
	}
	if !c.breaker.Allow() {
		observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "circuit_open"})
		return Result{}, fmt.Errorf("%w: circuit breaker open", aceerr.ErrUpstreamUnavailable)
	}
	if remaining, cooling := c.cooldown.Remaining(); cooling {
		observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "cooldown"})
		return Result{}, fmt.Errorf("%w: cooling down for %s after last block", aceerr.ErrResponseBlocked, remaining)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = c.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := int64(cfg.MaxOutputTokens)
	if maxTokens == 0 {
		maxTokens = 2048
	}

	msg, err := c.sdk.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(c.model)),
		MaxTokens: anthropic.F(maxTokens),
		System:    anthropic.F([]anthropic.TextBlockParam{{Type: anthropic.F(anthropic.TextBlockParamTypeText), Text: anthropic.F(systemPrompt)}}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		}),
		Temperature: anthropic.F(cfg.Temperature),
	})
	if err != nil {
		c.breaker.RecordFailure()
		observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "transport_error"})
		return Result{}, fmt.Errorf("%w: %v", aceerr.ErrUpstreamUnavailable, err)
	}
	c.breaker.RecordSuccess()

	if len(msg.Content) == 0 {
		c.cooldown.Trigger()
		observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "blocked"})
		return Result{
			Blocked:      true,
			FinishReason: string(msg.StopReason),
		}, fmt.Errorf("%w: finish_reason=%s", aceerr.ErrResponseBlocked, msg.StopReason)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "empty"})
		return Result{FinishReason: string(msg.StopReason)}, fmt.Errorf("%w", aceerr.ErrEmptyResponse)
	}

	observ.IncCounter("ace_llm_calls_total", map[string]string{"outcome": "ok"})
	return Result{
		Text:         text,
		FinishReason: string(msg.StopReason),
	}, nil
}
