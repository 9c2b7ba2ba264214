// Package marketdata adapts a forex OHLC/quote provider into the snapshot
// and session-candle shapes the Generator and simulator consume, with an
// in-process cache backed optionally by Redis and rate-limited upstream
// fetches.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/simulator"
	"github.com/ace-loop/trading-ace/internal/observ"
	talib "github.com/markcheno/go-talib"
	"golang.org/x/time/rate"
)

// Config configures the provider's upstream, rate limiting, and caching.
type Config struct {
	APIKey             string
	Pair               string
	RateLimitPerMinute int
	CacheTTLSeconds    int
	TimeoutSeconds     int
	ATRPeriodDays      int
	RedisAddr          string
}

// Provider fetches OHLC candles and daily ATR for one currency pair.
type Provider struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	cache       Cache

	mu                sync.RWMutex
	consecutiveErrors int
	healthy           bool
}

// New builds a Provider. cache may be a *RedisCache or an in-process cache;
// see cache.go.
func New(cfg Config, cache Cache) *Provider {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 5
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = 60
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.ATRPeriodDays <= 0 {
		cfg.ATRPeriodDays = 14
	}
	return &Provider{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
		cache:       cache,
		healthy:     true,
	}
}

// dailyBar is one day of OHLC used for ATR computation.
type dailyBar struct {
	High, Low, Close float64
}

// FetchATRDailyPips computes the daily ATR for the configured pair using
// go-talib, scaled to pips via the caller-supplied pip scale. Like
// FetchSessionCandles, it returns (0, nil) rather than an error whenever
// there is no credential or the upstream fetch fails: a missing volatility
// reading degrades the Generator's snapshot rather than aborting the cycle.
func (p *Provider) FetchATRDailyPips(ctx context.Context, pipScale float64) (float64, error) {
	if p.cfg.APIKey == "" {
		return 0, nil
	}

	cacheKey := fmt.Sprintf("atr:%s", p.cfg.Pair)
	if p.cache != nil {
		if cached, ok, err := p.cache.Get(ctx, cacheKey); err == nil && ok {
			var v float64
			if json.Unmarshal(cached, &v) == nil {
				return v, nil
			}
		}
	}

	bars, err := p.fetchDailyBars(ctx, p.cfg.ATRPeriodDays+1)
	if err != nil {
		p.recordError()
		observ.Log("marketdata.atr_fetch_failed", map[string]any{"error": err.Error()})
		return 0, nil
	}
	if len(bars) < 2 {
		observ.Log("marketdata.atr_insufficient_bars", map[string]any{"bars": len(bars)})
		return 0, nil
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	atr := talib.Atr(highs, lows, closes, p.cfg.ATRPeriodDays)
	last := atr[len(atr)-1]
	pips := last * pipScale
	p.recordSuccess()

	if p.cache != nil {
		if data, err := json.Marshal(pips); err == nil {
			_ = p.cache.Set(ctx, cacheKey, data, time.Duration(p.cfg.CacheTTLSeconds)*time.Second)
		}
	}
	return pips, nil
}

// FetchSessionCandles retrieves the session's intraday OHLC candles for the
// given date, starting at openUTC and spanning durationHours at
// intervalMinutes granularity. Returns (nil, nil) rather than an error when
// upstream is unavailable, matching the simulator's fallback contract: an
// empty session, not a hard failure, is what triggers hash-based replay.
func (p *Provider) FetchSessionCandles(ctx context.Context, date, openUTC string, durationHours, intervalMinutes int) ([]simulator.Candle, error) {
	if p.cfg.APIKey == "" {
		observ.Log("marketdata.no_credential", map[string]any{"date": date})
		return nil, nil
	}
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("marketdata: rate limit wait: %w", err)
	}

	candles, err := p.fetchIntraday(ctx, date, openUTC, durationHours, intervalMinutes)
	if err != nil {
		p.recordError()
		observ.Log("marketdata.fetch_failed", map[string]any{"error": err.Error(), "date": date})
		return nil, nil
	}
	p.recordSuccess()
	return candles, nil
}

func (p *Provider) recordError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveErrors++
	if p.consecutiveErrors >= 3 {
		p.healthy = false
	}
}

func (p *Provider) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveErrors = 0
	p.healthy = true
}

// Healthy reports whether the provider's last few calls succeeded.
func (p *Provider) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) fetchDailyBars(ctx context.Context, n int) ([]dailyBar, error) {
	u := url.URL{
		Scheme: "https",
		Host:   "www.alphavantage.co",
		Path:   "/query",
	}
	q := u.Query()
	q.Set("function", "FX_DAILY")
	q.Set("from_symbol", p.cfg.Pair[:3])
	q.Set("to_symbol", p.cfg.Pair[3:])
	q.Set("apikey", p.cfg.APIKey)
	q.Set("outputsize", "compact")
	u.RawQuery = q.Encode()

	body, err := p.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Series map[string]map[string]string `json:"Time Series FX (Daily)"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("marketdata: decode daily series: %w", err)
	}

	dates := make([]string, 0, len(parsed.Series))
	for d := range parsed.Series {
		dates = append(dates, d)
	}
	sortDatesDesc(dates)
	if len(dates) > n {
		dates = dates[:n]
	}

	bars := make([]dailyBar, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		row := parsed.Series[dates[i]]
		high, _ := strconv.ParseFloat(row["2. high"], 64)
		low, _ := strconv.ParseFloat(row["3. low"], 64)
		close, _ := strconv.ParseFloat(row["4. close"], 64)
		bars = append(bars, dailyBar{High: high, Low: low, Close: close})
	}
	return bars, nil
}

func (p *Provider) fetchIntraday(ctx context.Context, date, openUTC string, durationHours, intervalMinutes int) ([]simulator.Candle, error) {
	u := url.URL{Scheme: "https", Host: "www.alphavantage.co", Path: "/query"}
	q := u.Query()
	q.Set("function", "FX_INTRADAY")
	q.Set("from_symbol", p.cfg.Pair[:3])
	q.Set("to_symbol", p.cfg.Pair[3:])
	q.Set("interval", fmt.Sprintf("%dmin", intervalMinutes))
	q.Set("apikey", p.cfg.APIKey)
	q.Set("outputsize", "full")
	u.RawQuery = q.Encode()

	body, err := p.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Series map[string]map[string]string `json:"Time Series FX"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("marketdata: decode intraday series: %w", err)
	}

	open, err := time.Parse("15:04", openUTC)
	if err != nil {
		return nil, fmt.Errorf("marketdata: bad session open %q: %w", openUTC, err)
	}
	dayStart, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("marketdata: bad date %q: %w", date, err)
	}
	sessionStart := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), open.Hour(), open.Minute(), 0, 0, time.UTC)
	sessionEnd := sessionStart.Add(time.Duration(durationHours) * time.Hour)

	var candles []simulator.Candle
	for ts, row := range parsed.Series {
		t, err := time.Parse("2006-01-02 15:04:05", ts)
		if err != nil {
			continue
		}
		if t.Before(sessionStart) || !t.Before(sessionEnd) {
			continue
		}
		o, _ := strconv.ParseFloat(row["1. open"], 64)
		h, _ := strconv.ParseFloat(row["2. high"], 64)
		l, _ := strconv.ParseFloat(row["3. low"], 64)
		c, _ := strconv.ParseFloat(row["4. close"], 64)
		candles = append(candles, simulator.Candle{OpenTime: t, Open: o, High: h, Low: l, Close: c})
	}
	sortCandlesAsc(candles)
	return candles, nil
}

func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: upstream status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func sortDatesDesc(dates []string) {
	for i := 1; i < len(dates); i++ {
		for j := i; j > 0 && strings.Compare(dates[j], dates[j-1]) > 0; j-- {
			dates[j], dates[j-1] = dates[j-1], dates[j]
		}
	}
}

func sortCandlesAsc(candles []simulator.Candle) {
	for i := 1; i < len(candles); i++ {
		for j := i; j > 0 && candles[j].OpenTime.Before(candles[j-1].OpenTime); j-- {
			candles[j], candles[j-1] = candles[j-1], candles[j]
		}
	}
}
