package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizePair(t *testing.T) {
	got, err := NormalizePair("eur/usd")
	require.NoError(t, err)
	require.Equal(t, "EURUSD", got)

	_, err = NormalizePair("eur")
	require.Error(t, err)
}

func TestPipScaleFallsBackToDefaultThenTenThousand(t *testing.T) {
	require.Equal(t, 100.0, PipScale("USDJPY", nil))
	require.Equal(t, 10000.0, PipScale("EURUSD", nil))
	require.Equal(t, 25.0, PipScale("XAUUSD", map[string]float64{"XAUUSD": 25}))
	require.Equal(t, 10000.0, PipScale("ZZZXXX", nil))
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	data, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), data)

	time.Sleep(20 * time.Millisecond)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "entry should have expired")
}

func TestFetchSessionCandlesNoCredentialReturnsEmptyNotError(t *testing.T) {
	p := New(Config{Pair: "EURUSD"}, NewMemoryCache())
	candles, err := p.FetchSessionCandles(context.Background(), "2025-10-27", "13:00", 8, 15)
	require.NoError(t, err)
	require.Nil(t, candles)
}

func TestHealthyDefaultsTrue(t *testing.T) {
	p := New(Config{Pair: "EURUSD"}, NewMemoryCache())
	require.True(t, p.Healthy())
}

func TestFetchATRDailyPipsNoCredentialReturnsZeroNotError(t *testing.T) {
	p := New(Config{Pair: "EURUSD"}, NewMemoryCache())
	pips, err := p.FetchATRDailyPips(context.Background(), 10000)
	require.NoError(t, err)
	require.Zero(t, pips)
}
