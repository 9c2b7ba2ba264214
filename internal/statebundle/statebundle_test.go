package statebundle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreRestoreMissingReturnsFalseNotError(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	_, ok, err := s.Restore(context.Background(), "2025-10-27")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalStorePublishRestoreRoundTrip(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	plan, _ := json.Marshal(map[string]string{"bias": "bullish"})
	b := Bundle{RunID: NewRunID(), Date: "2025-10-27", Kind: "daily", Plan: plan}

	require.NoError(t, s.Publish(context.Background(), b))

	got, ok, err := s.Restore(context.Background(), "2025-10-27")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.RunID, got.RunID)
	require.JSONEq(t, string(plan), string(got.Plan))
}

func TestNewRunIDIsUniqueEachCall(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	require.NotEqual(t, a, b)
}
