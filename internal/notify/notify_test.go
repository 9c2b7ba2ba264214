package notify

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendNoWebhookIsNoOp(t *testing.T) {
	n := New(Config{})
	defer n.Close()
	n.Send(Event{Kind: "plan_generated", Date: "2025-10-27", Summary: "bullish"})
}

func TestSendDeliversAndDedupes(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, DedupeWindowSec: 60, MaxPerMinute: 10})
	defer n.Close()

	evt := Event{Kind: "plan_generated", Date: "2025-10-27", Summary: "bullish"}
	n.Send(evt)
	n.Send(evt) // deduped, should not add a second delivery

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSendRateLimitDropsExcess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, DedupeWindowSec: 1, MaxPerMinute: 1})
	defer n.Close()

	n.Send(Event{Kind: "a", Date: "d1", Summary: "s1"})
	n.Send(Event{Kind: "b", Date: "d2", Summary: "s2"})

	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, int(atomic.LoadInt32(&hits)), 1)
}
