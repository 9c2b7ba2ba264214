// Package notify sends ACE-cycle events to a webhook, deduping repeats and
// bounding retries with a worker queue rather than blocking the cycle.
package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ace-loop/trading-ace/internal/observ"
)

// Event is one notifiable ACE-loop occurrence.
type Event struct {
	Kind      string    `json:"kind"` // plan_generated | plan_degraded | trade_closed | playbook_updated | reflection_degraded
	Date      string    `json:"date"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures dedupe window and rate limiting.
type Config struct {
	WebhookURL      string
	DedupeWindowSec int
	MaxPerMinute    int
}

type queuedEvent struct {
	evt       Event
	attempts  int
	nextRetry time.Time
	hash      string
}

// Notifier delivers Events to a webhook over a bounded, retrying queue.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	queue      chan queuedEvent

	mu          sync.Mutex
	dedupeCache map[string]time.Time
	sentAt      []time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Notifier and starts its background delivery worker. If
// cfg.WebhookURL is empty, Send is a no-op logger — useful for local runs.
func New(cfg Config) *Notifier {
	if cfg.DedupeWindowSec <= 0 {
		cfg.DedupeWindowSec = 300
	}
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		queue:       make(chan queuedEvent, 100),
		dedupeCache: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
	go n.worker()
	return n
}

// Close stops the delivery worker.
func (n *Notifier) Close() { n.cancel() }

// Send enqueues evt for delivery, deduping identical (kind, date, summary)
// events within the configured window and dropping when the per-minute rate
// limit is exceeded.
func (n *Notifier) Send(evt Event) {
	if n.cfg.WebhookURL == "" {
		observ.Log("notify.no_webhook_configured", map[string]any{"kind": evt.Kind, "summary": evt.Summary})
		return
	}

	hash := hashEvent(evt)
	n.mu.Lock()
	if last, ok := n.dedupeCache[hash]; ok && time.Since(last) < time.Duration(n.cfg.DedupeWindowSec)*time.Second {
		n.mu.Unlock()
		observ.IncCounter("ace_notify_deduped_total", nil)
		return
	}
	n.dedupeCache[hash] = time.Now()

	cutoff := time.Now().Add(-time.Minute)
	filtered := n.sentAt[:0]
	for _, t := range n.sentAt {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	n.sentAt = filtered
	if len(n.sentAt) >= n.cfg.MaxPerMinute {
		n.mu.Unlock()
		observ.IncCounter("ace_notify_rate_limited_total", nil)
		return
	}
	n.sentAt = append(n.sentAt, time.Now())
	n.mu.Unlock()

	select {
	case n.queue <- queuedEvent{evt: evt, nextRetry: time.Now(), hash: hash}:
	default:
		observ.Log("notify.queue_full_dropped", map[string]any{"kind": evt.Kind})
	}
}

func hashEvent(evt Event) string {
	data := fmt.Sprintf("%s:%s:%s", evt.Kind, evt.Date, evt.Summary)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)[:16]
}

func (n *Notifier) worker() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case qe := <-n.queue:
			if time.Now().Before(qe.nextRetry) {
				go func() {
					select {
					case <-time.After(time.Until(qe.nextRetry)):
						n.requeue(qe)
					case <-n.ctx.Done():
					}
				}()
				continue
			}
			if n.deliver(qe.evt) {
				observ.IncCounter("ace_notify_sent_total", map[string]string{"kind": qe.evt.Kind})
				continue
			}
			qe.attempts++
			if qe.attempts >= 3 {
				observ.IncCounter("ace_notify_failed_total", map[string]string{"kind": qe.evt.Kind})
				continue
			}
			backoff := time.Duration(math.Pow(2, float64(qe.attempts))) * time.Second
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			qe.nextRetry = time.Now().Add(backoff + jitter)
			n.requeue(qe)
		}
	}
}

func (n *Notifier) requeue(qe queuedEvent) {
	select {
	case n.queue <- qe:
	default:
		observ.Log("notify.queue_full_dropped", map[string]any{"kind": qe.evt.Kind})
	}
}

func (n *Notifier) deliver(evt Event) bool {
	body, err := json.Marshal(map[string]string{"text": fmt.Sprintf("[%s] %s: %s", evt.Kind, evt.Date, evt.Summary)})
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		observ.Log("notify.webhook_error", map[string]any{"error": err.Error()})
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
