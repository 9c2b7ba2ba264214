package llmclient

import (
	"sync"
	"time"
)

// Cooldown enforces a quiet period after a safety-filter block, so a
// single flagged prompt does not immediately retry into the same filter.
type Cooldown struct {
	mu       sync.Mutex
	period   time.Duration
	until    time.Time
}

func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period}
}

func (c *Cooldown) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = time.Now().Add(c.period)
}

// Remaining reports the time left in an active cooldown, if any.
func (c *Cooldown) Remaining() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.until.IsZero() {
		return 0, false
	}
	remaining := time.Until(c.until)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}
