// Package statebundle persists and restores a run's full artifact bundle
// (playbook snapshot, trading plan, trade log) so a crashed or restarted
// cycle can resume from the last published state instead of silently
// overwriting it.
package statebundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ace-loop/trading-ace/internal/observ"
	"github.com/google/uuid"
)

// Bundle is the atomic unit of state a cycle publishes and a later cycle
// restores from.
type Bundle struct {
	RunID       string          `json:"run_id"`
	Date        string          `json:"date"`
	Kind        string          `json:"kind"` // daily | weekly
	PublishedAt time.Time       `json:"published_at"`
	Playbook    json.RawMessage `json:"playbook"`
	Plan        json.RawMessage `json:"plan,omitempty"`
	TradeLog    json.RawMessage `json:"trade_log,omitempty"`
}

// Store publishes and restores Bundles keyed by Bundle.Date: the session date
// for daily bundles, the week label for weekly ones.
type Store interface {
	Publish(ctx context.Context, b Bundle) error
	Restore(ctx context.Context, date string) (Bundle, bool, error)
}

// NewRunID mints a fresh run identifier for a Bundle about to be published.
func NewRunID() string { return uuid.NewString() }

// LocalStore persists bundles to the local filesystem with an
// atomic write-to-temp-then-rename, so a crash mid-write never leaves a
// half-written bundle for Restore to trip over.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) path(date string) string {
	return filepath.Join(s.dir, fmt.Sprintf("bundle_%s.json", date))
}

func (s *LocalStore) Publish(_ context.Context, b Bundle) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("statebundle: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("statebundle: marshal: %w", err)
	}
	target := s.path(b.Date)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("statebundle: write temp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("statebundle: rename: %w", err)
	}
	observ.Log("statebundle.published", map[string]any{"date": b.Date, "run_id": b.RunID, "backend": "local"})
	return nil
}

func (s *LocalStore) Restore(_ context.Context, date string) (Bundle, bool, error) {
	data, err := os.ReadFile(s.path(date))
	if os.IsNotExist(err) {
		return Bundle{}, false, nil
	}
	if err != nil {
		return Bundle{}, false, fmt.Errorf("statebundle: read: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, false, fmt.Errorf("statebundle: decode: %w", err)
	}
	observ.Log("statebundle.restored", map[string]any{"date": date, "run_id": b.RunID, "backend": "local"})
	return b, true, nil
}
