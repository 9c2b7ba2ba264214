// Package playbook implements the versioned knowledge base the Generator reads
// and the Curator mutates.
package playbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/aceerr"
	"github.com/ace-loop/trading-ace/internal/observ"
)

const (
	SectionStrategies  = "strategies_and_hard_rules"
	SectionCodeAndTmpl = "useful_code_and_templates"
	SectionPitfalls    = "troubleshooting_and_pitfalls"
)

var knownSections = []string{SectionStrategies, SectionCodeAndTmpl, SectionPitfalls}

// Entry is a single actionable item in the Playbook.
type Entry struct {
	ID            string     `json:"id"`
	Content       string     `json:"content"`
	HelpfulCount  int        `json:"helpful_count"`
	HarmfulCount  int        `json:"harmful_count"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsed      *time.Time `json:"last_used"`
}

// Metadata carries the Playbook's versioning envelope.
type Metadata struct {
	Version      string    `json:"version"`
	LastUpdated  time.Time `json:"last_updated"`
	TotalEntries int       `json:"total_entries"`
}

// Playbook is the full versioned knowledge base.
type Playbook struct {
	Metadata Metadata            `json:"metadata"`
	Sections map[string][]*Entry `json:"sections"`
}

// TotalEntries recomputes the entry count across all sections.
func (p *Playbook) TotalEntries() int {
	n := 0
	for _, entries := range p.Sections {
		n += len(entries)
	}
	return n
}

// FindEntry locates an entry by ID across every section.
func (p *Playbook) FindEntry(id string) (*Entry, string, bool) {
	for section, entries := range p.Sections {
		for _, e := range entries {
			if e.ID == id {
				return e, section, true
			}
		}
	}
	return nil, "", false
}

// Validate checks I1 (unique IDs) and I2 (total_entries consistency).
func (p *Playbook) Validate() []string {
	var violations []string
	seen := map[string]bool{}
	for section, entries := range p.Sections {
		for _, e := range entries {
			if e.ID == "" {
				violations = append(violations, fmt.Sprintf("section %s has entry with empty id", section))
				continue
			}
			if seen[e.ID] {
				violations = append(violations, fmt.Sprintf("duplicate entry id %q", e.ID))
			}
			seen[e.ID] = true
		}
	}
	if p.Metadata.TotalEntries != p.TotalEntries() {
		violations = append(violations, fmt.Sprintf("metadata.total_entries=%d but sections contain %d entries", p.Metadata.TotalEntries, p.TotalEntries()))
	}
	return violations
}

// Seed builds the initial Playbook shipped on first run.
func Seed(now time.Time) *Playbook {
	p := &Playbook{
		Metadata: Metadata{Version: "1.0", LastUpdated: now},
		Sections: map[string][]*Entry{
			SectionStrategies:  {},
			SectionCodeAndTmpl: {},
			SectionPitfalls:    {},
		},
	}
	p.Sections[SectionStrategies] = append(p.Sections[SectionStrategies],
		&Entry{ID: "strat-001", Content: "Only trade during the NY session (9:30 AM - 4:00 PM EST).", CreatedAt: now},
		&Entry{ID: "strat-002", Content: "Avoid trading 30 minutes before or after high-impact news.", CreatedAt: now},
		&Entry{ID: "strat-003", Content: "Minimum risk-reward ratio: 1:1.5.", CreatedAt: now},
	)
	p.Sections[SectionCodeAndTmpl] = append(p.Sections[SectionCodeAndTmpl],
		&Entry{ID: "code-001", Content: "Position sizing: (account_balance * risk_pct) / (entry - stop).", CreatedAt: now},
	)
	p.Sections[SectionPitfalls] = append(p.Sections[SectionPitfalls],
		&Entry{ID: "pit-001", Content: "Low liquidity after 3:00 PM EST - avoid new entries.", CreatedAt: now},
	)
	p.Metadata.TotalEntries = p.TotalEntries()
	return p
}

// GenerateEntryID mirrors the source scheme: a 4-letter section prefix and a
// timestamp token, disambiguated against pb's existing IDs with a numeric
// suffix. A single report can carry several add_entry insights for the same
// section, all applied under the same now, so the timestamp token alone does
// not guarantee I1 (unique IDs) on insert; the collision check does.
func GenerateEntryID(pb *Playbook, section string, now time.Time) string {
	prefix := section
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	base := fmt.Sprintf("%s-%s", prefix, now.Format("20060102150405"))
	id := base
	for n := 2; ; n++ {
		if _, _, exists := pb.FindEntry(id); !exists {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Store persists a Playbook at a fixed path with atomic writes and immutable
// per-version history snapshots.
type Store struct {
	mu          sync.Mutex
	dataDir     string
	historyDir  string
}

// NewStore roots the store under dataDir (dataDir/playbook.json,
// dataDir/history/playbook_v{VERSION}.json).
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir:    dataDir,
		historyDir: filepath.Join(dataDir, "history"),
	}
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, "playbook.json")
}

// Load reads the current Playbook, seeding a fresh one if absent and
// quarantining a corrupt file rather than crashing the caller.
func (s *Store) Load() (*Playbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.historyDir, 0o755); err != nil {
		return nil, fmt.Errorf("playbook: ensure dirs: %w", err)
	}

	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		seed := Seed(time.Now().UTC())
		observ.Log("playbook.seeded", map[string]any{"version": seed.Metadata.Version})
		return seed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("playbook: read: %w", err)
	}

	var p Playbook
	if err := json.Unmarshal(data, &p); err != nil {
		return s.quarantineAndReseed(err)
	}
	if violations := p.Validate(); len(violations) > 0 {
		observ.Log("playbook.corrupt", map[string]any{"violations": violations})
		return s.quarantineAndReseed(fmt.Errorf("%d invariant violations", len(violations)))
	}
	observ.Log("playbook.load", map[string]any{"version": p.Metadata.Version, "total_entries": p.Metadata.TotalEntries})
	return &p, nil
}

func (s *Store) quarantineAndReseed(cause error) (*Playbook, error) {
	quarantinePath := s.path() + ".corrupt"
	if data, readErr := os.ReadFile(s.path()); readErr == nil {
		_ = os.WriteFile(quarantinePath, data, 0o644)
	}
	observ.Log("playbook.quarantined", map[string]any{"error": cause.Error(), "quarantine_path": quarantinePath})
	seed := Seed(time.Now().UTC())
	return seed, fmt.Errorf("%w: %v (quarantined, reseeded)", aceerr.ErrCorruptState, cause)
}

// Save atomically writes the Playbook and, when the version has changed since
// the last save, an immutable history snapshot.
func (s *Store) Save(p *Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Metadata.TotalEntries = p.TotalEntries()
	if violations := p.Validate(); len(violations) > 0 {
		return fmt.Errorf("playbook: refusing to save invalid playbook: %v", violations)
	}

	var prevVersion string
	var prevData []byte
	if data, err := os.ReadFile(s.path()); err == nil {
		var old Playbook
		if json.Unmarshal(data, &old) == nil {
			prevVersion = old.Metadata.Version
			prevData = data
		}
	}

	if err := os.MkdirAll(s.historyDir, 0o755); err != nil {
		return fmt.Errorf("playbook: ensure history dir: %w", err)
	}

	// Snapshot the version being replaced before overwriting it, so history
	// always holds the exact bytes that were current under that version.
	if prevVersion != "" && prevVersion != p.Metadata.Version {
		snapshotPath := filepath.Join(s.historyDir, fmt.Sprintf("playbook_v%s.json", prevVersion))
		if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
			if err := os.WriteFile(snapshotPath, prevData, 0o644); err != nil {
				return fmt.Errorf("playbook: snapshot history: %w", err)
			}
		}
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("playbook: marshal: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("playbook: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("playbook: rename: %w", err)
	}

	observ.Log("playbook.save", map[string]any{"version": p.Metadata.Version, "total_entries": p.Metadata.TotalEntries})
	observ.SetPlaybookGauge(p.Metadata.TotalEntries, p.Metadata.Version)
	return nil
}

// SnapshotHistory returns the sorted file names (playbook_v{version}.json)
// of the history snapshots on disk.
func (s *Store) SnapshotHistory() ([]string, error) {
	entries, err := os.ReadDir(s.historyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		versions = append(versions, e.Name())
	}
	sort.Strings(versions)
	return versions, nil
}
