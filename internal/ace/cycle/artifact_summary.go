package cycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/observ"
)

// artifactSummary is the top-level index of everything a bundle's on-disk
// tree contains, written next to trading_session/ and weekly_reflections/.
type artifactSummary struct {
	Playbook          artifactPlaybookSummary `json:"playbook"`
	TradingSessions   []string                `json:"trading_sessions"`
	WeeklyReflections []string                `json:"weekly_reflections"`
}

type artifactPlaybookSummary struct {
	Version      string    `json:"version"`
	TotalEntries int       `json:"total_entries"`
	LastUpdated  time.Time `json:"last_updated"`
}

// writeArtifactSummary scans sessionDir for per-day session directories and
// reflectionsDir for reflection files, and writes the combined index to
// path. Called at the end of both the daily and weekly cycles so the index
// always reflects the latest state. A no-op if path is empty.
func writeArtifactSummary(pb *playbook.Playbook, sessionDir, reflectionsDir, path string) {
	if path == "" {
		return
	}
	summary := artifactSummary{
		Playbook: artifactPlaybookSummary{
			Version:      pb.Metadata.Version,
			TotalEntries: pb.Metadata.TotalEntries,
			LastUpdated:  pb.Metadata.LastUpdated,
		},
		TradingSessions:   listDirNames(sessionDir),
		WeeklyReflections: listFileNames(reflectionsDir),
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		observ.Log("cycle.artifact_summary_marshal_failed", map[string]any{"error": err.Error()})
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			observ.Log("cycle.artifact_summary_dir_failed", map[string]any{"error": err.Error()})
			return
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		observ.Log("cycle.artifact_summary_write_failed", map[string]any{"error": err.Error()})
	}
}

func listDirNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func listFileNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
