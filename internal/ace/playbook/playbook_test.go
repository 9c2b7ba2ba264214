package playbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeedHasThreeSections(t *testing.T) {
	p := Seed(time.Now().UTC())
	require.Len(t, p.Sections, 3)
	require.Equal(t, "1.0", p.Metadata.Version)
	require.Equal(t, p.TotalEntries(), p.Metadata.TotalEntries)
	require.GreaterOrEqual(t, p.Metadata.TotalEntries, 3)
	require.Empty(t, p.Validate())
}

func TestStoreLoadSeedsWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	p, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "1.0", p.Metadata.Version)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	p := Seed(time.Now().UTC())
	require.NoError(t, store.Save(p))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, p.Metadata.Version, loaded.Metadata.Version)
	require.Equal(t, p.Metadata.TotalEntries, loaded.Metadata.TotalEntries)
	require.Equal(t, len(p.Sections), len(loaded.Sections))
}

func TestStoreSaveSnapshotsPriorVersion(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	p := Seed(time.Now().UTC())
	require.NoError(t, store.Save(p))

	p.Metadata.Version = "1.1"
	require.NoError(t, store.Save(p))

	snapshot := filepath.Join(dir, "history", "playbook_v1.0.json")
	_, err := os.Stat(snapshot)
	require.NoError(t, err, "expected history snapshot for version 1.0")
}

func TestStoreLoadQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playbook.json"), []byte("{not json"), 0o644))

	store := NewStore(dir)
	p, err := store.Load()
	require.Error(t, err)
	require.NotNil(t, p)
	require.Equal(t, "1.0", p.Metadata.Version)

	_, statErr := os.Stat(filepath.Join(dir, "playbook.json.corrupt"))
	require.NoError(t, statErr)
}

func TestFindEntry(t *testing.T) {
	p := Seed(time.Now().UTC())
	e, section, ok := p.FindEntry("strat-001")
	require.True(t, ok)
	require.Equal(t, SectionStrategies, section)
	require.Contains(t, e.Content, "NY session")

	_, _, ok = p.FindEntry("does-not-exist")
	require.False(t, ok)
}

func TestGenerateEntryIDIsPrefixedAndUnique(t *testing.T) {
	t1 := time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 10, 29, 12, 0, 1, 0, time.UTC)
	pb := &Playbook{Sections: map[string][]*Entry{}}
	id1 := GenerateEntryID(pb, SectionStrategies, t1)
	id2 := GenerateEntryID(pb, SectionStrategies, t2)
	require.NotEqual(t, id1, id2)
	require.Contains(t, id1, "stra-")
}

func TestGenerateEntryIDDisambiguatesSameSecondCollision(t *testing.T) {
	now := time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)
	pb := &Playbook{Sections: map[string][]*Entry{}}

	id1 := GenerateEntryID(pb, SectionStrategies, now)
	pb.Sections[SectionStrategies] = append(pb.Sections[SectionStrategies], &Entry{ID: id1})

	id2 := GenerateEntryID(pb, SectionStrategies, now)
	require.NotEqual(t, id1, id2, "a second insight for the same section in the same second must get a distinct id")

	pb.Sections[SectionStrategies] = append(pb.Sections[SectionStrategies], &Entry{ID: id2})
	id3 := GenerateEntryID(pb, SectionStrategies, now)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}
