// Package curator implements the Curator role: applying a Reflector report
// to a Playbook deterministically. No LLM call happens here.
package curator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/playbook"
	"github.com/ace-loop/trading-ace/internal/ace/reflector"
	"github.com/ace-loop/trading-ace/internal/observ"
)

var priorityOrder = map[string]int{"high": 0, "medium": 1, "low": 2}

// Config holds the prune guard thresholds.
type Config struct {
	PruneHarmfulMinusHelpful int
	PruneHarmfulMinimum      int
}

// Apply folds report's insights into pb in priority order (high to low) and
// returns a new, version-bumped Playbook. The caller is responsible for
// persisting it via playbook.Store.Save, which snapshots the prior version.
func Apply(pb *playbook.Playbook, report reflector.Report, cfg Config, now time.Time) *playbook.Playbook {
	next := deepCopy(pb)

	insights := append([]reflector.Insight(nil), report.Insights...)
	sortByPriority(insights)

	var pruneCandidates []string
	for _, insight := range insights {
		switch insight.SuggestedAction {
		case "add_entry":
			addEntry(next, insight, now)
		case "increment_helpful":
			bump(next, insight.TargetEntryID, "helpful")
		case "increment_harmful":
			bump(next, insight.TargetEntryID, "harmful")
		case "prune":
			pruneCandidates = append(pruneCandidates, insight.TargetEntryID)
		default:
			observ.Log("curator.unknown_action", map[string]any{"action": insight.SuggestedAction})
		}
	}

	pruned := pruneEligible(next, cfg, pruneCandidates)

	next.Metadata.Version = bumpVersion(pb.Metadata.Version)
	next.Metadata.LastUpdated = now
	next.Metadata.TotalEntries = next.TotalEntries()

	observ.IncCounter("ace_curator_actions_total", map[string]string{"action": "apply"})
	observ.Log("curator.applied", map[string]any{
		"from_version": pb.Metadata.Version,
		"to_version":   next.Metadata.Version,
		"pruned":       pruned,
	})
	return next
}

func sortByPriority(insights []reflector.Insight) {
	// insertion sort: report insight counts are small and this keeps ties in
	// their original (evidence) order, unlike sort.Slice's unstable swaps.
	for i := 1; i < len(insights); i++ {
		for j := i; j > 0 && priorityOrder[insights[j].Priority] < priorityOrder[insights[j-1].Priority]; j-- {
			insights[j], insights[j-1] = insights[j-1], insights[j]
		}
	}
}

func deepCopy(pb *playbook.Playbook) *playbook.Playbook {
	out := &playbook.Playbook{
		Metadata: pb.Metadata,
		Sections: map[string][]*playbook.Entry{},
	}
	for section, entries := range pb.Sections {
		copied := make([]*playbook.Entry, len(entries))
		for i, e := range entries {
			ce := *e
			copied[i] = &ce
		}
		out.Sections[section] = copied
	}
	return out
}

func addEntry(pb *playbook.Playbook, insight reflector.Insight, now time.Time) {
	if insight.ProposedContent == "" || insight.TargetSection == "" {
		observ.Log("curator.add_entry_missing_fields", map[string]any{"insight": insight.Description})
		return
	}
	for _, e := range pb.Sections[insight.TargetSection] {
		if e.Content == insight.ProposedContent {
			observ.Log("curator.add_entry_duplicate", map[string]any{"content": insight.ProposedContent})
			return
		}
	}
	entry := &playbook.Entry{
		ID:        playbook.GenerateEntryID(pb, insight.TargetSection, now),
		Content:   insight.ProposedContent,
		CreatedAt: now,
	}
	pb.Sections[insight.TargetSection] = append(pb.Sections[insight.TargetSection], entry)
	observ.IncCounter("ace_curator_actions_total", map[string]string{"action": "add_entry"})
}

func bump(pb *playbook.Playbook, entryID, kind string) {
	e, _, ok := pb.FindEntry(entryID)
	if !ok {
		observ.Log("curator.bump_unknown_entry", map[string]any{"entry_id": entryID})
		return
	}
	switch kind {
	case "helpful":
		e.HelpfulCount++
	case "harmful":
		e.HarmfulCount++
	}
	observ.IncCounter("ace_curator_actions_total", map[string]string{"action": "increment_" + kind})
}

// pruneEligible removes only entries the report explicitly proposed to
// prune, and only when their harmful/helpful counters cross the configured
// guard: harmful_count >= helpful_count + minusHelpful AND harmful_count >=
// minimum, guarding against premature deletion from a single bad trade.
func pruneEligible(pb *playbook.Playbook, cfg Config, candidates []string) []string {
	candidateSet := map[string]bool{}
	for _, id := range candidates {
		candidateSet[id] = true
	}
	if len(candidateSet) == 0 {
		return nil
	}

	var pruned []string
	for section, entries := range pb.Sections {
		kept := entries[:0]
		for _, e := range entries {
			if !candidateSet[e.ID] {
				kept = append(kept, e)
				continue
			}
			eligible := e.HarmfulCount >= e.HelpfulCount+cfg.PruneHarmfulMinusHelpful && e.HarmfulCount >= cfg.PruneHarmfulMinimum
			if !eligible {
				observ.Log("curator.prune_rejected", map[string]any{"entry_id": e.ID, "helpful": e.HelpfulCount, "harmful": e.HarmfulCount})
				kept = append(kept, e)
				continue
			}
			pruned = append(pruned, e.ID)
			observ.IncCounter("ace_curator_actions_total", map[string]string{"action": "prune"})
		}
		pb.Sections[section] = kept
	}
	return pruned
}

// bumpVersion increments the minor component of a dotted MAJOR.MINOR
// version string by one.
func bumpVersion(version string) string {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) != 2 {
		return version
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return version
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}
