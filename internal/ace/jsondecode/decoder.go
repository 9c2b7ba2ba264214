// Package jsondecode extracts a JSON object from arbitrary, possibly
// adversarial, LLM text: markdown fences, truncation, and trailing noise are
// all tolerated. It never panics on a malformed or empty input.
package jsondecode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/aceerr"
	"github.com/ace-loop/trading-ace/internal/observ"
)

// Decoder decodes model text into a JSON object, persisting the raw text to a
// per-day diagnostic sink whenever decoding fails.
type Decoder struct {
	SessionDir string
}

func New(sessionDir string) *Decoder {
	return &Decoder{SessionDir: sessionDir}
}

// Decode extracts and parses a JSON object out of text, returning it as a
// map[string]any. Callers that expect a specific schema should re-marshal the
// map and unmarshal into a typed struct, so a single decoder implementation
// serves every artifact type. date (format "2006-01-02") selects which
// session day's debug/ directory a failure is persisted under.
func (d *Decoder) Decode(stage, date, text string) (map[string]any, error) {
	observ.IncCounter("ace_decoder_calls_total", map[string]string{"stage": stage})

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		observ.IncCounter("ace_decoder_failures_total", map[string]string{"stage": stage, "reason": "empty"})
		return nil, aceerr.ErrEmptyResponse
	}

	candidate := stripFences(trimmed)
	candidate = trimToOutermostObject(candidate)

	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		d.persistRaw(date, text)
		observ.IncCounter("ace_decoder_failures_total", map[string]string{"stage": stage, "reason": "malformed"})
		return nil, fmt.Errorf("%w: %s", aceerr.ErrMalformedJSON, excerptFor(text))
	}
	return out, nil
}

// stripFences removes at most one leading and one trailing markdown code
// fence, tolerating a language tag (json/JSON) directly after the opener.
// Splitting on the fence token can legitimately produce 1, 2, or 3+ segments
// (no fence at all, a single fenced block, or fence tokens embedded in prose)
// so every branch is bounds-checked rather than assumed.
func stripFences(text string) string {
	const fence = "```"
	if !strings.Contains(text, fence) {
		return text
	}
	parts := strings.Split(text, fence)
	if len(parts) < 2 {
		return text
	}
	// The content lives in the segment(s) between the first and last fence
	// token. With exactly one fenced block that is parts[1]; with stray fence
	// tokens elsewhere in the prose, prefer the longest interior segment.
	interior := parts[1 : len(parts)-1]
	if len(interior) == 0 {
		return text
	}
	best := interior[0]
	for _, seg := range interior[1:] {
		if len(seg) > len(best) {
			best = seg
		}
	}
	best = strings.TrimPrefix(best, "json")
	best = strings.TrimPrefix(best, "JSON")
	return strings.TrimSpace(best)
}

// trimToOutermostObject drops any text before the first '{' and after the
// matching last '}', so trailing commentary or a truncated sentence after the
// JSON body does not break parsing.
func trimToOutermostObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

func excerptFor(text string) string {
	head := text
	if len(head) > 500 {
		head = head[:500]
	}
	tail := text
	if len(tail) > 200 {
		tail = tail[len(tail)-200:]
	}
	return fmt.Sprintf("head=%q tail=%q", head, tail)
}

func (d *Decoder) persistRaw(date, text string) {
	if d.SessionDir == "" {
		return
	}
	dir := filepath.Join(d.SessionDir, dateDirName(date), "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		observ.Log("decoder.debug_dir_error", map[string]any{"error": err.Error()})
		return
	}
	name := fmt.Sprintf("raw_response_%s.txt", time.Now().UTC().Format("20060102150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		observ.Log("decoder.debug_write_error", map[string]any{"error": err.Error()})
	}
}

// dateDirName mirrors cycle.dateDirName's "2006-01-02" -> "2006_01_02"
// conversion so the debug/ sink lands in the same per-day directory as the
// rest of that session's artifacts.
func dateDirName(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("2006_01_02")
}
