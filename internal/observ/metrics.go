package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64 // name -> labelsKey -> count
	gauges   map[string]map[string]float64
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonLabels canonicalizes a label map so the derived key is order-independent.
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	k := canonLabels(labels)
	m[k] += int64(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	k := canonLabels(labels)
	m[k] = value
}

func ObserveHistogram(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration metric in milliseconds.
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	ObserveHistogram(name+"_ms", float64(duration.Milliseconds()), labels)
}

// Handler dumps the raw registry as JSON for quick inspection (not Prometheus format).
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus is a coarse snapshot of loop health for promotion/operator checks.
type HealthStatus struct {
	Status    string        `json:"status"` // healthy, degraded, failed
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Metrics   HealthMetrics `json:"metrics"`
}

// HealthMetrics summarizes the ACE loop's own reliability, not market performance.
type HealthMetrics struct {
	CycleSuccessRate     float64 `json:"cycle_success_rate"`
	DecoderFailureRate   float64 `json:"decoder_failure_rate"`
	LLMBlockedTotal      int64   `json:"llm_blocked_total"`
	SimulatorFallbackPct float64 `json:"simulator_fallback_pct"`
	PlaybookEntries      int64   `json:"playbook_entries"`
	PlaybookVersion      string  `json:"playbook_version"`
}

var (
	startTime = time.Now()
	version   = "dev"
)

func SetVersion(v string) { version = v }

// SetPlaybookGauge records the current Playbook shape for the health endpoint.
func SetPlaybookGauge(totalEntries int, version string) {
	SetGauge("ace_playbook_entries_total", float64(totalEntries), nil)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.gauges["ace_playbook_version"] == nil {
		reg.gauges["ace_playbook_version"] = map[string]float64{}
	}
	// version is recorded as a label-keyed presence marker (1.0) so HealthHandler
	// can read the most recently set version string back out via gatherPlaybookVersion.
	reg.gauges["ace_playbook_version"] = map[string]float64{version: 1}
}

// gatherPlaybookVersion does not lock: its caller, calculateHealthMetrics,
// already holds reg.mu.
func gatherPlaybookVersion() string {
	for k := range reg.gauges["ace_playbook_version"] {
		return k
	}
	return ""
}

func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := HealthStatus{
			Status:    calculateOverallHealthStatus(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Version:   version,
			Metrics:   calculateHealthMetrics(),
		}
		statusCode := http.StatusOK
		switch health.Status {
		case "degraded":
			statusCode = http.StatusPartialContent
		case "failed":
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

func calculateOverallHealthStatus() string {
	m := calculateHealthMetrics()
	if m.CycleSuccessRate < 0.5 {
		return "failed"
	}
	if m.DecoderFailureRate > 0.3 || m.SimulatorFallbackPct > 0.5 {
		return "degraded"
	}
	return "healthy"
}

func calculateHealthMetrics() HealthMetrics {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	m := HealthMetrics{PlaybookVersion: gatherPlaybookVersion()}

	var cycleTotal, cycleOK int64
	for labelKey, count := range reg.counters["ace_cycle_total"] {
		cycleTotal += count
		if strings.Contains(labelKey, "outcome=ok") {
			cycleOK += count
		}
	}
	if cycleTotal > 0 {
		m.CycleSuccessRate = float64(cycleOK) / float64(cycleTotal)
	} else {
		m.CycleSuccessRate = 1.0
	}

	var decoderCalls, decoderFailures int64
	for _, count := range reg.counters["ace_decoder_calls_total"] {
		decoderCalls += count
	}
	for _, count := range reg.counters["ace_decoder_failures_total"] {
		decoderFailures += count
	}
	if decoderCalls > 0 {
		m.DecoderFailureRate = float64(decoderFailures) / float64(decoderCalls)
	}

	for labelKey, count := range reg.counters["ace_llm_calls_total"] {
		if strings.Contains(labelKey, "outcome=blocked") {
			m.LLMBlockedTotal += count
		}
	}

	var simTotal, simFallback int64
	for labelKey, count := range reg.counters["ace_simulator_outcomes_total"] {
		simTotal += count
		if strings.Contains(labelKey, "method=hash_based_fallback") {
			simFallback += count
		}
	}
	if simTotal > 0 {
		m.SimulatorFallbackPct = float64(simFallback) / float64(simTotal)
	}

	for _, v := range reg.gauges["ace_playbook_entries_total"] {
		m.PlaybookEntries = int64(v)
		break
	}

	return m
}

// Health is a trivial liveness probe, independent of loop-level health.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
