package observability

import (
	"maps"
	"math"
	"slices"
	"sync"
	"time"
)

// LatencyStats summarizes the recent samples of one operation.
type LatencyStats struct {
	Operation   string  `json:"operation"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Operations  []LatencyStats `json:"operations"`
}

// latencyWindow remembers the most recent durations of each operation,
// oldest first, up to limit per operation.
type latencyWindow struct {
	mu     sync.Mutex
	limit  int
	recent map[string][]time.Duration
}

func newLatencyWindow(limit int) *latencyWindow {
	if limit <= 0 {
		limit = 128
	}
	return &latencyWindow{limit: limit, recent: make(map[string][]time.Duration)}
}

func (w *latencyWindow) Observe(operation string, d time.Duration) {
	if operation == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := append(w.recent[operation], d)
	if over := len(kept) - w.limit; over > 0 {
		kept = slices.Delete(kept, 0, over)
	}
	w.recent[operation] = kept
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := LatencySnapshot{GeneratedAt: time.Now().UTC(), WindowSize: w.limit}
	for _, op := range slices.Sorted(maps.Keys(w.recent)) {
		if recent := w.recent[op]; len(recent) > 0 {
			snap.Operations = append(snap.Operations, summarize(op, recent))
		}
	}
	if snap.Operations == nil {
		snap.Operations = []LatencyStats{}
	}
	return snap
}

// summarize reads percentiles by nearest rank over a sorted copy of recent.
func summarize(op string, recent []time.Duration) LatencyStats {
	ordered := slices.Sorted(slices.Values(recent))
	var total time.Duration
	for _, d := range ordered {
		total += d
	}
	rank := func(p float64) time.Duration {
		i := int(math.Ceil(p*float64(len(ordered)))) - 1
		return ordered[max(i, 0)]
	}
	return LatencyStats{
		Operation:   op,
		Samples:     len(ordered),
		LastMS:      millis(recent[len(recent)-1]),
		AvgMS:       millis(total / time.Duration(len(ordered))),
		P50MS:       millis(rank(0.50)),
		P95MS:       millis(rank(0.95)),
		P99MS:       millis(rank(0.99)),
		TargetP95MS: targetP95MS(op),
	}
}

// millis converts to milliseconds with two decimals.
func millis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Microsecond)/10) / 100
}

func targetP95MS(operation string) float64 {
	switch operation {
	case OpVoiceReply:
		return 3200
	case "send_message", "register_agent":
		return 500
	case "list_agents", "list_messages":
		return 300
	default:
		return 0
	}
}
