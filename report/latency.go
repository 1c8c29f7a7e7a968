package report

import (
	"slices"
	"time"
)

// LatencyStats summarizes the samples of one operation.
type LatencyStats struct {
	Op    string
	Count int
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Recorder collects per-operation latency samples. Not safe for
// concurrent use.
type Recorder struct {
	ops     []string
	samples map[string][]time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{samples: make(map[string][]time.Duration)}
}

func (r *Recorder) Record(op string, d time.Duration) {
	if _, ok := r.samples[op]; !ok {
		r.ops = append(r.ops, op)
	}
	r.samples[op] = append(r.samples[op], d)
}

// Stats returns one entry per op in first-seen order.
func (r *Recorder) Stats() []LatencyStats {
	out := make([]LatencyStats, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, Summarize(op, r.samples[op]))
	}
	return out
}

// Summarize computes nearest-rank percentiles over samples.
func Summarize(op string, samples []time.Duration) LatencyStats {
	st := LatencyStats{Op: op, Count: len(samples)}
	if len(samples) == 0 {
		return st
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	st.Mean = total / time.Duration(len(sorted))
	st.P50 = percentile(sorted, 50)
	st.P99 = percentile(sorted, 99)
	st.Max = sorted[len(sorted)-1]
	return st
}

func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
