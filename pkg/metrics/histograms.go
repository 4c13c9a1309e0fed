package metrics

import (
	"sync"
	"time"
)

// latencyBounds are the cumulative bucket upper bounds in seconds. The floor
// sits at 10ms because every admitted request pays a bcrypt comparison; the
// ceiling matches the scoring engine's 10s client timeout, so a saturated
// top bucket means evaluations are riding the deadline.
var latencyBounds = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0,
}

// HistogramBucket is one cumulative bucket: the count of observations at or
// under Le seconds.
type HistogramBucket struct {
	Le    float64
	Count int64
}

// Histogram accumulates request latencies for one endpoint. Observations
// above the largest bound still count toward Sum and Count and surface via
// the +Inf bucket in the Prometheus exposition.
type Histogram struct {
	mu      sync.Mutex
	name    string
	buckets []HistogramBucket
	sum     float64
	count   int64
}

func NewHistogram(name string) *Histogram {
	buckets := make([]HistogramBucket, len(latencyBounds))
	for i, le := range latencyBounds {
		buckets[i] = HistogramBucket{Le: le}
	}
	return &Histogram{name: name, buckets: buckets}
}

func (h *Histogram) Observe(d time.Duration) {
	sec := d.Seconds()
	h.mu.Lock()
	h.sum += sec
	h.count++
	for i := range h.buckets {
		if sec <= h.buckets[i].Le {
			h.buckets[i].Count++
		}
	}
	h.mu.Unlock()
}

// Percentile estimates the p-quantile (0.0-1.0) as the upper bound of the
// first bucket holding at least p of the observations. The estimate is only
// as fine as the bucket grid; that is enough to tell a healthy evaluation
// path from one stuck behind a slow scoring engine.
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return bucketQuantile(h.buckets, h.count, p)
}

func bucketQuantile(buckets []HistogramBucket, count int64, p float64) float64 {
	if count == 0 || len(buckets) == 0 {
		return 0
	}
	target := int64(p * float64(count))
	for _, b := range buckets {
		if b.Count >= target {
			return b.Le
		}
	}
	return buckets[len(buckets)-1].Le
}

// HistogramSnapshot is a point-in-time copy for the metrics endpoints.
type HistogramSnapshot struct {
	Name    string
	Buckets []HistogramBucket
	Sum     float64
	Count   int64
	P50     float64
	P95     float64
	P99     float64
}

func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	buckets := make([]HistogramBucket, len(h.buckets))
	copy(buckets, h.buckets)
	return HistogramSnapshot{
		Name:    h.name,
		Buckets: buckets,
		Sum:     h.sum,
		Count:   h.count,
		P50:     bucketQuantile(buckets, h.count, 0.50),
		P95:     bucketQuantile(buckets, h.count, 0.95),
		P99:     bucketQuantile(buckets, h.count, 0.99),
	}
}

// HistogramRegistry holds one histogram per endpoint, created on first
// observation so the route table never needs pre-registration.
type HistogramRegistry struct {
	mu         sync.RWMutex
	histograms map[string]*Histogram
}

func NewHistogramRegistry() *HistogramRegistry {
	return &HistogramRegistry{histograms: map[string]*Histogram{}}
}

func (r *HistogramRegistry) Get(name string) *Histogram {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.histograms[name]; ok {
		return h
	}
	h = NewHistogram(name)
	r.histograms[name] = h
	return h
}

func (r *HistogramRegistry) ObserveDuration(name string, d time.Duration) {
	r.Get(name).Observe(d)
}

func (r *HistogramRegistry) Snapshots() []HistogramSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HistogramSnapshot, 0, len(r.histograms))
	for _, h := range r.histograms {
		out = append(out, h.Snapshot())
	}
	return out
}
