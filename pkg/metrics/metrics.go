// Package metrics is the in-process metrics registry for the API: request
// stats per endpoint, evaluation verdict counters, admission rejection
// counters, and latency histograms, exposed as JSON and Prometheus text.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	RejectAuthFailed    = "auth_failed"
	RejectRateLimited   = "rate_limited"
	RejectQuotaExceeded = "quota_exceeded"
)

type Registry struct {
	mu           sync.RWMutex
	endpoint     map[string]*EndpointStat
	verdict      map[string]int64
	rejections   map[string]int64
	gauges       map[string]float64
	scoreLatency ScoreLatencyStat
	Histograms   *HistogramRegistry
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

// ScoreLatencyStat tracks the scoring engine round-trip.
type ScoreLatencyStat struct {
	Count   int64   `json:"count"`
	TotalMS int64   `json:"total_ms"`
	MaxMS   int64   `json:"max_ms"`
	LastMS  int64   `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
}

type Snapshot struct {
	GeneratedAt    string                  `json:"generated_at"`
	Endpoints      map[string]EndpointStat `json:"endpoints"`
	Verdicts       map[string]int64        `json:"verdicts"`
	Rejections     map[string]int64        `json:"admission_rejections"`
	Gauges         map[string]float64      `json:"gauges"`
	ScoreLatencyMS ScoreLatencyStat        `json:"score_latency_ms"`
	Histograms     []HistogramSnapshot     `json:"histograms,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:   map[string]*EndpointStat{},
		verdict:    map[string]int64{},
		rejections: map[string]int64{},
		gauges:     map[string]float64{},
		Histograms: NewHistogramRegistry(),
	}
}

func (r *Registry) ObserveLatency(endpoint string, d time.Duration) {
	r.Histograms.ObserveDuration(endpoint, d)
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

func (r *Registry) IncVerdict(verdict string) {
	verdict = strings.TrimSpace(verdict)
	if verdict == "" {
		return
	}
	r.mu.Lock()
	r.verdict[verdict]++
	r.mu.Unlock()
}

// IncRejection counts an admission denial by cause.
func (r *Registry) IncRejection(cause string) {
	if cause == "" {
		return
	}
	r.mu.Lock()
	r.rejections[cause]++
	r.mu.Unlock()
}

func (r *Registry) ObserveScoreLatency(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoreLatency.Count++
	r.scoreLatency.TotalMS += ms
	r.scoreLatency.LastMS = ms
	if ms > r.scoreLatency.MaxMS {
		r.scoreLatency.MaxMS = ms
	}
	r.scoreLatency.AvgMS = float64(r.scoreLatency.TotalMS) / float64(r.scoreLatency.Count)
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoints:   make(map[string]EndpointStat, len(r.endpoint)),
		Verdicts:    make(map[string]int64, len(r.verdict)),
		Rejections:  make(map[string]int64, len(r.rejections)),
		Gauges:      make(map[string]float64, len(r.gauges)),
		ScoreLatencyMS: ScoreLatencyStat{
			Count:   r.scoreLatency.Count,
			TotalMS: r.scoreLatency.TotalMS,
			MaxMS:   r.scoreLatency.MaxMS,
			LastMS:  r.scoreLatency.LastMS,
			AvgMS:   r.scoreLatency.AvgMS,
		},
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.verdict {
		out.Verdicts[k] = v
	}
	for k, v := range r.rejections {
		out.Rejections[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	out.Histograms = r.Histograms.Snapshots()
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP lumen_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE lumen_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "lumen_endpoint_count{endpoint=%q} %d\n", ep, stat.Count)
		}
		b.WriteString("# HELP lumen_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE lumen_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "lumen_endpoint_error_count{endpoint=%q} %d\n", ep, stat.ErrorCount)
		}
		b.WriteString("# HELP lumen_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE lumen_endpoint_avg_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "lumen_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, stat.AverageMillis)
		}
		b.WriteString("# HELP lumen_endpoint_max_millis endpoint max latency in milliseconds\n")
		b.WriteString("# TYPE lumen_endpoint_max_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "lumen_endpoint_max_millis{endpoint=%q} %d\n", ep, stat.MaxMillis)
		}
		b.WriteString("# HELP lumen_verdict_total total evaluations by verdict\n")
		b.WriteString("# TYPE lumen_verdict_total counter\n")
		for _, verdict := range SortedKeys(snap.Verdicts) {
			fmt.Fprintf(b, "lumen_verdict_total{verdict=%q} %d\n", verdict, snap.Verdicts[verdict])
		}
		b.WriteString("# HELP lumen_admission_rejections_total admission denials by cause\n")
		b.WriteString("# TYPE lumen_admission_rejections_total counter\n")
		for _, cause := range SortedKeys(snap.Rejections) {
			fmt.Fprintf(b, "lumen_admission_rejections_total{cause=%q} %d\n", cause, snap.Rejections[cause])
		}
		b.WriteString("# HELP lumen_gauge operational gauge metrics\n")
		b.WriteString("# TYPE lumen_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "lumen_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		for _, h := range snap.Histograms {
			b.WriteString("# HELP lumen_latency_seconds latency histogram\n")
			b.WriteString("# TYPE lumen_latency_seconds histogram\n")
			for _, bucket := range h.Buckets {
				fmt.Fprintf(b, "lumen_latency_seconds_bucket{endpoint=%q,le=\"%.3f\"} %d\n", h.Name, bucket.Le, bucket.Count)
			}
			fmt.Fprintf(b, "lumen_latency_seconds_bucket{endpoint=%q,le=\"+Inf\"} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "lumen_latency_seconds_sum{endpoint=%q} %.6f\n", h.Name, h.Sum)
			fmt.Fprintf(b, "lumen_latency_seconds_count{endpoint=%q} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "lumen_latency_p50_seconds{endpoint=%q} %.6f\n", h.Name, h.P50)
			fmt.Fprintf(b, "lumen_latency_p95_seconds{endpoint=%q} %.6f\n", h.Name, h.P95)
			fmt.Fprintf(b, "lumen_latency_p99_seconds{endpoint=%q} %.6f\n", h.Name, h.P99)
		}

		b.WriteString("# HELP lumen_score_latency_ms scoring engine latency in ms\n")
		b.WriteString("# TYPE lumen_score_latency_ms gauge\n")
		fmt.Fprintf(b, "lumen_score_latency_ms{stat=%q} %d\n", "last", snap.ScoreLatencyMS.LastMS)
		fmt.Fprintf(b, "lumen_score_latency_ms{stat=%q} %.3f\n", "avg", snap.ScoreLatencyMS.AvgMS)
		fmt.Fprintf(b, "lumen_score_latency_ms{stat=%q} %d\n", "max", snap.ScoreLatencyMS.MaxMS)

		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
