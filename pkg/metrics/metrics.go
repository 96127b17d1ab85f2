// Package metrics counts what the pipeline does. Prometheus carries the
// counters; hdrhistogram keeps per-node latency distributions for the
// end-of-run summary that the CLI logs.
package metrics

import(
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// A Recorder is safe to use from many goroutines. A nil *Recorder
// records nothing, so nodes don't need to check.
type Recorder struct {
	Registry      *prometheus.Registry

	pulls         *prometheus.CounterVec
	pullSeconds   *prometheus.HistogramVec
	lensOutcomes  *prometheus.CounterVec
	stateRebuilds *prometheus.CounterVec

	mu            sync.Mutex
	latencies     map[string]*hdrhistogram.Histogram
}

// Latencies are tracked in microseconds, from 1us to 10 minutes
const(
	minLatency = 1
	maxLatency = int64(10 * time.Minute / time.Microsecond)
)

func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawpipe",
			Name: "pulls_total",
			Help: "Images pulled through a node.",
		}, []string{"node"}),
		pullSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rawpipe",
			Name: "pull_seconds",
			Help: "Time spent in a pull, including everything upstream.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"node"}),
		lensOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawpipe",
			Name: "lens_resolutions_total",
			Help: "How lens calibration was resolved.",
		}, []string{"outcome"}),
		stateRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rawpipe",
			Name: "render_state_rebuilds_total",
			Help: "Color render state recomputations.",
		}, []string{"profile"}),
		latencies: map[string]*hdrhistogram.Histogram{},
	}

	r.Registry.MustRegister(r.pulls, r.pullSeconds, r.lensOutcomes, r.stateRebuilds)
	return r
}

func (r *Recorder)ObservePull(node string, d time.Duration) {
	if r == nil {
		return
	}
	r.pulls.WithLabelValues(node).Inc()
	r.pullSeconds.WithLabelValues(node).Observe(d.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	h, exists := r.latencies[node]
	if !exists {
		h = hdrhistogram.New(minLatency, maxLatency, 3)
		r.latencies[node] = h
	}
	us := int64(d / time.Microsecond)
	if us < minLatency { us = minLatency }
	if us > maxLatency { us = maxLatency }
	h.RecordValue(us)
}

func (r *Recorder)LensResolved(outcome string) {
	if r == nil {
		return
	}
	r.lensOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder)StateRebuilt(profile string) {
	if r == nil {
		return
	}
	r.stateRebuilds.WithLabelValues(profile).Inc()
}

// StateRebuilds and LensOutcomes expose single counters, mostly for tests
func (r *Recorder)StateRebuilds(profile string) prometheus.Counter {
	return r.stateRebuilds.WithLabelValues(profile)
}

func (r *Recorder)LensOutcomes(outcome string) prometheus.Counter {
	return r.lensOutcomes.WithLabelValues(outcome)
}

type NodeSummary struct {
	Node  string
	Count int64
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
}

func (s NodeSummary)String() string {
	return fmt.Sprintf("%-12s n=%-4d mean=%-10s p50=%-10s p99=%-10s max=%s", s.Node, s.Count, s.Mean, s.P50, s.P99, s.Max)
}

// Summary returns one entry per node, sorted by name
func (r *Recorder)Summary() []NodeSummary {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ret := []NodeSummary{}
	for node, h := range r.latencies {
		us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
		ret = append(ret, NodeSummary{
			Node: node,
			Count: h.TotalCount(),
			Mean: time.Duration(h.Mean() * float64(time.Microsecond)),
			P50: us(h.ValueAtQuantile(50)),
			P99: us(h.ValueAtQuantile(99)),
			Max: us(h.Max()),
		})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Node < ret[j].Node })
	return ret
}
