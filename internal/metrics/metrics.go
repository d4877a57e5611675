// Package metrics is a small in-process registry served as JSON from the
// /metrics endpoint. Counters and gauges are keyed by name plus sorted
// labels; timers keep a bounded sample window for percentiles.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const timerSampleWindow = 1000

type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// Metric is a counter or gauge observation with its metadata.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric aggregates duration observations in milliseconds.
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
	P95     float64 `json:"p95_ms,omitempty"`
	P99     float64 `json:"p99_ms,omitempty"`
	samples []float64
}

func (t *TimerMetric) observe(ms float64) {
	t.Count++
	t.Sum += ms
	if ms < t.Min || t.Count == 1 {
		t.Min = ms
	}
	if ms > t.Max {
		t.Max = ms
	}
	t.Average = t.Sum / float64(t.Count)

	t.samples = append(t.samples, ms)
	if len(t.samples) > timerSampleWindow {
		t.samples = t.samples[len(t.samples)-timerSampleWindow:]
	}
	if len(t.samples) >= 10 {
		t.P95 = percentile(t.samples, 0.95)
		t.P99 = percentile(t.samples, 0.99)
	}
}

// Registry holds all metrics. Zero-allocation on the hot path is not a goal;
// the registry exists so operational counters survive without an external
// metrics backend.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

var global = NewRegistry()

// GetRegistry returns the process-wide registry.
func GetRegistry() *Registry {
	return global
}

// IncrementCounter adds one to a counter.
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds an arbitrary amount to a counter.
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	counter, ok := r.counters[key]
	if !ok {
		counter = &Metric{
			Name:        name,
			Type:        Counter,
			Labels:      cloneLabels(labels),
			Description: description,
		}
		r.counters[key] = counter
	}
	counter.Value += value
	counter.LastUpdate = time.Now()
}

// RecordTimer records one duration observation.
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seriesKey(name, labels)
	timer, ok := r.timers[key]
	if !ok {
		timer = &TimerMetric{}
		r.timers[key] = timer
	}
	timer.observe(float64(duration.Nanoseconds()) / 1e6)
}

// SetGauge replaces a gauge's value.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[seriesKey(name, labels)] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      cloneLabels(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// GetAllMetrics snapshots the registry for the /metrics endpoint.
func (r *Registry) GetAllMetrics() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]*Metric, len(r.counters))
	for key, m := range r.counters {
		counters[key] = m
	}
	timers := make(map[string]*TimerMetric, len(r.timers))
	for key, m := range r.timers {
		timers[key] = m
	}
	gauges := make(map[string]*Metric, len(r.gauges))
	for key, m := range r.gauges {
		gauges[key] = m
	}

	return map[string]interface{}{
		"counters":  counters,
		"timers":    timers,
		"gauges":    gauges,
		"uptime_ms": time.Since(r.startTime).Milliseconds(),
		"timestamp": time.Now().Unix(),
	}
}

// seriesKey joins a metric name with its sorted labels so each label
// combination is its own series.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('_')
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(labels[k])
	}
	return b.String()
}

// percentile uses nearest-rank on a sorted copy of the samples.
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func cloneLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Global registry shorthands.

func IncrementCounter(name string, labels map[string]string, description string) {
	global.IncrementCounter(name, labels, description)
}

func AddToCounter(name string, value float64, labels map[string]string, description string) {
	global.AddToCounter(name, value, labels, description)
}

func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	global.RecordTimer(name, duration, labels, description)
}

func SetGauge(name string, value float64, labels map[string]string, description string) {
	global.SetGauge(name, value, labels, description)
}

func GetAllMetrics() map[string]interface{} {
	return global.GetAllMetrics()
}
