package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the process-wide metrics registry. Counters and timers are kept
// in memory for snapshotting and mirrored into a prometheus registry for the
// scrape endpoint. All methods are safe for concurrent use and never return an
// error: observability is best-effort and must not fail callers.
type Collector struct {
	mu       sync.Mutex
	counters map[string]*counterSeries
	timers   map[string]*timerSeries
	registry *prometheus.Registry
}

type counterSeries struct {
	value int64
	prom  prometheus.Counter
}

type timerSeries struct {
	samples []float64
	prom    prometheus.Histogram
}

// CounterSnapshot is a point-in-time counter value.
type CounterSnapshot struct {
	Value int64 `json:"value"`
}

// TimerSnapshot summarizes an observed duration series.
type TimerSnapshot struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
}

// Snapshot is a consistent point-in-time copy of all series.
type Snapshot struct {
	Counters    map[string]int64         `json:"counters"`
	Timers      map[string]TimerSnapshot `json:"timers"`
	GeneratedAt time.Time                `json:"generated_at"`
}

func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]*counterSeries),
		timers:   make(map[string]*timerSeries),
		registry: prometheus.NewRegistry(),
	}
}

// Registry exposes the mirrored prometheus registry for the scrape handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Inc adds value to the named counter, creating it at zero if absent.
func (c *Collector) Inc(name string, value int64, labels map[string]string) {
	if name == "" || value == 0 {
		return
	}
	key := seriesKey(name, labels)

	c.mu.Lock()
	series, ok := c.counters[key]
	if !ok {
		series = &counterSeries{prom: c.newPromCounter(name, labels)}
		c.counters[key] = series
	}
	series.value += value
	if series.prom != nil {
		series.prom.Add(float64(value))
	}
	c.mu.Unlock()
}

// Observe appends a duration sample (milliseconds) to the named timer series.
func (c *Collector) Observe(name string, valueMs float64, labels map[string]string) {
	if name == "" {
		return
	}
	key := seriesKey(name, labels)

	c.mu.Lock()
	series, ok := c.timers[key]
	if !ok {
		series = &timerSeries{prom: c.newPromHistogram(name, labels)}
		c.timers[key] = series
	}
	series.samples = append(series.samples, valueMs)
	if series.prom != nil {
		series.prom.Observe(valueMs)
	}
	c.mu.Unlock()
}

// Snapshot copies all series under the lock and summarizes timers outside it,
// so writers are only blocked for the duration of the copy.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	counters := make(map[string]int64, len(c.counters))
	for key, series := range c.counters {
		counters[key] = series.value
	}
	samples := make(map[string][]float64, len(c.timers))
	for key, series := range c.timers {
		copied := make([]float64, len(series.samples))
		copy(copied, series.samples)
		samples[key] = copied
	}
	c.mu.Unlock()

	timers := make(map[string]TimerSnapshot, len(samples))
	for key, values := range samples {
		if len(values) == 0 {
			continue
		}
		summary := TimerSnapshot{
			Count: len(values),
			MinMs: values[0],
			MaxMs: values[0],
		}
		var sum float64
		for _, v := range values {
			if v < summary.MinMs {
				summary.MinMs = v
			}
			if v > summary.MaxMs {
				summary.MaxMs = v
			}
			sum += v
		}
		summary.AvgMs = sum / float64(len(values))
		timers[key] = summary
	}

	return Snapshot{
		Counters:    counters,
		Timers:      timers,
		GeneratedAt: time.Now().UTC(),
	}
}

// seriesKey builds a stable series key. Label keys are sorted so label order
// never produces duplicate series.
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
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

func (c *Collector) newPromCounter(name string, labels map[string]string) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        sanitizeMetricName(name),
		ConstLabels: prometheus.Labels(labels),
	})
	if err := c.registry.Register(counter); err != nil {
		return nil
	}
	return counter
}

func (c *Collector) newPromHistogram(name string, labels map[string]string) prometheus.Histogram {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        sanitizeMetricName(name),
		ConstLabels: prometheus.Labels(labels),
		Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
	})
	if err := c.registry.Register(histogram); err != nil {
		return nil
	}
	return histogram
}

func sanitizeMetricName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
}
