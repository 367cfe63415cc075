package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// autoRegisterer lazily creates and registers a Prometheus collector the
// first time a given stat name is used, then reuses it on every subsequent
// call. This is what lets Scope.Inc/Gauge/Timing take a bare string name
// instead of requiring every caller to pre-declare a prometheus.Collector.
type autoRegisterer struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	summaries  map[string]prometheus.Summary
}

func newAutoRegisterer(registerer prometheus.Registerer) *autoRegisterer {
	return &autoRegisterer{
		registerer: registerer,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		summaries:  make(map[string]prometheus.Summary),
	}
}

func (a *autoRegisterer) MustRegister(cs ...prometheus.Collector) {
	a.registerer.MustRegister(cs...)
}

func (a *autoRegisterer) autoCounter(name string) prometheus.Counter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(name)})
	// Registering a duplicate collector panics; a stat that's already known
	// under a different autoRegisterer (e.g. re-registered test scope) is
	// tolerated by reusing the already-registered collector.
	if err := a.registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				c = existing
			}
		}
	}
	a.counters[name] = c
	return c
}

func (a *autoRegisterer) autoGauge(name string) prometheus.Gauge {
	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok := a.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: sanitize(name)})
	if err := a.registerer.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				g = existing
			}
		}
	}
	a.gauges[name] = g
	return g
}

func (a *autoRegisterer) autoSummary(name string) prometheus.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.summaries[name]; ok {
		return s
	}
	s := prometheus.NewSummary(prometheus.SummaryOpts{Name: sanitize(name)})
	if err := a.registerer.Register(s); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Summary); ok {
				s = existing
			}
		}
	}
	a.summaries[name] = s
	return s
}

// sanitize turns a dotted scope path like "fetch.success" into a Prometheus
// metric name like "fetch_success"; Prometheus names may not contain dots.
func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}
