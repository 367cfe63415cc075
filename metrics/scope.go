// Package metrics gives the engine a small Prometheus-backed stats
// abstraction (component C12). Every subsystem that wants to count fetches,
// cache hits, or verify outcomes takes a Scope rather than talking to
// prometheus directly, so the library has no mandatory metrics dependency:
// callers that don't care pass metrics.NewNoopScope().
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scope is a stats collector that prefixes the name of the stats it
// collects, mirroring the teacher's Scope interface one-for-one.
type Scope interface {
	NewScope(scopes ...string) Scope

	Inc(stat string, value int64)
	Gauge(stat string, value int64)
	GaugeDelta(stat string, value int64)
	Timing(stat string, delta int64)
	TimingDuration(stat string, delta time.Duration)

	MustRegister(...prometheus.Collector)
}

// promScope is a Scope that sends data to Prometheus.
type promScope struct {
	prometheus.Registerer
	*autoRegisterer
	prefix string
}

var _ Scope = &promScope{}

// NewPromScope returns a Scope that records into the given Registerer,
// prefixed by scopes joined with periods (e.g. "verify", "fetch").
func NewPromScope(registerer prometheus.Registerer, scopes ...string) Scope {
	return &promScope{
		Registerer:     registerer,
		prefix:         strings.Join(scopes, ".") + ".",
		autoRegisterer: newAutoRegisterer(registerer),
	}
}

// NewScope returns a child Scope whose prefix is this Scope's prefix plus
// the given scopes joined by periods.
func (s *promScope) NewScope(scopes ...string) Scope {
	scope := strings.Join(scopes, ".")
	return NewPromScope(s.Registerer, s.prefix+scope)
}

// Inc increments a counter.
func (s *promScope) Inc(stat string, value int64) {
	s.autoCounter(s.prefix + stat).Add(float64(value))
}

// Gauge sets a gauge to an absolute value.
func (s *promScope) Gauge(stat string, value int64) {
	s.autoGauge(s.prefix + stat).Set(float64(value))
}

// GaugeDelta adds a (possibly negative) delta to a gauge.
func (s *promScope) GaugeDelta(stat string, value int64) {
	s.autoGauge(s.prefix + stat).Add(float64(value))
}

// Timing records a latency observation, in arbitrary units chosen by the
// caller (the engine uses seconds).
func (s *promScope) Timing(stat string, delta int64) {
	s.autoSummary(s.prefix + stat + "_seconds").Observe(float64(delta))
}

// TimingDuration records a latency observation as a time.Duration.
func (s *promScope) TimingDuration(stat string, delta time.Duration) {
	s.autoSummary(s.prefix + stat + "_seconds").Observe(delta.Seconds())
}

// noopScope discards everything; it's the zero-configuration default.
type noopScope struct{}

// NewNoopScope returns a Scope that records nothing.
func NewNoopScope() Scope {
	return noopScope{}
}
func (noopScope) NewScope(scopes ...string) Scope          { return noopScope{} }
func (noopScope) Inc(stat string, value int64)              {}
func (noopScope) Gauge(stat string, value int64)             {}
func (noopScope) GaugeDelta(stat string, value int64)        {}
func (noopScope) Timing(stat string, delta int64)            {}
func (noopScope) TimingDuration(stat string, delta time.Duration) {}
func (noopScope) MustRegister(...prometheus.Collector)       {}
