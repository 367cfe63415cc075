// Package measured_http wraps an http.ServeMux so the CLI's metrics server
// observes request latency by endpoint/method/status without hand-rolled
// histogram bookkeeping. It also logs a line at INFO for any request that
// runs past a configurable threshold, so a slow /metrics scrape shows up in
// the process log rather than only as a silent histogram tail.
package measured_http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trustpin/trustpin-go/log"
)

var latencyHistogram = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "trustpin_http_response_time_seconds",
		Help: "Time taken to respond to a request served by the engine's own HTTP surface",
	},
	[]string{"endpoint", "method", "code"})

func init() {
	prometheus.MustRegister(latencyHistogram)
}

// statusCapturingWriter satisfies http.ResponseWriter while remembering the
// status code so it can be recorded after the handler returns.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// DefaultSlowRequestThreshold is used by New when no explicit threshold is
// given via WithSlowRequestThreshold.
const DefaultSlowRequestThreshold = 2 * time.Second

// InstrumentedMux wraps an http.ServeMux, recording a Prometheus histogram
// for every request it routes and warning through a logger on any request
// that exceeds its slow-request threshold. It uses an injected clock so
// tests don't need to sleep.
type InstrumentedMux struct {
	*http.ServeMux
	clk           clock.Clock
	logger        *log.Logger
	histogram     *prometheus.HistogramVec
	slowThreshold time.Duration
}

// Option customizes an InstrumentedMux built by New.
type Option func(*InstrumentedMux)

// WithLogger overrides the logger used for slow-request warnings. The
// default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(h *InstrumentedMux) { h.logger = l }
}

// WithSlowRequestThreshold overrides DefaultSlowRequestThreshold.
func WithSlowRequestThreshold(d time.Duration) Option {
	return func(h *InstrumentedMux) { h.slowThreshold = d }
}

// New wraps m, timing every request it serves via clk and logging a warning
// for any request slower than its configured threshold.
func New(m *http.ServeMux, clk clock.Clock, opts ...Option) *InstrumentedMux {
	h := &InstrumentedMux{
		ServeMux:      m,
		clk:           clk,
		logger:        log.Default(),
		histogram:     latencyHistogram,
		slowThreshold: DefaultSlowRequestThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *InstrumentedMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	begin := h.clk.Now()
	sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}

	subHandler, pattern := h.Handler(r)
	defer func() {
		elapsed := h.clk.Since(begin)
		h.histogram.With(prometheus.Labels{
			"endpoint": pattern,
			"method":   r.Method,
			"code":     fmt.Sprintf("%d", sw.status),
		}).Observe(elapsed.Seconds())
		if elapsed > h.slowThreshold {
			h.logger.Infof("slow request: %s %s took %s (threshold %s)", r.Method, pattern, elapsed, h.slowThreshold)
		}
	}()

	subHandler.ServeHTTP(sw, r)
}
