package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustpin/trustpin-go/log"
	"github.com/trustpin/trustpin-go/metrics"
	"github.com/trustpin/trustpin-go/metrics/measured_http"
)

// StatsAndLogging constructs a metrics.Scope and a *log.Logger from a
// SyslogConfig, and sets the process-wide default logger to the same
// level (the returned logger is a separate instance). Modeled on
// the teacher's cmd.StatsAndLogging, minus the cfssl/mysql/grpc logger
// adapters the teacher wires in -- this library has none of those
// dependencies to redirect.
func StatsAndLogging(logConf SyslogConfig) (metrics.Scope, *log.Logger) {
	scope := metrics.NewPromScope(prometheus.DefaultRegisterer)

	level := log.Error
	if logConf.StdoutLevel != "" {
		parsed, err := log.ParseLevel(logConf.StdoutLevel)
		FailOnError(err, "parsing syslog.stdoutLevel")
		level = parsed
	}

	logger := log.New(os.Stderr, level)
	log.SetLevel(level)
	return scope, logger
}

// FailOnError prints an error and exits if err is non-nil.
func FailOnError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
		os.Exit(1)
	}
}

// ServeMetrics starts a blocking HTTP server exposing Prometheus metrics at
// /metrics, the C15 "serve-metrics" subcommand's implementation.
func ServeMetrics(addr string) error {
	if addr == "" {
		return fmt.Errorf("metrics.addr must be set to serve metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, measured_http.New(mux, clock.Default()))
}

// CatchSignals blocks until SIGTERM, SIGINT, or SIGHUP is received, then
// runs callback before returning.
func CatchSignals(logger *log.Logger, callback func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	sig := <-sigChan
	logger.Infof("caught %s", sig)

	if callback != nil {
		callback()
	}
	logger.Infof("exiting")
}
