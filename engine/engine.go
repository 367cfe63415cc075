// Package engine implements the engine façade (component C8): the single
// entry point a TLS adapter or CLI calls through. It has no mutable state
// of its own beyond a reference to the config store; all caching and
// in-flight coordination live in configstore.Store.
package engine

import (
	"context"

	"github.com/jmhodges/clock"

	"github.com/trustpin/trustpin-go/certutil"
	"github.com/trustpin/trustpin-go/configstore"
	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/trustpin/trustpin-go/goodkey"
	"github.com/trustpin/trustpin-go/hostname"
	"github.com/trustpin/trustpin-go/log"
	"github.com/trustpin/trustpin-go/metrics"
	"github.com/trustpin/trustpin-go/pinmatch"
)

// DefaultCDNBase is the production policy CDN, matching the external
// interface's documented endpoint.
const DefaultCDNBase = "https://cdn.trustpin.cloud"

// Engine is the pinning engine façade. Build one with New; the root trustpin
// package also wraps one default Engine in package-level functions for
// SDK-style ergonomic parity with the original source's bare
// setup/verify/reset free functions.
type Engine struct {
	cdnBase string
	store   *configstore.Store
	scope   metrics.Scope
	logger  *log.Logger
	clk     clock.Clock
	weak    *goodkey.Checker
}

// Config customizes New.
type Config struct {
	CDNBase string
	Scope   metrics.Scope
	Logger  *log.Logger
	Clock   clock.Clock

	// WeakKeyChecker, if set, rejects any policy signed by a known-weak
	// key in addition to the normal signature check.
	WeakKeyChecker *goodkey.Checker
}

// New builds an Engine. Any zero-valued field in cfg is replaced by its
// production default (the real CDN, a noop metrics scope, the default
// logger, and the system clock).
func New(cfg Config) *Engine {
	if cfg.CDNBase == "" {
		cfg.CDNBase = DefaultCDNBase
	}
	if cfg.Scope == nil {
		cfg.Scope = metrics.NewNoopScope()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Default()
	}
	opts := []configstore.Option{configstore.WithLogger(cfg.Logger)}
	if cfg.WeakKeyChecker != nil {
		opts = append(opts, configstore.WithWeakKeyChecker(cfg.WeakKeyChecker))
	}
	return &Engine{
		cdnBase: cfg.CDNBase,
		store:   configstore.New(cfg.CDNBase, cfg.Clock, cfg.Scope, opts...),
		scope:   cfg.Scope,
		logger:  cfg.Logger,
		clk:     cfg.Clock,
		weak:    cfg.WeakKeyChecker,
	}
}

// Setup configures the engine for one project. It trims its inputs,
// rejects any empty field with InvalidProjectConfig, and eagerly prefetches
// the policy in the background so the first Verify call doesn't pay the
// network round-trip.
func (e *Engine) Setup(org, project, publicKeyB64 string, mode configstore.Mode) error {
	if err := e.store.SetCredentials(org, project, publicKeyB64, mode); err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), configstore.HTTPTimeout*configstore.MaxRetries)
		defer cancel()
		if _, err := e.store.GetPolicy(ctx); err != nil {
			e.logger.Infof("setup prefetch for %s/%s did not complete: %v", org, project, err)
		}
	}()
	return nil
}

// Verify decides whether pemText's leaf certificate is trusted for host
// under the current policy. Exactly one outcome is ever returned: nil for
// Ok, or a *errors.PinError classifying the failure.
func (e *Engine) Verify(ctx context.Context, host, pemText string) error {
	start := e.clk.Now()
	err := e.verify(ctx, host, pemText)
	e.scope.TimingDuration("verify.latency_seconds", e.clk.Since(start))
	e.scope.Inc("verify.result."+resultLabel(err), 1)
	if err != nil {
		e.logger.Errorf("verify failed for host %s: %v", host, err)
	}
	return err
}

func (e *Engine) verify(ctx context.Context, host, pemText string) error {
	// configstore.GetPolicy already returns a classified PinError in every
	// failure case (InvalidProjectConfig, ConfigurationValidationFailed, or
	// ErrorFetchingPinningInfo), so the façade passes it through unchanged
	// rather than remapping it -- per §7, only fetch-layer errors without
	// their own classification would need remapping, and none remain
	// unclassified by the time they reach here.
	p, err := e.store.GetPolicy(ctx)
	if err != nil {
		return err
	}

	canonical := hostname.Normalize(host)
	der, err := certutil.LeafDER(pemText)
	if err != nil {
		return err
	}

	entry, err := p.Find(canonical)
	if err != nil {
		return err
	}
	if entry == nil {
		if e.store.Mode() == configstore.Permissive {
			e.logger.Infof("host %s has no policy entry; permissive mode allows it", host)
			return nil
		}
		return berrors.DomainNotRegisteredError("host %s has no policy entry", host)
	}

	return pinmatch.Match(canonical, der, entry, e.clk.Now().Unix())
}

// Reset clears credentials, cache, and any in-flight fetch. Intended for
// tests that need a clean Engine between cases.
func (e *Engine) Reset() {
	opts := []configstore.Option{configstore.WithLogger(e.logger)}
	if e.weak != nil {
		opts = append(opts, configstore.WithWeakKeyChecker(e.weak))
	}
	e.store = configstore.New(e.cdnBase, e.clk, e.scope, opts...)
}

// SetLogLevel propagates to the engine's log sink.
func (e *Engine) SetLogLevel(level log.Level) {
	e.logger.SetLevel(level)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	pe, ok := err.(*berrors.PinError)
	if !ok {
		return "unknown"
	}
	switch pe.Kind {
	case berrors.InvalidProjectConfig:
		return "invalid_project_config"
	case berrors.ErrorFetchingPinningInfo:
		return "error_fetching_pinning_info"
	case berrors.ConfigurationValidationFailed:
		return "configuration_validation_failed"
	case berrors.InvalidServerCert:
		return "invalid_server_cert"
	case berrors.DomainNotRegistered:
		return "domain_not_registered"
	case berrors.PinsMismatch:
		return "pins_mismatch"
	case berrors.AllPinsExpired:
		return "all_pins_expired"
	default:
		return "unknown"
	}
}
