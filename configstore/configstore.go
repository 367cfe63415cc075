// Package configstore implements the config store / fetcher (component C5):
// it holds the caller's credentials, a time-bounded cache of the last
// signature-verified policy, and coordinates concurrent fetches so at most
// one network round-trip to the CDN is in flight per (org, project) pair.
package configstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmhodges/clock"
	"golang.org/x/sync/singleflight"

	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/trustpin/trustpin-go/goodkey"
	"github.com/trustpin/trustpin-go/jws"
	"github.com/trustpin/trustpin-go/log"
	"github.com/trustpin/trustpin-go/metrics"
	"github.com/trustpin/trustpin-go/policy"
)

// Mode controls what happens when a host has no policy entry.
type Mode int

const (
	// Strict rejects hosts with no policy entry (DomainNotRegistered).
	Strict Mode = iota
	// Permissive allows hosts with no policy entry to pass verification.
	Permissive
)

func (m Mode) String() string {
	if m == Permissive {
		return "Permissive"
	}
	return "Strict"
}

// The retry/cache schedule. These values apply to every Store; only the
// inter-attempt delay (WithExponentialBackoff) and the HTTP client
// (WithHTTPClient) can be replaced.
const (
	CacheTTL     = 600 * time.Second
	StaleMaxAge  = 24 * time.Hour
	MaxRetries   = 3
	HTTPTimeout  = 30 * time.Second
	RetryBackoff = 5 * time.Second
)

// Credentials identifies a project and the public key its policy documents
// are signed with.
type Credentials struct {
	Organization string
	Project      string
	PublicKeyDER []byte
	Mode         Mode
}

func (c *Credentials) key() string {
	return c.Organization + "/" + c.Project
}

// cacheEntry is the last successfully fetched and verified policy.
type cacheEntry struct {
	policy    *policy.Policy
	fetchedAt time.Time
}

// Store is the C5 config store. The zero value is not usable; build one
// with New.
type Store struct {
	cdnBase string
	clk     clock.Clock
	scope   metrics.Scope
	logger  *log.Logger
	verify  *jws.Verifier
	client  *http.Client

	mu         sync.Mutex
	creds      *Credentials
	cache      *cacheEntry
	sf         singleflight.Group
	newBackoff func() backoff.BackOff
	backend    CacheBackend
	weak       *goodkey.Checker
}

// Option customizes a Store built by New.
type Option func(*Store)

// WithHTTPClient overrides the http.Client used for CDN fetches (for
// example an httptest.Server's client). The replacement's own timeout and
// redirect settings are used as-is.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithLogger overrides the logger used for stale-fallback/failure lines.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithExponentialBackoff switches the inter-attempt delay from the fixed
// RetryBackoff schedule to an exponential one, still paced through the
// Store's injected clock (via clock.Sleep) so tests stay deterministic
// regardless of which schedule is configured.
func WithExponentialBackoff(initial, max time.Duration) Option {
	return func(s *Store) {
		s.newBackoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		}
	}
}

// WithCacheBackend installs a second-tier cache (e.g. NewRedisCache or
// NewS3Cache) consulted whenever the in-memory cache can't satisfy a
// stale-fallback request, and written through on every successful fetch.
func WithCacheBackend(b CacheBackend) Option {
	return func(s *Store) { s.backend = b }
}

// WithWeakKeyChecker installs a *goodkey.Checker that rejects any policy
// signed by a known-weak key, in addition to the normal signature check.
func WithWeakKeyChecker(c *goodkey.Checker) Option {
	return func(s *Store) { s.weak = c }
}

// New builds a Store that fetches policy documents from cdnBase (e.g.
// "https://cdn.trustpin.cloud") using clk for all timing (so tests can run
// instantly against a fake clock) and scope for fetch metrics.
func New(cdnBase string, clk clock.Clock, scope metrics.Scope, opts ...Option) *Store {
	s := &Store{
		cdnBase: strings.TrimSuffix(cdnBase, "/"),
		clk:     clk,
		scope:   scope,
		logger:  log.Default(),
		client: &http.Client{
			Timeout: HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		newBackoff: func() backoff.BackOff { return backoff.NewConstantBackOff(RetryBackoff) },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.verify = jws.NewVerifier(s.weak)
	return s
}

// SetCredentials validates and installs new credentials, clearing any
// cached policy and in-flight fetch -- a new project means the old cache is
// no longer meaningful.
func (s *Store) SetCredentials(org, project, publicKeyB64 string, mode Mode) error {
	org = strings.TrimSpace(org)
	project = strings.TrimSpace(project)
	publicKeyB64 = strings.TrimSpace(publicKeyB64)

	if org == "" || project == "" || publicKeyB64 == "" {
		return berrors.InvalidProjectConfigError("organization, project, and public key must all be non-empty")
	}
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return berrors.InvalidProjectConfigError("public key is not valid base64: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &Credentials{Organization: org, Project: project, PublicKeyDER: pub, Mode: mode}
	s.cache = nil
	// Later callers must not join a fetch started under the old credentials.
	s.sf.Forget(s.creds.key())
	return nil
}

// Mode returns the configured mode. Callers must call SetCredentials first.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return Strict
	}
	return s.creds.Mode
}

// GetPolicy returns the current policy, fetching it if the cache is absent
// or stale. Concurrent calls for the same credentials share one fetch.
func (s *Store) GetPolicy(ctx context.Context) (*policy.Policy, error) {
	s.mu.Lock()
	creds := s.creds
	if creds == nil {
		s.mu.Unlock()
		return nil, berrors.InvalidProjectConfigError("SetCredentials must be called before GetPolicy")
	}
	if s.cache != nil && s.clk.Now().Sub(s.cache.fetchedAt) < CacheTTL {
		p := s.cache.policy
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do(creds.key(), func() (interface{}, error) {
		return s.fetchWithRetries(ctx, creds)
	})
	if err != nil {
		// A structural or signature failure is already a classified
		// PinError (ConfigurationValidationFailed): it is an integrity
		// problem, not an availability one, so it is never masked by a
		// stale-cache fallback and never remapped to
		// ErrorFetchingPinningInfo -- per the propagation policy, only
		// unclassified network/transport errors get that treatment.
		if _, ok := err.(*berrors.PinError); ok {
			s.scope.Inc("fetch.failure", 1)
			s.logger.Errorf("fetch for %s rejected: %v", creds.key(), err)
			return nil, err
		}
		return s.staleFallback(ctx, creds, err)
	}
	return v.(*policy.Policy), nil
}

// staleFallback is consulted after every retry attempt is exhausted: a
// cache entry within STALE_MAX_AGE is still usable, logged at INFO rather
// than treated as success, per §4.5's "last resort" language. When the
// in-memory cache can't help, a configured CacheBackend gets the same
// chance before this gives up and classifies the failure.
func (s *Store) staleFallback(ctx context.Context, creds *Credentials, fetchErr error) (*policy.Policy, error) {
	s.mu.Lock()
	if s.cache != nil && s.clk.Now().Sub(s.cache.fetchedAt) <= StaleMaxAge {
		p := s.cache.policy
		s.mu.Unlock()
		s.logger.Infof("host fetch for %s failed (%v), serving stale cached policy", creds.key(), fetchErr)
		s.scope.Inc("fetch.stale_fallback", 1)
		return p, nil
	}
	s.mu.Unlock()

	if s.backend != nil {
		raw, fetchedAt, ok, err := s.backend.Load(ctx, creds.key())
		if err != nil {
			s.logger.Errorf("cache backend load for %s failed: %v", creds.key(), err)
		} else if ok && s.clk.Now().Sub(fetchedAt) <= StaleMaxAge {
			var p policy.Policy
			if uerr := json.Unmarshal(raw, &p); uerr == nil {
				s.logger.Infof("host fetch for %s failed (%v), serving stale policy from cache backend", creds.key(), fetchErr)
				s.scope.Inc("fetch.stale_fallback", 1)
				s.mu.Lock()
				s.cache = &cacheEntry{policy: &p, fetchedAt: fetchedAt}
				s.mu.Unlock()
				return &p, nil
			}
		}
	}

	s.logger.Errorf("fetch for %s failed with no usable cache: %v", creds.key(), fetchErr)
	s.scope.Inc("fetch.failure", 1)
	return nil, berrors.ErrorFetchingPinningInfoError("could not fetch policy for %s: %v", creds.key(), fetchErr)
}

// fetchWithRetries runs the C5 attempt loop: up to MaxRetries attempts,
// retrying only on network/transport/HTTP-status failures. A structural or
// signature failure is non-retryable and returned immediately.
func (s *Store) fetchWithRetries(ctx context.Context, creds *Credentials) (*policy.Policy, error) {
	var lastErr error
	b := s.newBackoff()
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		start := s.clk.Now()
		p, retryable, err := s.fetchOnce(ctx, creds)
		s.scope.TimingDuration("fetch.attempt_seconds", s.clk.Since(start))
		if err == nil {
			fetchedAt := s.clk.Now()
			s.mu.Lock()
			// A fetch overtaken by SetCredentials must not repopulate the cache.
			if s.creds == creds {
				s.cache = &cacheEntry{policy: p, fetchedAt: fetchedAt}
			}
			s.mu.Unlock()
			s.scope.Inc("fetch.success", 1)
			if s.backend != nil {
				if raw, merr := json.Marshal(p); merr == nil {
					if serr := s.backend.Store(ctx, creds.key(), raw, fetchedAt); serr != nil {
						s.logger.Errorf("cache backend store for %s failed: %v", creds.key(), serr)
					}
				}
			}
			return p, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if attempt < MaxRetries {
			s.clk.Sleep(b.NextBackOff())
		}
	}
	return nil, lastErr
}

// fetchOnce performs a single HTTP GET + verify + decode cycle, returning
// whether a failure is worth retrying.
func (s *Store) fetchOnce(ctx context.Context, creds *Credentials) (*policy.Policy, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, HTTPTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/%s/jws.b64", s.cdnBase, creds.Organization, creds.Project)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, true, fmt.Errorf("configstore: building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("configstore: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("configstore: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, true, fmt.Errorf("configstore: unexpected status %d", resp.StatusCode)
	}

	payload, err := s.verify.VerifyCompact(strings.TrimSpace(string(body)), creds.PublicKeyDER)
	if err != nil {
		return nil, false, err
	}

	p, err := policy.ParsePayload(payload)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}
