package configstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/trustpin/trustpin-go/b64url"
	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/trustpin/trustpin-go/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signEnvelope(t *testing.T, priv *ecdsa.PrivateKey, payload string) string {
	t.Helper()
	header := b64url.Encode([]byte(`{"alg":"ES256","typ":"JWT"}`))
	payloadSeg := b64url.Encode([]byte(payload))
	message := []byte(header + "." + payloadSeg)

	digest := sha256.Sum256(message)
	der, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	var parsed struct{ R, S *big.Int }
	_, err = asn1.Unmarshal(der, &parsed)
	require.NoError(t, err)

	raw := make([]byte, 64)
	rBytes := parsed.R.Bytes()
	sBytes := parsed.S.Bytes()
	copy(raw[32-len(rBytes):32], rBytes)
	copy(raw[64-len(sBytes):64], sBytes)

	return header + "." + payloadSeg + "." + b64url.Encode(raw)
}

const validPayload = `{"version":1,"iat":1,"nbf":1,"domains":[{"domain":"example.com","last_updated":1,"pins":[{"alg":"sha256","pin":"aGVsbG8="}]}]}`

func newTestStore(t *testing.T, handler http.HandlerFunc) (*Store, clock.FakeClock, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fc := clock.NewFake()
	store := New(server.URL, fc, metrics.NewNoopScope())
	return store, fc, priv
}

func setCreds(t *testing.T, store *Store, priv *ecdsa.PrivateKey, mode Mode) {
	t.Helper()
	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	err = store.SetCredentials("org", "project", base64.StdEncoding.EncodeToString(spki), mode)
	require.NoError(t, err)
}

func TestSetCredentialsRejectsEmpty(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	err := store.SetCredentials("", "project", "abc", Strict)
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidProjectConfig))
}

func TestSetCredentialsRejectsBadBase64(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	err := store.SetCredentials("org", "project", "!!!not-base64!!!", Strict)
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidProjectConfig))
}

func TestGetPolicyWithoutCredentials(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	_, err := store.GetPolicy(context.Background())
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidProjectConfig))
}

func TestGetPolicyFetchesAndCaches(t *testing.T) {
	var count int32
	var priv *ecdsa.PrivateKey
	store, _, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	})
	setCreds(t, store, priv, Strict)

	p1, err := store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", p1.Domains[0].Domain)

	p2, err := store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestGetPolicyRefetchesAfterTTL(t *testing.T) {
	var count int32
	var priv *ecdsa.PrivateKey
	store, fc, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	})
	setCreds(t, store, priv, Strict)

	_, err := store.GetPolicy(context.Background())
	require.NoError(t, err)

	fc.Add(CacheTTL + time.Second)

	_, err = store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestGetPolicyRetriesOnTransientFailure(t *testing.T) {
	var count int32
	var priv *ecdsa.PrivateKey
	store, _, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	})
	setCreds(t, store, priv, Strict)

	p, err := store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", p.Domains[0].Domain)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestGetPolicyFailsAfterAllRetries(t *testing.T) {
	var count int32
	store, _, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	setCreds(t, store, priv, Strict)

	_, err := store.GetPolicy(context.Background())
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.ErrorFetchingPinningInfo))
	assert.Equal(t, int32(MaxRetries), atomic.LoadInt32(&count))
}

func TestGetPolicyNonRetryableSignatureFailureStopsImmediately(t *testing.T) {
	var count int32
	var priv *ecdsa.PrivateKey
	store, _, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		env := signEnvelope(t, priv, validPayload)
		fmt.Fprint(w, env+"tampered")
	})
	setCreds(t, store, priv, Strict)

	_, err := store.GetPolicy(context.Background())
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.ConfigurationValidationFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestGetPolicyStaleFallback(t *testing.T) {
	var healthy int32 = 1
	var count int32
	var priv *ecdsa.PrivateKey
	store, fc, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		if atomic.LoadInt32(&healthy) == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	})
	setCreds(t, store, priv, Strict)

	_, err := store.GetPolicy(context.Background())
	require.NoError(t, err)

	atomic.StoreInt32(&healthy, 0)
	fc.Add(CacheTTL + time.Second)

	p, err := store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", p.Domains[0].Domain)
}

func TestGetPolicyNoStaleFallbackPastStaleMaxAge(t *testing.T) {
	var healthy int32 = 1
	var priv *ecdsa.PrivateKey
	store, fc, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&healthy) == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	})
	setCreds(t, store, priv, Strict)

	_, err := store.GetPolicy(context.Background())
	require.NoError(t, err)

	atomic.StoreInt32(&healthy, 0)
	fc.Add(StaleMaxAge + time.Hour)

	_, err = store.GetPolicy(context.Background())
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.ErrorFetchingPinningInfo))
}

// fakeCacheBackend is an in-memory CacheBackend used to exercise the
// stale-fallback-to-backend path without a real Redis or S3 dependency.
type fakeCacheBackend struct {
	mu   sync.Mutex
	data map[string]cacheRecord
}

func newFakeCacheBackend() *fakeCacheBackend {
	return &fakeCacheBackend{data: make(map[string]cacheRecord)}
}

func (f *fakeCacheBackend) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return rec.Policy, rec.FetchedAt, true, nil
}

func (f *fakeCacheBackend) Store(ctx context.Context, key string, data []byte, fetchedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = cacheRecord{FetchedAt: fetchedAt, Policy: data}
	return nil
}

func TestGetPolicyFallsBackToCacheBackendWhenInMemoryCacheIsGone(t *testing.T) {
	var healthy int32 = 1
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&healthy) == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	}))
	t.Cleanup(server.Close)

	fc := clock.NewFake()
	backend := newFakeCacheBackend()
	store := New(server.URL, fc, metrics.NewNoopScope(), WithCacheBackend(backend))
	setCreds(t, store, priv, Strict)

	_, err = store.GetPolicy(context.Background())
	require.NoError(t, err)

	// Simulate losing the in-memory cache (e.g. a process restart) while
	// the shared backend still has the last-known-good policy.
	store.mu.Lock()
	store.cache = nil
	store.mu.Unlock()

	atomic.StoreInt32(&healthy, 0)
	p, err := store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", p.Domains[0].Domain)
}

func TestGetPolicyWithExponentialBackoffStillSucceeds(t *testing.T) {
	var count int32
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	}))
	t.Cleanup(server.Close)

	fc := clock.NewFake()
	store := New(server.URL, fc, metrics.NewNoopScope(), WithExponentialBackoff(time.Second, 10*time.Second))
	setCreds(t, store, priv, Strict)

	p, err := store.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "example.com", p.Domains[0].Domain)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestGetPolicySingleFlight(t *testing.T) {
	var count int32
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once

	var priv *ecdsa.PrivateKey
	store, _, priv := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		once.Do(started.Done)
		<-release
		fmt.Fprint(w, signEnvelope(t, priv, validPayload))
	})
	setCreds(t, store, priv, Strict)

	const callers = 25
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.GetPolicy(context.Background())
			assert.NoError(t, err)
		}()
	}

	started.Wait()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}
