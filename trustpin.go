// Package trustpin is the module's top-level SDK surface: a package-level
// default *engine.Engine plus the free functions Setup/Verify/Reset/
// SetLogLevel, for callers who want the ergonomics of the original source's
// global setup/verify/reset rather than threading an *engine.Engine value
// themselves. Building an explicit engine.Engine with engine.New is the
// better fit for a process that pins more than one project at a time, or
// for tests that must not share state across cases.
package trustpin

import (
	"context"
	"sync"

	"github.com/trustpin/trustpin-go/configstore"
	"github.com/trustpin/trustpin-go/engine"
	"github.com/trustpin/trustpin-go/log"
)

var (
	defaultMu     sync.Mutex
	defaultEngine = engine.New(engine.Config{})
)

func current() *engine.Engine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultEngine
}

// Setup configures the package-level default engine for one project. See
// engine.Engine.Setup.
func Setup(org, project, publicKeyB64 string, mode configstore.Mode) error {
	return current().Setup(org, project, publicKeyB64, mode)
}

// Verify checks pemText's leaf certificate against host under the
// package-level default engine's current policy. See engine.Engine.Verify.
func Verify(ctx context.Context, host, pemText string) error {
	return current().Verify(ctx, host, pemText)
}

// SetLogLevel propagates to the package-level default engine's log sink.
func SetLogLevel(level log.Level) {
	current().SetLogLevel(level)
}

// Reset replaces the package-level default engine with a fresh one,
// discarding credentials and cache. Tests that use the package-level
// functions should call this in between cases; tests that need isolation
// within a single process should build their own engine.Engine with
// engine.New instead.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = engine.New(engine.Config{})
}
