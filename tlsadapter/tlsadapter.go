// Package tlsadapter is a reference implementation of the TLS adapter
// boundary (component C11, specified only at its interface). It shows how a
// Go TLS client wires its own chain/time/hostname validation together with
// the pinning engine via tls.Config.VerifyConnection: the host stack
// validates the chain first (VerifyConnection only runs after that
// succeeds, unless InsecureSkipVerify is set), and only then does the
// adapter extract the leaf, wrap it as PEM, and hand it to Engine.Verify.
package tlsadapter

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/trustpin/trustpin-go/certutil"
	"github.com/trustpin/trustpin-go/engine"
)

// ErrNoPeerCertificate is returned when a TLS handshake somehow reaches
// VerifyConnection with no peer certificates, which should not happen for
// any connection that completed the standard handshake.
var ErrNoPeerCertificate = fmt.Errorf("tlsadapter: no peer certificates in connection state")

// Verifier adapts an *engine.Engine into a tls.Config.VerifyConnection
// callback.
type Verifier struct {
	Engine *engine.Engine
}

// New builds a Verifier over eng.
func New(eng *engine.Engine) *Verifier {
	return &Verifier{Engine: eng}
}

// VerifyConnection implements the func(tls.ConnectionState) error shape of
// tls.Config.VerifyConnection. Install it directly:
//
//	cfg := &tls.Config{VerifyConnection: tlsadapter.New(eng).VerifyConnection}
func (v *Verifier) VerifyConnection(state tls.ConnectionState) error {
	if len(state.PeerCertificates) == 0 {
		return ErrNoPeerCertificate
	}
	leaf := state.PeerCertificates[0]
	pemText := certutil.WrapPEM(leaf.Raw)
	return v.Engine.Verify(context.Background(), state.ServerName, pemText)
}
