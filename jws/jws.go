// Package jws implements the signature verifier (component C4): parsing a
// compact JWS envelope and verifying its ES256 (ECDSA P-256/SHA-256)
// signature against a caller-supplied public key, directly on
// gopkg.in/go-jose/go-jose.v2 -- the same library the teacher's web
// front end uses for exactly this concern (wfe/web-front-end.go's
// jose.ParseSigned/parsedJws.Verify). go-jose's own ES256 encoding already
// expects the raw 64-byte r‖s signature this format's CDN carries, so there
// is no DER re-framing to hand-roll here.
package jws

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"

	jose "gopkg.in/go-jose/go-jose.v2"

	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/trustpin/trustpin-go/goodkey"
)

// Verifier checks a signed envelope's signature against a single configured
// public key. It is stateless and safe for concurrent use.
type Verifier struct {
	weak *goodkey.Checker
}

// NewVerifier builds a Verifier. weak may be nil, in which case no weak-key
// rejection is performed.
func NewVerifier(weak *goodkey.Checker) *Verifier {
	return &Verifier{weak: weak}
}

// VerifyCompact parses raw as a compact JWS (the "header.payload.signature"
// form go-jose's ParseSigned expects) and verifies it was signed by
// publicKeyDER (an SPKI-encoded, or legacy 33/65-byte point, ECDSA P-256
// public key). On success it returns the decoded payload bytes.
func (v *Verifier) VerifyCompact(raw string, publicKeyDER []byte) ([]byte, error) {
	parsed, err := jose.ParseSigned(raw)
	if err != nil {
		return nil, berrors.ConfigurationValidationFailedError("signed envelope does not parse: %v", err)
	}
	if len(parsed.Signatures) != 1 {
		return nil, berrors.ConfigurationValidationFailedError(
			"signed envelope must carry exactly one signature, got %d", len(parsed.Signatures))
	}

	pub, err := ParsePublicKey(publicKeyDER)
	if err != nil {
		return nil, err
	}
	if v.weak != nil {
		spki, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, berrors.ConfigurationValidationFailedError("public key could not be re-marshaled for weak-key check: %v", err)
		}
		if v.weak.IsWeak(spki) {
			return nil, berrors.ConfigurationValidationFailedError("public key is on the known-weak-key blacklist")
		}
	}

	payload, err := parsed.Verify(pub)
	if err != nil {
		return nil, berrors.ConfigurationValidationFailedError("signature does not verify: %v", err)
	}
	return payload, nil
}

// ParsePublicKey accepts either an SPKI DER-encoded public key (preferred) or
// a bare uncompressed/compressed P-256 point (the trailing 33 or 65 bytes of
// an SPKI structure, for legacy compatibility), and returns the parsed
// *ecdsa.PublicKey.
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return nil, berrors.ConfigurationValidationFailedError("public key is not an ECDSA key")
		}
		if pub.Curve != elliptic.P256() {
			return nil, berrors.ConfigurationValidationFailedError("public key is not on curve P-256")
		}
		return pub, nil
	}

	// Fall back to a bare curve point: the trailing 33 (compressed) or 65
	// (uncompressed) bytes of what would otherwise be an SPKI structure.
	curve := elliptic.P256()
	x, y := elliptic.UnmarshalCompressed(curve, der)
	if x == nil {
		x, y = elliptic.Unmarshal(curve, der)
	}
	if x == nil {
		return nil, berrors.ConfigurationValidationFailedError("public key is neither valid SPKI DER nor a raw P-256 point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
