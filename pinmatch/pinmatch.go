// Package pinmatch implements the pin matcher (component C7): given a
// leaf certificate's DER bytes and the DomainEntry a caller's host resolved
// to, it decides Ok, PinsMismatch, or AllPinsExpired. Expired pins never
// cause a mismatch outcome, distinguishing a stale-policy maintenance
// problem from an actual interception attempt.
package pinmatch

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"

	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/trustpin/trustpin-go/log"
	"github.com/trustpin/trustpin-go/policy"
)

// Match hashes der under each non-expired pin's algorithm and compares
// against entry.Pins in order, for the given host (used only for logging)
// and now (unix seconds, used for expiry checks).
//
// Returns nil on a match, *errors.PinError{AllPinsExpired} if every pin in
// entry had expired, or *errors.PinError{PinsMismatch} if at least one
// unexpired pin existed but none matched.
func Match(host string, der []byte, entry *policy.DomainEntry, now int64) error {
	anyUnexpired := false

	for _, pin := range entry.Pins {
		if pin.Expired(now) {
			continue
		}
		anyUnexpired = true

		digest, ok := hashFor(pin.Algorithm, der)
		if !ok {
			log.Errorf("host %s: pin uses unknown algorithm %q, skipping", host, pin.Algorithm)
			continue
		}

		if base64.StdEncoding.EncodeToString(digest) == pin.Value {
			return nil
		}
	}

	if !anyUnexpired {
		return berrors.AllPinsExpiredError("host %s: every configured pin has expired", host)
	}
	return berrors.PinsMismatchError("host %s: certificate matched none of the configured pins", host)
}

func hashFor(alg policy.Algorithm, der []byte) ([]byte, bool) {
	switch alg {
	case policy.SHA256:
		sum := sha256.Sum256(der)
		return sum[:], true
	case policy.SHA512:
		sum := sha512.Sum512(der)
		return sum[:], true
	default:
		return nil, false
	}
}
