// Package hostname implements the hostname normalizer (component C6): a
// pure, allocation-light function with no I/O, since it runs on every
// verify call. The core Normalize contract is plain ASCII lowercasing plus
// scheme/path stripping -- a DomainEntry.domain is always stored the same
// way, so byte-exact comparison is sufficient for the engine's own use.
// NormalizeUnicode and ValidateSyntax are opt-in extensions for callers
// whose policy domains may be IDN labels or who want early rejection of
// syntactically invalid hostnames before they ever reach a pin lookup.
package hostname

import (
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	berrors "github.com/trustpin/trustpin-go/errors"
)

// Normalize reduces host to the canonical form compared against
// DomainEntry.Domain: lowercase, scheme stripped, path stripped, trimmed.
func Normalize(host string) string {
	h := strings.ToLower(host)

	switch {
	case strings.HasPrefix(h, "https://"):
		h = h[len("https://"):]
	case strings.HasPrefix(h, "http://"):
		h = h[len("http://"):]
	}

	if idx := strings.IndexByte(h, '/'); idx != -1 {
		h = h[:idx]
	}

	return strings.TrimSpace(h)
}

// NormalizeUnicode runs Normalize and then converts any internationalized
// label to its ASCII (punycode) form via IDNA, lowercasing with the Unicode
// case-folding rules rather than byte-wise ASCII lowercasing. Use this when
// a policy's domains may themselves be registered as IDN names; the plain
// Normalize stays the engine's default because the core contract only
// promises ASCII lowercasing.
func NormalizeUnicode(host string) (string, error) {
	ascii, err := idna.ToASCII(Normalize(host))
	if err != nil {
		return "", berrors.InvalidProjectConfigError("hostname %q is not a valid IDNA name: %v", host, err)
	}
	return cases.Lower(language.Und).String(ascii), nil
}

// ValidateSyntax reports whether canonical (the output of Normalize) is a
// syntactically valid DNS name, using miekg/dns's own name-validation
// logic rather than reimplementing RFC 1035's label-length and character
// rules by hand.
func ValidateSyntax(canonical string) bool {
	_, ok := dns.IsDomainName(canonical)
	return ok
}
