// Package policy defines the typed representation of a pinning policy
// document (component C3): pins, the domains they apply to, and the signed
// envelope that carries them over the wire. Deserialization is permissive
// about unknown fields (forward compatible) and strict about the fields it
// does recognize.
package policy

import (
	"encoding/json"
	"strings"

	berrors "github.com/trustpin/trustpin-go/errors"
	"golang.org/x/exp/slices"
)

// Algorithm identifies the hash function a Pin was computed with.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Pin is a single pinned hash for a domain, with an optional expiration.
type Pin struct {
	Algorithm Algorithm `json:"alg"`
	Value     string    `json:"pin"`
	ExpiresAt *int64    `json:"expires_at,omitempty"`
}

// Expired reports whether this pin's expiry has passed as of now (unix
// seconds). A pin with no ExpiresAt never expires.
func (p Pin) Expired(now int64) bool {
	return p.ExpiresAt != nil && *p.ExpiresAt < now
}

// DomainEntry is the set of pins configured for one hostname.
type DomainEntry struct {
	Domain      string `json:"domain"`
	LastUpdated int64  `json:"last_updated"`
	Pins        []Pin  `json:"pins"`
}

// Policy is the decoded payload of a signed envelope: the full set of
// domains and pins a project has configured, plus informational validity
// bounds.
type Policy struct {
	Version int           `json:"version"`
	Domains []DomainEntry `json:"domains"`
	IssuedAt int64        `json:"iat"`
	NotBefore int64       `json:"nbf"`
	Expires  *int64       `json:"exp,omitempty"`
}

// Validate enforces the structural invariants a Policy must hold once
// decoded: every domain entry has a non-empty, lowercase domain and at
// least one pin, and no domain appears twice.
func (p *Policy) Validate() error {
	seen := make([]string, 0, len(p.Domains))
	for _, entry := range p.Domains {
		if entry.Domain == "" {
			return berrors.ConfigurationValidationFailedError("policy has a domain entry with an empty domain")
		}
		if entry.Domain != strings.ToLower(entry.Domain) {
			return berrors.ConfigurationValidationFailedError("policy domain %q is not lowercase", entry.Domain)
		}
		if len(entry.Pins) == 0 {
			return berrors.ConfigurationValidationFailedError("policy domain %q has no pins", entry.Domain)
		}
		if slices.Contains(seen, entry.Domain) {
			return berrors.InvalidProjectConfigError("policy has more than one entry for domain %q", entry.Domain)
		}
		seen = append(seen, entry.Domain)
	}
	return nil
}

// Find returns the unique DomainEntry for canonical, if any. A policy that
// passed Validate can never have more than one match, but Find is also used
// before Validate runs (e.g. while probing a freshly-parsed policy), so it
// still reports a multiple-match error defensively.
func (p *Policy) Find(canonical string) (*DomainEntry, error) {
	var match *DomainEntry
	for i := range p.Domains {
		if p.Domains[i].Domain == canonical {
			if match != nil {
				return nil, berrors.InvalidProjectConfigError("policy has more than one entry for domain %q", canonical)
			}
			match = &p.Domains[i]
		}
	}
	return match, nil
}

// ParsePayload decodes raw JSON bytes into a validated Policy.
func ParsePayload(raw []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, berrors.ConfigurationValidationFailedError("policy payload is not valid JSON: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
