package policy

import (
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// FindWildcard extends Find with opt-in wildcard matching: callers who want
// a single DomainEntry to cover a whole subdomain tree can register it as
// "*.parent.example" and look it up here instead of through Find. The
// default engine verify path still calls Find, not this -- wildcard domains
// are an explicit extension, not the default contract.
//
// A wildcard entry only matches canonical if stripping canonical's
// leftmost label leaves at least the registrable domain (the eTLD+1, per
// the public suffix list): "*.example.com" covers "api.example.com", but a
// "*.com" entry never matches, since for "example.com" the parent "com" is
// shorter than the registrable domain publicsuffix.Domain reports for it.
func (p *Policy) FindWildcard(canonical string) (*DomainEntry, error) {
	entry, err := p.Find(canonical)
	if err != nil || entry != nil {
		return entry, err
	}

	idx := strings.IndexByte(canonical, '.')
	if idx == -1 {
		return nil, nil
	}
	parent := canonical[idx+1:]

	registrable, err := publicsuffix.Domain(canonical)
	if err != nil {
		// canonical has no registrable domain of its own (e.g. it is
		// itself a public suffix); no wildcard can legitimately cover it.
		return nil, nil
	}
	if len(parent) < len(registrable) {
		return nil, nil
	}

	return p.Find("*." + parent)
}
