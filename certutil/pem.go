// Package certutil extracts the DER bytes of a leaf certificate from its
// PEM encoding (component C2). It never builds or validates a chain of
// trust -- per this engine's scope, that is the host TLS stack's job; this
// package only needs the leaf's own bytes to hash them.
package certutil

import (
	"encoding/base64"
	"strings"

	berrors "github.com/trustpin/trustpin-go/errors"
)

const (
	beginMarker = "-----BEGIN CERTIFICATE-----"
	endMarker   = "-----END CERTIFICATE-----"
)

// LeafDER returns the DER bytes of the first CERTIFICATE block in pemText.
// A bundle containing more than one certificate is accepted but only the
// first block is used, matching the non-goal of chain validation.
func LeafDER(pemText string) ([]byte, error) {
	start := strings.Index(pemText, beginMarker)
	if start == -1 {
		return nil, berrors.InvalidServerCertError("PEM missing %s marker", beginMarker)
	}
	body := pemText[start+len(beginMarker):]

	end := strings.Index(body, endMarker)
	if end == -1 {
		return nil, berrors.InvalidServerCertError("PEM missing %s marker", endMarker)
	}
	body = body[:end]

	var b64Body strings.Builder
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		b64Body.WriteString(line)
	}
	if b64Body.Len() == 0 {
		return nil, berrors.InvalidServerCertError("PEM certificate body is empty")
	}

	der, err := base64.StdEncoding.DecodeString(b64Body.String())
	if err != nil {
		return nil, berrors.InvalidServerCertError("PEM certificate body does not decode: %v", err)
	}
	if len(der) == 0 {
		return nil, berrors.InvalidServerCertError("PEM certificate decoded to zero bytes")
	}
	return der, nil
}

// WrapPEM re-encodes leaf DER bytes as a PEM block with the conventional
// 64-character line wrap, the inverse operation performed by a TLS adapter
// (component C11) before handing a certificate to Verify.
func WrapPEM(der []byte) string {
	encoded := base64.StdEncoding.EncodeToString(der)
	var sb strings.Builder
	sb.WriteString(beginMarker)
	sb.WriteByte('\n')
	for i := 0; i < len(encoded); i += 64 {
		end := i + 64
		if end > len(encoded) {
			end = len(encoded)
		}
		sb.WriteString(encoded[i:end])
		sb.WriteByte('\n')
	}
	sb.WriteString(endMarker)
	sb.WriteByte('\n')
	return sb.String()
}
