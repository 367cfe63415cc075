package hostname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"HTTPS://API.example.COM/path?x=1", "api.example.com"},
		{"  api.example.com  ", "api.example.com"},
		{"http://Example.COM", "example.com"},
		{"example.com", "example.com"},
		{"EXAMPLE.COM/", "example.com"},
		{"https://example.com:8443/a/b", "example.com:8443"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeUnicode(t *testing.T) {
	got, err := NormalizeUnicode("HTTPS://münchen.example/path")
	require.NoError(t, err)
	assert.Equal(t, "xn--mnchen-3ya.example", got)
}

func TestNormalizeUnicodePlainASCII(t *testing.T) {
	got, err := NormalizeUnicode("API.Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", got)
}

func TestValidateSyntaxAcceptsNormalDomain(t *testing.T) {
	assert.True(t, ValidateSyntax("api.example.com"))
}

func TestValidateSyntaxRejectsOverlongLabel(t *testing.T) {
	label := ""
	for i := 0; i < 70; i++ {
		label += "a"
	}
	assert.False(t, ValidateSyntax(label+".example.com"))
}

func TestNormalizeIdempotent(t *testing.T) {
	host := "HTTPS://API.Example.com/path"
	once := Normalize(host)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize is not idempotent: %q != %q", once, twice)
	}
}
