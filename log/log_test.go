package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Error)

	l.Debugf("should not appear")
	l.Infof("should not appear either")
	l.Errorf("boom %d", 1)

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "[ERROR] boom 1")
	assert.True(t, strings.HasPrefix(out, "TrustPin ["))
}

func TestNoneSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, None)

	l.Errorf("should never show up")
	assert.Empty(t, buf.String())
}

func TestDebugShowsAll(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Debug)

	l.Errorf("e")
	l.Infof("i")
	l.Debugf("d")

	out := buf.String()
	assert.Contains(t, out, "[ERROR] e")
	assert.Contains(t, out, "[INFO] i")
	assert.Contains(t, out, "[DEBUG] d")
}

func TestSetLevelIsLive(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, None)
	l.Errorf("dropped")
	assert.Empty(t, buf.String())

	l.SetLevel(Error)
	l.Errorf("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"error": Error, "info": Info, "debug": Debug, "none": None} {
		got, err := ParseLevel(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}
