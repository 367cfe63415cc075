package b64url

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for _, data := range [][]byte{
		[]byte(""),
		[]byte("f"),
		[]byte("fo"),
		[]byte("foo"),
		[]byte("foob"),
		[]byte("fooba"),
		[]byte("foobar"),
		{0xff, 0xfe, 0xfd, 0x00, 0x01},
	} {
		encoded := Encode(data)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, data, decoded)
	}
}

func TestPaddingLengths(t *testing.T) {
	// "fo" -> standard base64 "Zm8=", url form drops the padding.
	decoded, err := Decode("Zm8")
	require.NoError(t, err)
	assert.Equal(t, []byte("fo"), decoded)
}

func TestInvalidLengthRejected(t *testing.T) {
	// len mod 4 == 1 can never be valid base64.
	_, err := Decode("abcde")
	require.Error(t, err)
}

func TestURLSafeSubstitutions(t *testing.T) {
	// 0xff, 0xff, 0xfe standard-encodes to "///+", which contains '+' and
	// '/'; the url alphabet must use '-' and '_' instead.
	data := []byte{0xff, 0xff, 0xfe}
	encoded := Encode(data)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeInvalidCharacters(t *testing.T) {
	_, err := Decode("!!!!")
	require.Error(t, err)
}
