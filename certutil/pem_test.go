package certutil

import (
	"testing"

	berrors "github.com/trustpin/trustpin-go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafDERRoundTrip(t *testing.T) {
	der := make([]byte, 300)
	for i := range der {
		der[i] = byte(i)
	}
	pemText := WrapPEM(der)
	got, err := LeafDER(pemText)
	require.NoError(t, err)
	assert.Equal(t, der, got)
}

func TestLeafDERUsesFirstBlockOfBundle(t *testing.T) {
	first := []byte{1, 2, 3, 4, 5}
	second := []byte{9, 9, 9}
	bundle := WrapPEM(first) + WrapPEM(second)

	got, err := LeafDER(bundle)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestLeafDERMissingMarkers(t *testing.T) {
	_, err := LeafDER("not a pem")
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidServerCert))
}

func TestLeafDERMissingEndMarker(t *testing.T) {
	_, err := LeafDER("-----BEGIN CERTIFICATE-----\nAAAA\n")
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidServerCert))
}

func TestLeafDEREmptyBody(t *testing.T) {
	_, err := LeafDER("-----BEGIN CERTIFICATE-----\n\n-----END CERTIFICATE-----\n")
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidServerCert))
}

func TestLeafDERUndecodableBody(t *testing.T) {
	_, err := LeafDER("-----BEGIN CERTIFICATE-----\n!!!not-base64!!!\n-----END CERTIFICATE-----\n")
	require.Error(t, err)
	assert.True(t, berrors.Is(err, berrors.InvalidServerCert))
}
