package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndIs(t *testing.T) {
	for _, tc := range []struct {
		kind Kind
		ctor func(string, ...interface{}) error
	}{
		{InvalidProjectConfig, InvalidProjectConfigError},
		{ErrorFetchingPinningInfo, ErrorFetchingPinningInfoError},
		{ConfigurationValidationFailed, ConfigurationValidationFailedError},
		{InvalidServerCert, InvalidServerCertError},
		{DomainNotRegistered, DomainNotRegisteredError},
		{PinsMismatch, PinsMismatchError},
		{AllPinsExpired, AllPinsExpiredError},
	} {
		err := tc.ctor("detail %d", 1)
		assert.True(t, Is(err, tc.kind), "expected kind %s", tc.kind)
		for _, other := range []Kind{InvalidProjectConfig, PinsMismatch, AllPinsExpired} {
			if other == tc.kind {
				continue
			}
			assert.False(t, Is(err, other))
		}
		assert.Equal(t, "detail 1", err.(*PinError).Detail)
	}
}

func TestIsRejectsPlainErrors(t *testing.T) {
	assert.False(t, Is(assertError("boom"), PinsMismatch))
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestWireRoundTrip(t *testing.T) {
	orig := PinsMismatchError("no pin for %s", "api.example.com")
	data, err := MarshalWire(orig)
	require.NoError(t, err)

	roundTripped := UnmarshalWire(data)
	require.Error(t, roundTripped)
	assert.True(t, Is(roundTripped, PinsMismatch))
	assert.Equal(t, orig.(*PinError).Detail, roundTripped.(*PinError).Detail)
}

func TestWireRoundTripNil(t *testing.T) {
	data, err := MarshalWire(nil)
	require.NoError(t, err)
	assert.NoError(t, UnmarshalWire(data))
}

func TestWireUnknownKind(t *testing.T) {
	got := UnmarshalWire([]byte(`{"kind":"SomethingNew","detail":"mystery"}`))
	require.Error(t, got)
	assert.False(t, Is(got, PinsMismatch))
	assert.Equal(t, "mystery", got.Error())
}
