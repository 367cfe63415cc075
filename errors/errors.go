// Package errors defines the closed taxonomy of outcomes the pinning engine
// can return. Every operation that can fail returns one of these kinds, or
// a nil error for a successful pin match.
package errors

import (
	"encoding/json"
	"fmt"
)

// Kind is a coarse category for a PinError. The set is closed: callers should
// switch on it exhaustively rather than string-matching Error().
type Kind int

const (
	// InvalidProjectConfig covers empty/unparsable credentials, SDK use
	// before setup, and a policy with more than one entry for one domain.
	InvalidProjectConfig Kind = iota
	// ErrorFetchingPinningInfo means every fetch attempt failed and no
	// usable cache (fresh or stale) was available.
	ErrorFetchingPinningInfo
	// ConfigurationValidationFailed means the JWS was malformed, its
	// signature didn't verify, or the payload JSON didn't parse.
	ConfigurationValidationFailed
	// InvalidServerCert means the supplied PEM had no CERTIFICATE block,
	// or its body didn't decode.
	InvalidServerCert
	// DomainNotRegistered means strict mode and the host has no policy entry.
	DomainNotRegistered
	// PinsMismatch means at least one unexpired pin exists for the host but
	// none matched the presented certificate.
	PinsMismatch
	// AllPinsExpired means every pin configured for the host has expired.
	AllPinsExpired
)

func (k Kind) String() string {
	switch k {
	case InvalidProjectConfig:
		return "InvalidProjectConfig"
	case ErrorFetchingPinningInfo:
		return "ErrorFetchingPinningInfo"
	case ConfigurationValidationFailed:
		return "ConfigurationValidationFailed"
	case InvalidServerCert:
		return "InvalidServerCert"
	case DomainNotRegistered:
		return "DomainNotRegistered"
	case PinsMismatch:
		return "PinsMismatch"
	case AllPinsExpired:
		return "AllPinsExpired"
	default:
		return "Unknown"
	}
}

// PinError is the concrete error type returned by every exported operation
// of this module.
type PinError struct {
	Kind   Kind
	Detail string
}

func (pe *PinError) Error() string {
	return fmt.Sprintf("%s: %s", pe.Kind, pe.Detail)
}

// New builds a PinError of the given kind with a formatted detail message.
func New(kind Kind, msg string, args ...interface{}) error {
	return &PinError{
		Kind:   kind,
		Detail: fmt.Sprintf(msg, args...),
	}
}

// Is reports whether err is a PinError of the given kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*PinError)
	if !ok {
		return false
	}
	return pe.Kind == kind
}

func InvalidProjectConfigError(msg string, args ...interface{}) error {
	return New(InvalidProjectConfig, msg, args...)
}

func ErrorFetchingPinningInfoError(msg string, args ...interface{}) error {
	return New(ErrorFetchingPinningInfo, msg, args...)
}

func ConfigurationValidationFailedError(msg string, args ...interface{}) error {
	return New(ConfigurationValidationFailed, msg, args...)
}

func InvalidServerCertError(msg string, args ...interface{}) error {
	return New(InvalidServerCert, msg, args...)
}

func DomainNotRegisteredError(msg string, args ...interface{}) error {
	return New(DomainNotRegistered, msg, args...)
}

func PinsMismatchError(msg string, args ...interface{}) error {
	return New(PinsMismatch, msg, args...)
}

func AllPinsExpiredError(msg string, args ...interface{}) error {
	return New(AllPinsExpired, msg, args...)
}

// wireError is the JSON representation of a PinError used by the CLI to
// print a stable, machine-readable error code alongside the human message.
type wireError struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// MarshalWire encodes err as stable JSON if it is a PinError, and as a bare
// InternalServer-style blob otherwise. Modeled on the wrapError/unwrapError
// switch-over-concrete-type idiom used to move typed errors across a wire.
func MarshalWire(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(wireError{})
	}
	pe, ok := err.(*PinError)
	if !ok {
		return json.Marshal(wireError{Kind: "Unknown", Detail: err.Error()})
	}
	return json.Marshal(wireError{Kind: pe.Kind.String(), Detail: pe.Detail})
}

// UnmarshalWire reverses MarshalWire, reconstructing a *PinError from its
// wire encoding. Unrecognized kind strings become a plain error.
func UnmarshalWire(data []byte) error {
	var we wireError
	if err := json.Unmarshal(data, &we); err != nil {
		return err
	}
	if we.Detail == "" && we.Kind == "" {
		return nil
	}
	switch we.Kind {
	case InvalidProjectConfig.String():
		return InvalidProjectConfigError(we.Detail)
	case ErrorFetchingPinningInfo.String():
		return ErrorFetchingPinningInfoError(we.Detail)
	case ConfigurationValidationFailed.String():
		return ConfigurationValidationFailedError(we.Detail)
	case InvalidServerCert.String():
		return InvalidServerCertError(we.Detail)
	case DomainNotRegistered.String():
		return DomainNotRegisteredError(we.Detail)
	case PinsMismatch.String():
		return PinsMismatchError(we.Detail)
	case AllPinsExpired.String():
		return AllPinsExpiredError(we.Detail)
	default:
		return fmt.Errorf("%s", we.Detail)
	}
}
