// Package cmd holds the glue shared by the trustpin CLI subcommands: the
// typed config file format (component C13) and the StatsAndLogging-style
// bootstrap helpers (borrowed from the teacher's cmd.Config /
// cmd.StatsAndLogging split, adapted to a single-process client library
// rather than a fleet of RPC services).
package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/letsencrypt/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/trustpin/trustpin-go/configstore"
)

// TrustPinConfig is the block of an EngineConfig that configures the
// pinning engine itself: the project credentials, the CDN base, and
// retry/cache schedule fields. The trustpin command applies CDNBase only;
// HTTPTimeout, CacheTTL, StaleMaxAge and RetryBackoff are decoded but not
// passed to the engine, which uses configstore's fixed schedule.
type TrustPinConfig struct {
	CDNBase      string         `json:"cdnBase" yaml:"cdnBase"`
	Organization string         `json:"organization" yaml:"organization" validate:"required"`
	Project      string         `json:"project" yaml:"project" validate:"required"`
	PublicKey    ConfigSecret   `json:"publicKey" yaml:"publicKey" validate:"required"`
	Mode         string         `json:"mode" yaml:"mode" validate:"omitempty,oneof=Strict Permissive"`
	HTTPTimeout  ConfigDuration `json:"httpTimeout" yaml:"httpTimeout"`
	CacheTTL     ConfigDuration `json:"cacheTTL" yaml:"cacheTTL"`
	StaleMaxAge  ConfigDuration `json:"staleMaxAge" yaml:"staleMaxAge"`
	RetryBackoff ConfigDuration `json:"retryBackoff" yaml:"retryBackoff"`
}

// ModeValue parses the Mode string field, defaulting to Strict when empty.
func (c TrustPinConfig) ModeValue() configstore.Mode {
	if strings.EqualFold(c.Mode, "Permissive") {
		return configstore.Permissive
	}
	return configstore.Strict
}

// MetricsConfig configures the /metrics debug server (C15's serve-metrics
// subcommand).
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// SyslogConfig controls C9's log sink, named after the teacher's
// SyslogConfig even though this library logs to an io.Writer rather than
// an actual syslog socket (a client library has no business opening a
// syslog connection on the caller's behalf).
type SyslogConfig struct {
	StdoutLevel string `json:"stdoutLevel" yaml:"stdoutLevel"`
}

// EngineConfig is the top-level shape of a trustpin config file, mirroring
// the teacher's single-struct-per-process Config convention.
type EngineConfig struct {
	TrustPin TrustPinConfig `json:"trustPin" yaml:"trustPin" validate:"required"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Syslog   SyslogConfig   `json:"syslog" yaml:"syslog"`
}

// ReadConfigFile unmarshals filename into out, choosing YAML or JSON by
// file extension (teacher config files are JSON-only; YAML is enrichment
// for callers who keep the rest of their config tree in YAML).
func ReadConfigFile(filename string, out interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		return yaml.Unmarshal(data, out)
	}
	return json.Unmarshal(data, out)
}

var validate = validator.New()

// ValidateConfig runs struct-tag validation over a decoded config value.
func ValidateConfig(cfg interface{}) error {
	return validate.Struct(cfg)
}

// ConfigDuration is time.Duration with JSON/YAML (de)serialization to and
// from its string form (e.g. "30s"), so config files stay human-readable.
type ConfigDuration struct {
	time.Duration
}

// ErrDurationMustBeString is returned when a non-string value is presented
// to be deserialized as a ConfigDuration.
var ErrDurationMustBeString = errors.New("cannot unmarshal something other than a string into a ConfigDuration")

// UnmarshalJSON parses a string into a ConfigDuration using
// time.ParseDuration.
func (d *ConfigDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return ErrDurationMustBeString
		}
		return err
	}
	dur, err := time.ParseDuration(s)
	d.Duration = dur
	return err
}

// MarshalJSON returns the string form of the duration.
func (d ConfigDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalYAML uses the same format as JSON, called by the YAML parser.
func (d *ConfigDuration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ConfigSecret is a string-valued config field. If its value starts with
// "secret:", the remainder is treated as a file path and the field's real
// value is read from that file, with trailing newlines trimmed -- so a
// project's public key or credentials can live outside the config file
// itself (e.g. mounted from a secret store).
type ConfigSecret string

const secretPrefix = "secret:"

var errSecretMustBeString = errors.New("cannot unmarshal something other than a string into a ConfigSecret")

// UnmarshalJSON unmarshals a ConfigSecret.
func (c *ConfigSecret) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return errSecretMustBeString
		}
		return err
	}
	return c.resolve(s)
}

// UnmarshalYAML unmarshals a ConfigSecret from YAML.
func (c *ConfigSecret) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return c.resolve(s)
}

func (c *ConfigSecret) resolve(s string) error {
	if !strings.HasPrefix(s, secretPrefix) {
		*c = ConfigSecret(s)
		return nil
	}
	contents, err := os.ReadFile(s[len(secretPrefix):])
	if err != nil {
		return err
	}
	*c = ConfigSecret(strings.TrimRight(string(contents), "\n"))
	return nil
}
