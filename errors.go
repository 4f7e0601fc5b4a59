package tracekit

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid tracer configuration. It is returned
// eagerly at construction or parse time, never deferred.
type ConfigError struct {
	// UnknownKeys lists every unrecognized configuration key found, not
	// just the first.
	UnknownKeys []string

	// Reason describes a missing or mistyped field when the problem is not
	// an unknown key.
	Reason string
}

func (e *ConfigError) Error() string {
	if len(e.UnknownKeys) > 0 {
		return fmt.Sprintf("tracekit: unknown config keys: %s", strings.Join(e.UnknownKeys, ", "))
	}
	return "tracekit: invalid config: " + e.Reason
}

// UnsupportedFormatError is returned by Inject and Extract when no
// propagator is registered for the requested format.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("tracekit: no propagator registered for format %q", string(e.Format))
}

// InvalidCarrierError is returned by Inject and Extract when the carrier is
// not a mutable string-keyed mapping. It is reported before any encode or
// decode attempt touches the carrier.
type InvalidCarrierError struct {
	// Op is "inject" or "extract".
	Op string

	// Carrier is the rejected value.
	Carrier interface{}
}

func (e *InvalidCarrierError) Error() string {
	return fmt.Sprintf("tracekit: %s carrier %T is not a string-keyed mapping", e.Op, e.Carrier)
}
