package tracekit

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/zoobzio/clockz"
)

// Config configures a Tracer. ServiceName is the only required field; zero
// values elsewhere take defaults.
type Config struct {
	// ServiceName names the instrumented service. Required.
	ServiceName string

	// Disabled turns span reporting off; spans are still created and
	// parented so instrumented code behaves identically.
	Disabled bool

	// Debug turns on strict configuration checking in ParseConfig and
	// defect logging at debug level.
	Debug bool

	// AgentURL is the collector endpoint for the default AgentWriter.
	AgentURL string

	// FlushInterval is the default AgentWriter flush cadence.
	FlushInterval time.Duration

	// SampleRate is the kept fraction of traces in (0, 1]. Zero or out of
	// range means keep everything. Ignored when Sampler is set.
	SampleRate float64

	// Sampler overrides the rate-based sampler.
	Sampler Sampler

	// Recorder overrides the trace-assembling recorder entirely. When set,
	// Writer and the agent settings are ignored.
	Recorder Recorder

	// Writer receives completed traces from the default recorder. Nil
	// means an AgentWriter built from AgentURL and FlushInterval.
	Writer TraceWriter

	// Clock overrides the real clock, for deterministic tests.
	Clock clockz.Clock

	// Logger receives defect reports (dropped traces, late spans,
	// transport failures). Nil discards them.
	Logger *slog.Logger
}

// configField is one entry of the closed configuration schema.
type configField struct {
	kind     string
	required bool
}

// configSchema is the closed set of keys ParseConfig accepts.
var configSchema = map[string]configField{
	"service_name":   {kind: "string", required: true},
	"enabled":        {kind: "bool"},
	"debug":          {kind: "bool"},
	"agent_url":      {kind: "string"},
	"flush_interval": {kind: "duration"},
	"sample_rate":    {kind: "float"},
}

// ParseConfig builds a Config from a JSON document, validating it against
// the closed schema eagerly.
//
// Unknown keys are tolerated so that configuration can travel between
// client versions, unless "debug" is set, in which case every unknown key
// is collected into a single ConfigError. A missing service name or a
// mistyped value always fails.
func ParseConfig(data []byte) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), kjson.Parser()); err != nil {
		return Config{}, &ConfigError{Reason: "malformed config document: " + err.Error()}
	}

	var unknown []string
	for _, key := range k.Keys() {
		if _, ok := configSchema[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 && k.Bool("debug") {
		sort.Strings(unknown)
		return Config{}, &ConfigError{UnknownKeys: unknown}
	}

	for key, field := range configSchema {
		if !k.Exists(key) {
			if field.required {
				return Config{}, &ConfigError{Reason: key + " is required"}
			}
			continue
		}
		if err := checkConfigType(key, field.kind, k.Get(key)); err != nil {
			return Config{}, err
		}
	}
	if k.String("service_name") == "" {
		return Config{}, &ConfigError{Reason: "service_name is required"}
	}

	cfg := Config{
		ServiceName: k.String("service_name"),
		Debug:       k.Bool("debug"),
		AgentURL:    k.String("agent_url"),
		SampleRate:  k.Float64("sample_rate"),
	}
	if k.Exists("enabled") && !k.Bool("enabled") {
		cfg.Disabled = true
	}
	if k.Exists("flush_interval") {
		interval, err := time.ParseDuration(k.String("flush_interval"))
		if err != nil {
			return Config{}, &ConfigError{Reason: fmt.Sprintf("flush_interval: %v", err)}
		}
		cfg.FlushInterval = interval
	}
	return cfg, nil
}

// checkConfigType validates one raw JSON value against its schema kind.
func checkConfigType(key, kind string, value interface{}) error {
	ok := false
	switch kind {
	case "string", "duration":
		_, ok = value.(string)
	case "bool":
		_, ok = value.(bool)
	case "float":
		switch value.(type) {
		case float64, int, int64:
			ok = true
		}
	}
	if !ok {
		return &ConfigError{Reason: fmt.Sprintf("%s: expected %s, got %T", key, kind, value)}
	}
	return nil
}
