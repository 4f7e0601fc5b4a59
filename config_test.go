package tracekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigFull(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"service_name": "billing",
		"enabled": true,
		"debug": true,
		"agent_url": "http://agent:7756/v0.1/traces",
		"flush_interval": "500ms",
		"sample_rate": 0.25
	}`))
	require.NoError(t, err)

	assert.Equal(t, "billing", cfg.ServiceName)
	assert.False(t, cfg.Disabled)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://agent:7756/v0.1/traces", cfg.AgentURL)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 0.25, cfg.SampleRate)
}

func TestParseConfigMinimal(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"service_name": "billing"}`))
	require.NoError(t, err)

	assert.Equal(t, "billing", cfg.ServiceName)
	assert.False(t, cfg.Disabled)
	assert.Zero(t, cfg.FlushInterval)
}

func TestParseConfigMissingServiceName(t *testing.T) {
	for _, doc := range []string{`{}`, `{"service_name": ""}`, `{"debug": true}`} {
		_, err := ParseConfig([]byte(doc))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr, "doc: %s", doc)
		assert.Contains(t, cfgErr.Error(), "service_name")
	}
}

func TestParseConfigMalformedDocument(t *testing.T) {
	_, err := ParseConfig([]byte(`{not json`))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseConfigUnknownKeysToleratedByDefault(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"service_name": "billing",
		"experimental_flag": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, "billing", cfg.ServiceName)
}

func TestParseConfigUnknownKeysRejectedInDebug(t *testing.T) {
	_, err := ParseConfig([]byte(`{
		"service_name": "billing",
		"debug": true,
		"zeta": 1,
		"alpha": 2
	}`))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	// Every unknown key is reported at once, sorted for stable output.
	assert.Equal(t, []string{"alpha", "zeta"}, cfgErr.UnknownKeys)
}

func TestParseConfigTypeMismatchAlwaysFails(t *testing.T) {
	cases := map[string]string{
		"service_name not a string": `{"service_name": 123}`,
		"enabled not a bool":        `{"service_name": "billing", "enabled": "yes"}`,
		"sample_rate not a number":  `{"service_name": "billing", "sample_rate": "half"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestParseConfigBadFlushInterval(t *testing.T) {
	_, err := ParseConfig([]byte(`{"service_name": "billing", "flush_interval": "soon"}`))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "flush_interval")
}

func TestParseConfigEnabledFalseDisablesTracer(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"service_name": "billing", "enabled": false}`))
	require.NoError(t, err)
	assert.True(t, cfg.Disabled)

	tracer, err := New(cfg)
	require.NoError(t, err)
	defer tracer.Close()

	span := tracer.StartSpan("test-operation")
	assert.NotZero(t, span.Context().TraceID(), "disabled tracer still assigns identity")
	span.Finish()
}
