package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		lvl, ok := ParseLevel(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, lvl, raw)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
	_, ok = ParseLevel("")
	assert.False(t, ok)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogTimestamp, "nope")
	cfg := Default()
	ApplyEnv(&cfg)
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.Timestamp)
}

func TestNew(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	b := new(bytes.Buffer)
	log := New(b, Config{Level: "warn", NoColor: true})
	log.Info().Msg("hidden")
	log.Warn().Str("module", "greeter").Msg("shown")
	assert.NotContains(t, b.String(), "hidden")
	assert.Contains(t, b.String(), "shown")
	assert.Contains(t, b.String(), "module=greeter")
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}
