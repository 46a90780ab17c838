package sheetbars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SHEETBARS_EXPRESSION", `\[\[(.+?)\]\]`)
	t.Setenv("SHEETBARS_REPEATER_SILENT_ON_ERROR", "true")
	t.Setenv("SHEETBARS_DEFAULT_VALUE", "N/A")
	t.Setenv("SHEETBARS_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, `\[\[(.+?)\]\]`, cfg.Expression)
	assert.Equal(t, DefaultRepeatStart, cfg.RepeatStart)
	assert.Equal(t, DefaultRepeatEnd, cfg.RepeatEnd)
	assert.True(t, cfg.RepeaterSilentOnError)
	assert.Equal(t, "N/A", cfg.DefaultValue)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("bad pattern", func(t *testing.T) {
		t.Setenv("SHEETBARS_REPEAT_START", `\{\{#each(`)
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repeat start")
	})
	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("SHEETBARS_LOG_LEVEL", "trace")
		_, err := LoadConfig()
		require.Error(t, err)
	})
	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("SHEETBARS_REPEATER_SILENT_ON_ERROR", "maybe")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}

func TestSettingsCompile_EmptyFallsBackToDefaults(t *testing.T) {
	rx, err := Settings{}.compile()
	require.NoError(t, err)
	assert.Equal(t, DefaultExpression, rx.expr.String())
	assert.Equal(t, DefaultRepeatStart, rx.start.String())
	assert.Equal(t, DefaultRepeatEnd, rx.end.String())
}

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "unknown"} {
		l, err := NewLogger(lvl)
		require.NoError(t, err, lvl)
		require.NotNil(t, l)
	}
	l, _ := NewLogger("warn")
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
