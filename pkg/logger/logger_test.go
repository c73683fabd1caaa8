package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.With(Component("allocation")).Info("seats allocated",
		Email("a@example.com"),
		Int("allocated", 3),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "seats allocated", entry["message"])
	assert.Equal(t, "allocation", entry["component"])
	assert.Equal(t, "a@example.com", entry["email"])
	assert.EqualValues(t, 3, entry["allocated"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn, Format: FormatJSON})

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	// без логгера в контексте - молча ничего не пишем
	assert.NotPanics(t, func() { FromContext(context.Background()).Info("dropped") })
}
