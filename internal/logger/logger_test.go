package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsCarryValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer Init(false)

	Info("page processed",
		String("file", "paper.pdf"),
		Int("page", 3),
		Float64("progress", 42.5),
		Bool("cached", true))

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "page processed", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "paper.pdf", fields["file"])
	assert.Equal(t, int64(3), fields["page"])
	assert.Equal(t, 42.5, fields["progress"])
	assert.Equal(t, true, fields["cached"])
}

func TestErrorAppendsCause(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer Init(false)

	Error("translation failed", assert.AnError, String("stage", "dispatch"))

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "dispatch", fields["stage"])
	assert.Contains(t, fields, "error")
}

func TestWarnAppendsCause(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer Init(false)

	Warn("retrying download", assert.AnError, Int("attempt", 2))
	Warn("stream truncated", nil, String("page", "4"))

	entries := logs.All()
	assert.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, int64(2), fields["attempt"])
	assert.Contains(t, fields, "error")

	fields = entries[1].ContextMap()
	assert.Equal(t, "4", fields["page"])
	assert.NotContains(t, fields, "error")
}

func TestDebugSuppressedByDefaultLevel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	defer Init(false)

	Debug("noise")
	Info("signal")

	assert.Len(t, logs.All(), 1)
	assert.Equal(t, "signal", logs.All()[0].Message)
}
