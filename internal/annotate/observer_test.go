package annotate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/minutes-cli/internal/model"
)

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs := NewLogObserver(zap.New(core))

	obs.RowStarted(0, 2, model.Row{ID: "2020-01"})
	obs.RowFinished(0, 2, model.Success("2020-01", strings.Repeat("a", 150), model.Usage{OutputTokens: 3}))
	failed := model.Failure("2020-02", "timeout", model.Usage{})
	failed.Kind = string(FailureTransient)
	obs.RowFinished(1, 2, failed)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "processing 1/2", entries[0].Message)
	assert.Equal(t, "2020-01", entries[0].ContextMap()["id"])

	ann := entries[1].ContextMap()["annotation"].(string)
	assert.Equal(t, strings.Repeat("a", 100)+"...", ann)

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "transient", entries[2].ContextMap()["kind"])
	assert.Equal(t, "timeout", entries[2].ContextMap()["error"])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	assert.Equal(t, strings.Repeat("é", 100)+"...", preview(strings.Repeat("é", 101)))
}

func TestLogObserver_StopReason(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs := NewLogObserver(zap.New(core))

	done := model.Success("2020-01", "Domestic", model.Usage{})
	done.StopReason = "end_turn"
	obs.RowFinished(0, 2, done)

	cut := model.Success("2020-02", "International because", model.Usage{OutputTokens: 200})
	cut.StopReason = "length"
	obs.RowFinished(1, 2, cut)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "end_turn", entries[0].ContextMap()["stop_reason"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "main reason truncated at max_tokens", entries[1].Message)
	assert.Equal(t, "length", entries[1].ContextMap()["stop_reason"])
}

func TestTruncated(t *testing.T) {
	assert.True(t, truncated("max_tokens"))
	assert.True(t, truncated("length"))
	assert.False(t, truncated("end_turn"))
	assert.False(t, truncated("stop"))
	assert.False(t, truncated(""))
}
