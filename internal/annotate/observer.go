package annotate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/minutes-cli/internal/model"
)

// Observer receives per-row progress notifications. Calls may arrive from
// several goroutines when the batch runs concurrently.
type Observer interface {
	RowStarted(idx, total int, row model.Row)
	RowFinished(idx, total int, res model.Result)
}

type nopObserver struct{}

func (nopObserver) RowStarted(int, int, model.Row)    {}
func (nopObserver) RowFinished(int, int, model.Result) {}

// previewRunes caps how much of an annotation is echoed to the log.
const previewRunes = 100

// LogObserver reports progress through a zap logger.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an Observer that logs to log, or to the global
// logger when log is nil.
func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.L()
	}
	return &LogObserver{log: log}
}

// RowStarted implements Observer.
func (o *LogObserver) RowStarted(idx, total int, row model.Row) {
	o.log.Info(fmt.Sprintf("processing %d/%d", idx+1, total),
		zap.String("id", row.ID),
	)
}

// RowFinished implements Observer.
func (o *LogObserver) RowFinished(idx, total int, res model.Result) {
	if res.Succeeded() {
		fields := []zap.Field{
			zap.String("id", res.ID),
			zap.String("annotation", preview(*res.Annotation)),
			zap.Int64("tokens", res.Usage.Total()),
		}
		if res.StopReason != "" {
			fields = append(fields, zap.String("stop_reason", res.StopReason))
		}
		if truncated(res.StopReason) {
			o.log.Warn("main reason truncated at max_tokens", fields...)
			return
		}
		o.log.Info("main reason", fields...)
		return
	}
	o.log.Warn("row failed",
		zap.String("id", res.ID),
		zap.Int("row", idx+1),
		zap.Int("total", total),
		zap.String("kind", res.Kind),
		zap.String("error", *res.Error),
	)
}

// truncated reports whether generation hit the token limit. Anthropic says
// "max_tokens", OpenAI says "length".
func truncated(stopReason string) bool {
	return stopReason == "max_tokens" || stopReason == "length"
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
