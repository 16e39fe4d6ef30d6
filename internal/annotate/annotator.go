// Package annotate runs the row-wise annotation pass: one provider call per
// row, per-row failure capture, and an output table aligned with the input.
package annotate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/minutes-cli/internal/model"
)

// Annotator produces a completion for a single piece of text. Implementations
// make exactly one provider request per call.
type Annotator interface {
	Annotate(ctx context.Context, p Params, text string) (Completion, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(ctx context.Context, p Params, text string) (Completion, error)

// Annotate implements Annotator.
func (f AnnotatorFunc) Annotate(ctx context.Context, p Params, text string) (Completion, error) {
	return f(ctx, p, text)
}

// Completion is the raw provider output for one row.
type Completion struct {
	Text string
	// StopReason is the provider's reason for ending generation, e.g.
	// "end_turn", "stop", "max_tokens" or "length".
	StopReason string
	Usage      model.Usage
}

// Params are the fixed generation settings shared by every row of a run.
type Params struct {
	System      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Validate checks that the parameters can be sent to a provider.
func (p Params) Validate() error {
	var problems []string
	if strings.TrimSpace(p.System) == "" {
		problems = append(problems, "system instruction is empty")
	}
	if strings.TrimSpace(p.Model) == "" {
		problems = append(problems, "model is empty")
	}
	if p.MaxTokens <= 0 {
		problems = append(problems, "max tokens must be positive")
	}
	if p.Temperature < 0 {
		problems = append(problems, "temperature must not be negative")
	}
	if len(problems) > 0 {
		return eris.Errorf("annotate: invalid params: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Static answers every row with the same text. It backs the offline "stub"
// provider.
type Static struct {
	Text string
}

// Annotate implements Annotator.
func (s Static) Annotate(ctx context.Context, _ Params, text string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:  s.Text,
		Usage: model.Usage{InputTokens: int64(len(strings.Fields(text)))},
	}, nil
}
