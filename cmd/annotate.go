package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/minutes-cli/internal/annotate"
	"github.com/sells-group/minutes-cli/internal/config"
	"github.com/sells-group/minutes-cli/internal/cost"
	"github.com/sells-group/minutes-cli/internal/model"
	"github.com/sells-group/minutes-cli/internal/store"
	"github.com/sells-group/minutes-cli/internal/table"
	"github.com/sells-group/minutes-cli/pkg/anthropic"
	"github.com/sells-group/minutes-cli/pkg/openai"
)

// runAnnotate executes one full pass: validate, load, annotate every row,
// write the result table, then record run history. Nothing is written when
// validation or loading fails.
func runAnnotate(ctx context.Context, c *config.Config, out io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}

	cols := columns(c)
	rows, err := table.Load(c.Input.Path, cols)
	if err != nil {
		return eris.Wrap(err, "load input")
	}
	zap.L().Info("loaded input",
		zap.String("path", c.Input.Path),
		zap.Int("rows", len(rows)),
	)

	annotator, err := newAnnotator(c)
	if err != nil {
		return err
	}

	params := annotate.Params{
		System:      c.Prompt.System,
		Model:       c.Prompt.Model,
		MaxTokens:   c.Prompt.MaxTokens,
		Temperature: c.Prompt.Temperature,
	}
	batch, err := annotate.NewBatch(annotator, params,
		annotate.WithObserver(annotate.NewLogObserver(zap.L())),
		annotate.WithConcurrency(c.Batch.Concurrency),
		annotate.WithRateLimit(c.Batch.RequestsPerMinute),
		annotate.WithRequestTimeout(requestTimeout(c)),
	)
	if err != nil {
		return eris.Wrap(err, "build batch")
	}

	started := time.Now().UTC()
	results, runErr := batch.Run(ctx, rows)
	finished := time.Now().UTC()

	// The table always has one row per input row, so it is written even
	// when the run was interrupted.
	if err := table.Write(c.Output.Path, cols, results); err != nil {
		return eris.Wrap(err, "write output")
	}

	run := summarize(c, results, started, finished)
	zap.L().Info("batch complete",
		zap.Int("total", run.Total),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int64("input_tokens", run.Usage.InputTokens),
		zap.Int64("output_tokens", run.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", run.Cost),
		zap.Duration("elapsed", finished.Sub(started)),
	)

	saveHistory(context.WithoutCancel(ctx), c, run, results)

	fmt.Fprintf(out, "All results written to %s\n", c.Output.Path)

	if runErr != nil {
		return eris.Wrap(runErr, "run interrupted")
	}
	return nil
}

func columns(c *config.Config) table.Columns {
	return table.Columns{
		ID:         c.Input.IDColumn,
		Text:       c.Input.TextColumn,
		Annotation: c.Output.AnnotationColumn,
		Error:      c.Output.ErrorColumn,
	}
}

// newAnnotator builds the provider adapter selected by c.Provider.
func newAnnotator(c *config.Config) (annotate.Annotator, error) {
	timeout := requestTimeout(c)
	switch c.Provider {
	case config.ProviderOpenAI:
		client := openai.NewClient(c.OpenAI.Key,
			openai.WithBaseURL(c.OpenAI.BaseURL),
			openai.WithTimeout(timeout),
		)
		return annotate.NewOpenAI(client), nil
	case config.ProviderAnthropic:
		client := anthropic.NewClient(c.Anthropic.Key,
			anthropic.WithBaseURL(c.Anthropic.BaseURL),
			anthropic.WithTimeout(timeout),
		)
		return annotate.NewAnthropic(client), nil
	case config.ProviderStub:
		return annotate.Static{Text: c.Stub.Response}, nil
	default:
		return nil, eris.Errorf("unknown provider %q", c.Provider)
	}
}

func requestTimeout(c *config.Config) time.Duration {
	return time.Duration(c.Batch.RequestTimeoutSecs) * time.Second
}

func summarize(c *config.Config, results model.Table, started, finished time.Time) *model.Run {
	ok, failed := results.Counts()
	usage := results.Usage()

	calc := cost.NewCalculator(cost.Merge(cost.DefaultRates(), pricingOverrides(c)))
	if !calc.Known(c.Prompt.Model) {
		zap.L().Debug("no pricing for model, cost reported as zero", zap.String("model", c.Prompt.Model))
	}

	return &model.Run{
		Provider:   c.Provider,
		Model:      c.Prompt.Model,
		InputPath:  c.Input.Path,
		OutputPath: c.Output.Path,
		Total:      len(results),
		Succeeded:  ok,
		Failed:     failed,
		Usage:      usage,
		Cost:       calc.Estimate(c.Prompt.Model, usage),
		StartedAt:  started,
		FinishedAt: finished,
	}
}

func pricingOverrides(c *config.Config) cost.Rates {
	rates := make(cost.Rates, len(c.Pricing.Models))
	for _, p := range c.Pricing.Models {
		rates[p.Model] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

// saveHistory records the run when a store is configured. The output table
// is already on disk, so failures here are only logged.
func saveHistory(ctx context.Context, c *config.Config, run *model.Run, results model.Table) {
	if c.Store.Driver == "" {
		return
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		zap.L().Warn("run history unavailable", zap.String("driver", c.Store.Driver), zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	if err := st.SaveRun(ctx, run, results); err != nil {
		zap.L().Warn("failed to save run history", zap.Error(err))
		return
	}
	zap.L().Info("run history saved", zap.String("run_id", run.ID), zap.String("driver", c.Store.Driver))
}
