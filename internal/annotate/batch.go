package annotate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/minutes-cli/internal/model"
)

// Batch applies an Annotator to every row of a dataset.
type Batch struct {
	annotator   Annotator
	params      Params
	observer    Observer
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
}

// Option configures a Batch.
type Option func(*Batch)

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(b *Batch) { b.observer = o }
}

// WithConcurrency allows up to n rows in flight. Values below 2 keep strict
// sequential processing.
func WithConcurrency(n int) Option {
	return func(b *Batch) { b.concurrency = n }
}

// WithRateLimit paces provider calls to at most rpm requests per minute.
// Zero disables pacing.
func WithRateLimit(rpm int) Option {
	return func(b *Batch) {
		if rpm > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// WithRequestTimeout bounds each provider call. A call that runs out of time
// fails its row.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Batch) { b.timeout = d }
}

// NewBatch validates p and returns a Batch ready to run.
func NewBatch(a Annotator, p Params, opts ...Option) (*Batch, error) {
	if a == nil {
		return nil, eris.New("annotate: nil annotator")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := &Batch{annotator: a, params: p, concurrency: 1}
	for _, o := range opts {
		o(b)
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	return b, nil
}

// Run annotates rows and returns one result per row in input order. A failing
// row never stops the batch. The returned error is non-nil only when ctx is
// done; rows that never started then carry the context error.
func (b *Batch) Run(ctx context.Context, rows []model.Row) (model.Table, error) {
	table := make(model.Table, len(rows))
	total := len(rows)

	if b.concurrency < 2 {
		for i, row := range rows {
			table[i] = b.annotateRow(ctx, i, total, row)
		}
		return table, ctx.Err()
	}

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			// Each goroutine owns table[i] only.
			table[i] = b.annotateRow(ctx, i, total, row)
			return nil
		})
	}
	_ = g.Wait()

	return table, ctx.Err()
}

func (b *Batch) annotateRow(ctx context.Context, idx, total int, row model.Row) (res model.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(row, fmt.Errorf("annotate: panic: %v", r), model.Usage{})
		}
		b.observer.RowFinished(idx, total, res)
	}()

	b.observer.RowStarted(idx, total, row)

	if err := ctx.Err(); err != nil {
		return failure(row, err, model.Usage{})
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return failure(row, err, model.Usage{})
		}
	}

	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	c, err := b.annotator.Annotate(callCtx, b.params, row.Text)
	if err != nil {
		return failure(row, err, c.Usage)
	}

	text := strings.TrimSpace(c.Text)
	if text == "" {
		return failure(row, ErrEmptyCompletion, c.Usage)
	}
	res = model.Success(row.ID, text, c.Usage)
	res.StopReason = c.StopReason
	return res
}

func failure(row model.Row, err error, usage model.Usage) model.Result {
	detail := err.Error()
	if strings.TrimSpace(detail) == "" {
		// A failed row must never look blank in the output.
		detail = fmt.Sprintf("annotate: %T with empty message", err)
	}
	res := model.Failure(row.ID, detail, usage)
	res.Kind = string(Classify(err))
	return res
}
