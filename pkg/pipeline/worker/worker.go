// Package worker runs lead batches through a processing function with
// bounded concurrency, retry with backoff for transient upstream failures,
// and an optional global rate limit shared by all workers.
package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/radlabs/personalization-engine/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

type FailurePolicy int

const (
	// FailurePolicyPartialOutput keeps going when a lead fails; the failure
	// lands in that lead's Result and the rest of the batch proceeds.
	FailurePolicyPartialOutput FailurePolicy = iota
	// FailurePolicyFailFast cancels the batch on the first failed lead.
	FailurePolicyFailFast
)

type Options struct {
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	FailurePolicy FailurePolicy

	// OnProgress, when set, is called after each item completes with the
	// running completed count and the batch size. It runs on the collecting
	// goroutine, never concurrently.
	OnProgress func(completed, total int)

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// Result holds the outcome for one input item. With the partial-output
// policy the caller inspects Err per item.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

// ProcessAll runs process over every item and returns results in input
// order. The error return is nil under the partial-output policy unless the
// context ended; under fail-fast it is the first item failure.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	process func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()
	p := &pool[In, Out]{process: process, opts: opts}
	if opts.RateLimitRPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return p.run(ctx, items)
}

type pool[In any, Out any] struct {
	process func(context.Context, In) (Out, error)
	limiter *rate.Limiter
	opts    Options
}

func (p *pool[In, Out]) run(ctx context.Context, items []In) ([]Result[In, Out], error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var failOnce sync.Once
	var firstErr error
	abort := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	type completion struct {
		idx int
		res Result[In, Out]
	}
	jobs := make(chan int)
	done := make(chan completion, p.opts.Workers)

	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if runCtx.Err() != nil {
					return
				}
				res := Result[In, Out]{Input: items[idx]}
				res.Output, res.Err = p.attempt(runCtx, items[idx])
				select {
				case done <- completion{idx: idx, res: res}:
				case <-runCtx.Done():
					return
				}
				if res.Err != nil && p.opts.FailurePolicy == FailurePolicyFailFast {
					abort(res.Err)
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range items {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	out := make([]Result[In, Out], len(items))
	completed := 0
	for c := range done {
		out[c.idx] = c.res
		completed++
		if p.opts.OnProgress != nil {
			p.opts.OnProgress(completed, len(items))
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// attempt drives one item through the retry loop. The last output is
// returned alongside the error so partial results survive.
func (p *pool[In, Out]) attempt(ctx context.Context, item In) (Out, error) {
	var last Out
	for try := 0; ; try++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return last, err
			}
		}

		out, err := p.processOnce(ctx, item)
		last = out
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return last, ctx.Err()
		}
		if !transient(err) || try >= retryBudget(p.opts.MaxRetries, err) {
			return last, err
		}

		if err := sleep(ctx, backoffDelay(p.opts.BackoffInitial, p.opts.BackoffMax, p.opts.BackoffJitterFrac, try)); err != nil {
			return last, err
		}
	}
}

func (p *pool[In, Out]) processOnce(ctx context.Context, item In) (Out, error) {
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}
	return p.process(ctx, item)
}

// retryBudget is MaxRetries, clamped down when the error itself caps its
// retries (rate-limit responses carrying a budget).
func retryBudget(maxRetries int, err error) int {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var capped interface{ MaxExtraRetries() int }
	if errors.As(err, &capped) {
		limit := capped.MaxExtraRetries()
		if limit < 0 {
			limit = 0
		}
		if limit < maxRetries {
			return limit
		}
	}
	return maxRetries
}

func transient(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *core.LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func backoffDelay(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
		if d > max {
			d = max
			break
		}
	}
	if jitterFrac <= 0 {
		return d
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(d) * j)
}
