package evaluator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one request of a batch.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// EvaluateAll runs independent evaluations with at most concurrency in
// flight. Results keep the order of reqs. One failed evaluation does not stop
// the others; the returned error is non-nil only when ctx is done.
func (e *Evaluator) EvaluateAll(ctx context.Context, reqs []Request, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]BatchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Request: req, Err: err}
				return nil
			}
			res, err := e.Evaluate(gctx, req)
			results[i] = BatchResult{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}
