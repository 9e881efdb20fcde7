// Package workerpool provides the bounded, index-based fan-out used by every
// parallel phase of the snapshot engine.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run invokes fn once for every index in [0, n), running at most limit
// invocations concurrently. It blocks until every invocation has returned
// (cancellation of ctx reaches fn only through the ctx it receives), and returns the first non-nil error encountered (if any);
// the other in-flight invocations are allowed to finish but their errors are
// discarded once the first is captured, mirroring errgroup.Group semantics.
//
// limit <= 0 means unbounded (bounded only by n itself).
func Run(ctx context.Context, n int, limit int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}

	for i := range n {
		group.Go(func() error {
			return fn(groupCtx, i)
		})
	}

	return group.Wait() //nolint:wrapcheck
}
