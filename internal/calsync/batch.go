package calsync

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// defaultParallelUpdates bounds concurrent PATCH requests within one update.
const defaultParallelUpdates = 4

// Pair is one update to perform: Value applied to Target.
type Pair struct {
	Target *gcal.Event
	Value  *gcal.Event
}

// PairTargets applies the broadcast rule. A single value is broadcast to
// every target; equal-length lists are zipped; a single target takes the
// first value. For any other mismatch the shorter length wins. The second
// return value counts values that found no target.
func PairTargets(targets, values []*gcal.Event) ([]Pair, int) {
	if len(targets) == 0 || len(values) == 0 {
		return nil, len(values)
	}

	if len(values) == 1 {
		pairs := make([]Pair, len(targets))
		for i, t := range targets {
			pairs[i] = Pair{Target: t, Value: values[0]}
		}

		return pairs, 0
	}

	n := min(len(targets), len(values))

	pairs := make([]Pair, n)
	for i := range n {
		pairs[i] = Pair{Target: targets[i], Value: values[i]}
	}

	return pairs, len(values) - n
}

// settleAll runs fn for every index with at most limit in flight and waits
// for all of them. fn reports failure through its Outcome, so nothing is
// ever canceled by a sibling's failure.
func settleAll(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) Outcome) []Outcome {
	outcomes := make([]Outcome, n)

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := range n {
		g.Go(func() error {
			outcomes[i] = fn(ctx, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	return outcomes
}

// runSequential runs fn for every index in order, each finishing before the
// next starts.
func runSequential(ctx context.Context, n int, fn func(ctx context.Context, i int) Outcome) []Outcome {
	outcomes := make([]Outcome, 0, n)

	for i := range n {
		outcomes = append(outcomes, fn(ctx, i))
	}

	return outcomes
}
