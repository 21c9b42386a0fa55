package search

import "context"

// ExpandStats summarizes one Expand pass
type ExpandStats struct {
	Visited  int
	Failures []error
}

// Expand visits steps in order until done reports true or the steps are
// exhausted. A failing step is recorded and the next one proceeds; only
// context cancellation stops the pass early with an error.
func Expand[S any](ctx context.Context, steps []S, done func() bool, visit func(context.Context, S) error) (ExpandStats, error) {
	var stats ExpandStats
	for _, step := range steps {
		if done != nil && done() {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Visited++
		if err := visit(ctx, step); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.Failures = append(stats.Failures, err)
		}
	}
	return stats, nil
}
