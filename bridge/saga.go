package bridge

import "context"

// sagaStep is one phase of a multi-system operation. compensate undoes a
// completed run when a later step fails; nil means there is nothing to undo.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes the steps in order. On failure, compensating actions for
// the already-completed steps run in reverse. A failed compensation is logged
// distinctly from the primary failure and never retried; the orphan is left
// for out-of-band cleanup.
func (b *Bridge) runSaga(ctx context.Context, steps []sagaStep) error {
	var completed []sagaStep

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			for i := len(completed) - 1; i >= 0; i-- {
				prior := completed[i]
				if prior.compensate == nil {
					continue
				}
				if cerr := prior.compensate(ctx); cerr != nil {
					b.logger.Error().Err(cerr).
						Str("step", prior.name).
						Str("failed_step", step.name).
						Msg("saga compensation failed; orphan left for out-of-band cleanup")
				}
			}
			return err
		}
		completed = append(completed, step)
	}
	return nil
}
