package opt

import "context"

// Evaluator maps the evaluation function over individuals. The returned
// error is fatal to the whole run; per-individual model failures are recorded
// on the individual instead.
type Evaluator interface {
	Name() string
	Map(ctx context.Context, fn func(context.Context, *Individual) error, individuals []*Individual) error
}

// SerialEvaluator evaluates individuals one at a time. Every individual is
// applied to the same facility before its model run, so evaluation cannot be
// parallelised without one model instance per worker.
type SerialEvaluator struct{}

func (SerialEvaluator) Name() string {
	return "serial"
}

func (SerialEvaluator) Map(ctx context.Context, fn func(context.Context, *Individual) error, individuals []*Individual) error {
	for _, ind := range individuals {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, ind); err != nil {
			return err
		}
	}
	return nil
}
