package export

import (
	"context"
	"errors"
	"fmt"
)

// ErrItemPanicked marks an Outcome whose step panicked.
var ErrItemPanicked = errors.New("export: item panicked")

// Step exports one reference.
type Step func(ctx context.Context, ref string) Outcome

// Run applies step to each ref in order and returns one Outcome per ref.
// Cancellation is checked between items; refs not started when ctx is done
// get an Outcome carrying ctx.Err(). A panicking step fails only its own
// item.
func Run(ctx context.Context, refs []string, step Step) []Outcome {
	outcomes := make([]Outcome, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{Ref: ref, Err: err})
			continue
		}
		outcomes = append(outcomes, runStep(ctx, ref, step))
	}
	return outcomes
}

func runStep(ctx context.Context, ref string, step Step) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Ref: ref, Err: panicError(r)}
		}
	}()
	return step(ctx, ref)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrItemPanicked, err)
	}
	return fmt.Errorf("%w: %v", ErrItemPanicked, r)
}
