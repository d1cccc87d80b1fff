package review

import (
	"context"

	"github.com/pkg/errors"
)

// RetryOnConflict runs fn up to attempts times while it fails with ErrConcurrentModification.
// fn must reload the submission on every call; each run is a whole use case.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
