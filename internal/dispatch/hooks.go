package dispatch

import (
	"context"

	"go.uber.org/zap"
)

// Hooks collects actions to run only after the operation that gathered
// them has committed. Queue publishes ride on hooks so a rolled-back
// transaction never leaves a dangling judge task.
type Hooks struct {
	fns []func(ctx context.Context) error
}

// Add queues an action for Flush.
func (h *Hooks) Add(fn func(ctx context.Context) error) {
	h.fns = append(h.fns, fn)
}

// Len reports how many actions are pending.
func (h *Hooks) Len() int {
	return len(h.fns)
}

// Flush runs all pending actions in order and clears the buffer. The
// first error aborts the rest.
func (h *Hooks) Flush(ctx context.Context) error {
	fns := h.fns
	h.fns = nil
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FlushLogged runs Flush and downgrades any error to a log line, for
// call sites where the commit already happened and failing the request
// would be worse than a delayed dispatch.
func (h *Hooks) FlushLogged(ctx context.Context, logger *zap.Logger) {
	if err := h.Flush(ctx); err != nil {
		logger.Error("post-commit hook failed", zap.Error(err))
	}
}
