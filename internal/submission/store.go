package submission

import (
	"context"

	"github.com/google/uuid"
)

// Store persists submissions and their execution records.
//
// Update performs a compare-and-set on Version: the write succeeds only
// when the stored row still carries the caller's version, and bumps it
// by one. A lost race surfaces as an OptimisticConcurrency error.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	Update(ctx context.Context, sub *Submission) error
	CreateExecution(ctx context.Context, exec *Execution) error
	ListByContest(ctx context.Context, contestID uuid.UUID) ([]Submission, error)
}
