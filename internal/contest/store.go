package contest

import (
	"context"

	"github.com/google/uuid"
)

// Store loads contest data for judging and leaderboard building.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Contest, error)
	FindProblem(ctx context.Context, id uuid.UUID) (*Problem, error)
	ListProblems(ctx context.Context, contestID uuid.UUID) ([]Problem, error)
	ListMembers(ctx context.Context, contestID uuid.UUID) ([]Member, error)
}
