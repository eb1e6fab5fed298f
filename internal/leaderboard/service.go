package leaderboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cachex "gavel/internal/common/cache"
	"gavel/internal/contest"
	"gavel/internal/submission"
	"gavel/pkg/errors"
)

const (
	cacheKeyPrefix  = "leaderboard:"
	defaultTTL      = 30 * time.Second
	defaultEmptyTTL = 5 * time.Second
)

// Service builds leaderboards on demand, with a short cache in front of
// the public (freeze-respecting) view. Privileged bypass reads always
// rebuild so judges see live standings.
type Service struct {
	contests contest.Store
	subs     submission.Store
	builder  *Builder
	cache    cachex.Cache
	ttl      time.Duration
	logger   *zap.Logger
}

func NewService(contests contest.Store, subs submission.Store, cache cachex.Cache, logger *zap.Logger) *Service {
	return &Service{
		contests: contests,
		subs:     subs,
		builder:  NewBuilder(),
		cache:    cache,
		ttl:      defaultTTL,
		logger:   logger,
	}
}

// Get returns the contest leaderboard.
func (s *Service) Get(ctx context.Context, contestID uuid.UUID, bypassFreeze bool) (*Leaderboard, error) {
	if bypassFreeze || s.cache == nil {
		return s.build(ctx, contestID, bypassFreeze)
	}

	return cachex.GetWithCached(ctx, s.cache, cacheKey(contestID),
		cachex.JitterTTL(s.ttl), defaultEmptyTTL,
		func(b *Leaderboard) bool { return b == nil },
		func(b *Leaderboard) string {
			data, err := json.Marshal(b)
			if err != nil {
				return ""
			}
			return string(data)
		},
		func(data string) (*Leaderboard, error) {
			var b Leaderboard
			if err := json.Unmarshal([]byte(data), &b); err != nil {
				return nil, errors.Wrapf(err, errors.InternalError, "decode cached leaderboard")
			}
			return &b, nil
		},
		func(ctx context.Context) (*Leaderboard, error) {
			return s.build(ctx, contestID, false)
		},
	)
}

// Invalidate drops the cached board, typically after a submission
// verdict lands.
func (s *Service) Invalidate(ctx context.Context, contestID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(contestID)); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed",
			zap.String("contest_id", contestID.String()), zap.Error(err))
	}
}

func (s *Service) build(ctx context.Context, contestID uuid.UUID, bypassFreeze bool) (*Leaderboard, error) {
	c, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	members, err := s.contests.ListMembers(ctx, contestID)
	if err != nil {
		return nil, err
	}
	problems, err := s.contests.ListProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.ListByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(c, members, problems, subs, bypassFreeze), nil
}

func cacheKey(contestID uuid.UUID) string {
	return cacheKeyPrefix + contestID.String()
}
