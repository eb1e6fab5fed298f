// Package contest holds the contest-side domain model the judge core
// reads: contest windows, freeze state, members and problems.
package contest

import (
	"time"

	"github.com/google/uuid"

	"gavel/internal/common/storage"
)

// MemberType classifies a contest member.
type MemberType string

const (
	MemberContestant MemberType = "CONTESTANT"
	MemberJudge      MemberType = "JUDGE"
	MemberAdmin      MemberType = "ADMIN"
	MemberAutoJudge  MemberType = "AUTOJUDGE"
)

// Settings controls judging behavior for a contest.
type Settings struct {
	AutoJudgeEnabled bool `json:"isAutoJudgeEnabled"`
}

// Contest is a contest with its leaderboard freeze bookkeeping.
type Contest struct {
	ID      uuid.UUID
	Slug    string
	Title   string
	StartAt time.Time
	EndAt   time.Time

	// AutoFreezeAt is the scheduled freeze; FrozenAt is an explicit
	// manual freeze; UnfrozenAt is an explicit reveal. The effective
	// rule lives in IsFrozen.
	AutoFreezeAt *time.Time
	FrozenAt     *time.Time
	UnfrozenAt   *time.Time

	Settings Settings
	Version  int64
}

// Member is a contest participant.
type Member struct {
	ID        uuid.UUID
	ContestID uuid.UUID
	Name      string
	Type      MemberType
}

// Problem is one contest problem with its judging limits and the
// attachment holding its test cases.
type Problem struct {
	ID            uuid.UUID
	ContestID     uuid.UUID
	Letter        string
	Title         string
	TimeLimitMs   int64
	MemoryLimitMB int64
	TestCases     storage.AttachmentRef
}

// HasStarted reports whether the contest has started at the given time.
func (c *Contest) HasStarted(now time.Time) bool {
	return !c.StartAt.After(now)
}

// HasEnded reports whether the contest has ended at the given time.
func (c *Contest) HasEnded(now time.Time) bool {
	return !c.EndAt.After(now)
}

// FreezeAt returns the instant after which results are hidden, or nil
// when the board is not frozen at the given time.
//
// The rule: a freeze timestamp (scheduled or manual) that has passed
// freezes the board; an unfreeze timestamp that passed at or after that
// freeze clears it. A manual re-freeze later than the unfreeze freezes
// the board again from the re-freeze instant.
func (c *Contest) FreezeAt(now time.Time) *time.Time {
	var active *time.Time
	for _, f := range []*time.Time{c.AutoFreezeAt, c.FrozenAt} {
		if f == nil || f.After(now) {
			continue
		}
		if c.UnfrozenAt != nil && !c.UnfrozenAt.After(now) && !c.UnfrozenAt.Before(*f) {
			// This freeze was lifted.
			continue
		}
		if active == nil || f.Before(*active) {
			active = f
		}
	}
	return active
}

// IsFrozen reports whether the leaderboard is frozen at the given time.
func (c *Contest) IsFrozen(now time.Time) bool {
	return c.FreezeAt(now) != nil
}
