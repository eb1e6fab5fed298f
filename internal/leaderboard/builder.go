// Package leaderboard builds contest standings from the submission
// set. The leaderboard is always derived, never stored: rebuilding from
// the same submissions yields the same board.
package leaderboard

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"gavel/internal/contest"
	"gavel/internal/submission"
)

// WrongSubmissionPenaltyMinutes is the penalty added per wrong
// submission before the first accepted one on a solved problem.
const WrongSubmissionPenaltyMinutes = 20

// Cell is one member/problem intersection.
type Cell struct {
	ProblemID  uuid.UUID  `json:"problemId"`
	Letter     string     `json:"letter"`
	Accepted   bool       `json:"accepted"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`

	// WrongSubmissions counts judged non-accepted attempts before the
	// first accepted one, or all of them when the problem stays
	// unsolved.
	WrongSubmissions int `json:"wrongSubmissions"`

	// PenaltyMinutes is zero unless the problem was solved.
	PenaltyMinutes int `json:"penaltyMinutes"`

	// Pending counts in-flight submissions plus, on a frozen board,
	// submissions hidden behind the freeze.
	Pending int `json:"pending"`
}

// Row is one contestant's standing.
type Row struct {
	MemberID       uuid.UUID `json:"memberId"`
	Name           string    `json:"name"`
	Score          int       `json:"score"`
	PenaltyMinutes int       `json:"penaltyMinutes"`
	Cells          []Cell    `json:"cells"`

	// acceptedMinutes holds, per solved problem, the minutes from
	// contest start to the accepting submission, sorted descending.
	// Used for the last-resort tie break.
	acceptedMinutes []int
}

// Leaderboard is a fully built standing.
type Leaderboard struct {
	ContestID   uuid.UUID `json:"contestId"`
	Slug        string    `json:"slug"`
	Frozen      bool      `json:"frozen"`
	GeneratedAt time.Time `json:"generatedAt"`
	Rows        []Row     `json:"rows"`
}

// Builder derives leaderboards.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build derives the standing for a contest. Only contestants get rows
// and only judged submissions score. When the board is frozen,
// submissions at or after the freeze instant are hidden and surface
// only as pending counts; bypassFreeze (for judges and admins) shows
// everything.
func (b *Builder) Build(c *contest.Contest, members []contest.Member,
	problems []contest.Problem, subs []submission.Submission, bypassFreeze bool) *Leaderboard {

	now := b.now().UTC()
	freezeAt := c.FreezeAt(now)
	frozen := freezeAt != nil

	board := &Leaderboard{
		ContestID:   c.ID,
		Slug:        c.Slug,
		Frozen:      frozen && !bypassFreeze,
		GeneratedAt: now,
	}

	byPair := groupByMemberProblem(subs)

	for _, m := range members {
		if m.Type != contest.MemberContestant {
			continue
		}
		row := Row{MemberID: m.ID, Name: m.Name}
		for _, p := range problems {
			cell := b.buildCell(c, p, byPair[pairKey{m.ID, p.ID}], freezeAt, bypassFreeze)
			if cell.Accepted {
				row.Score++
				row.PenaltyMinutes += cell.PenaltyMinutes
				row.acceptedMinutes = append(row.acceptedMinutes,
					minutesSince(c.StartAt, *cell.AcceptedAt))
			}
			row.Cells = append(row.Cells, cell)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(row.acceptedMinutes)))
		board.Rows = append(board.Rows, row)
	}

	sort.SliceStable(board.Rows, func(i, j int) bool {
		return lessRow(board.Rows[i], board.Rows[j])
	})
	return board
}

func (b *Builder) buildCell(c *contest.Contest, p contest.Problem,
	subs []submission.Submission, freezeAt *time.Time, bypassFreeze bool) Cell {

	cell := Cell{ProblemID: p.ID, Letter: p.Letter}

	for _, sub := range subs {
		if freezeAt != nil && !bypassFreeze && !sub.CreatedAt.Before(*freezeAt) {
			cell.Pending++
			continue
		}
		if sub.Status == submission.StatusQueued || sub.Status == submission.StatusJudging {
			// Still in flight; shown as pending in every view.
			cell.Pending++
			continue
		}
		if sub.Status != submission.StatusJudged {
			continue
		}
		if cell.Accepted {
			// Attempts after the first accepted one change nothing.
			continue
		}
		if sub.Answer == submission.AnswerAccepted {
			cell.Accepted = true
			at := sub.CreatedAt
			cell.AcceptedAt = &at
			cell.PenaltyMinutes = minutesSince(c.StartAt, at) +
				WrongSubmissionPenaltyMinutes*cell.WrongSubmissions
		} else {
			cell.WrongSubmissions++
		}
	}
	return cell
}

// lessRow orders rows: more solved problems first, then lower penalty,
// then earlier solve pattern (comparing each row's accepted times
// sorted from latest to earliest), then name.
func lessRow(a, b Row) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.PenaltyMinutes != b.PenaltyMinutes {
		return a.PenaltyMinutes < b.PenaltyMinutes
	}
	for i := 0; i < len(a.acceptedMinutes) && i < len(b.acceptedMinutes); i++ {
		if a.acceptedMinutes[i] != b.acceptedMinutes[i] {
			return a.acceptedMinutes[i] < b.acceptedMinutes[i]
		}
	}
	return a.Name < b.Name
}

type pairKey struct {
	member  uuid.UUID
	problem uuid.UUID
}

func groupByMemberProblem(subs []submission.Submission) map[pairKey][]submission.Submission {
	byPair := make(map[pairKey][]submission.Submission)
	for _, sub := range subs {
		key := pairKey{sub.MemberID, sub.ProblemID}
		byPair[key] = append(byPair[key], sub)
	}
	for _, group := range byPair {
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
	}
	return byPair
}

func minutesSince(start, at time.Time) int {
	return int(at.Sub(start).Minutes())
}
