package submission

import (
	"gavel/pkg/errors"
)

// allowedTransitions is the closed set of legal status moves. Anything
// absent here is rejected.
var allowedTransitions = map[Status][]Status{
	StatusQueued:  {StatusJudging},
	StatusJudging: {StatusJudged, StatusFailed},
	StatusJudged:  {StatusQueued},
	StatusFailed:  {StatusQueued},
}

// CanTransition reports whether moving from one status to another is
// legal.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the submission to the target status, enforcing the
// state machine. Moving a terminal submission back to QUEUED clears
// its answer so a rerun starts clean.
func (s *Submission) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return errors.Newf(errors.InvalidStateTransition,
			"cannot transition submission from %s to %s", s.Status, to).
			WithDetail("submission_id", s.ID.String())
	}
	if to == StatusQueued {
		s.Answer = AnswerNone
	}
	s.Status = to
	return nil
}
