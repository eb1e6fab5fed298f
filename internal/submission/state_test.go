package submission

import (
	"testing"

	"github.com/google/uuid"

	"gavel/pkg/errors"
)

func TestTransitionAllowed(t *testing.T) {
	tests := []struct{ from, to Status }{
		{StatusQueued, StatusJudging},
		{StatusJudging, StatusJudged},
		{StatusJudging, StatusFailed},
		{StatusJudged, StatusQueued},
		{StatusFailed, StatusQueued},
	}
	for _, tt := range tests {
		sub := &Submission{ID: uuid.New(), Status: tt.from}
		if err := sub.Transition(tt.to); err != nil {
			t.Fatalf("Transition(%s -> %s) failed: %v", tt.from, tt.to, err)
		}
		if sub.Status != tt.to {
			t.Fatalf("status = %s, want %s", sub.Status, tt.to)
		}
	}
}

func TestTransitionRejectsEverythingElse(t *testing.T) {
	statuses := []Status{StatusQueued, StatusJudging, StatusJudged, StatusFailed}
	for _, from := range statuses {
		for _, to := range statuses {
			if CanTransition(from, to) {
				continue
			}
			sub := &Submission{ID: uuid.New(), Status: from}
			err := sub.Transition(to)
			if err == nil {
				t.Fatalf("Transition(%s -> %s) unexpectedly succeeded", from, to)
			}
			if !errors.Is(err, errors.InvalidStateTransition) {
				t.Fatalf("Transition(%s -> %s) code = %d, want InvalidStateTransition",
					from, to, errors.GetCode(err))
			}
			if sub.Status != from {
				t.Fatalf("failed transition mutated status to %s", sub.Status)
			}
		}
	}
}

func TestRerunClearsAnswer(t *testing.T) {
	sub := &Submission{ID: uuid.New(), Status: StatusJudged, Answer: AnswerWrongAnswer}
	if err := sub.Transition(StatusQueued); err != nil {
		t.Fatalf("Transition(JUDGED -> QUEUED) failed: %v", err)
	}
	if sub.Answer != AnswerNone {
		t.Fatalf("answer = %s, want %s after requeue", sub.Answer, AnswerNone)
	}
}

func TestNewExecutionValidatesCounters(t *testing.T) {
	if _, err := NewExecution(uuid.New(), AnswerWrongAnswer, 5, 3); err == nil {
		t.Fatal("expected error when approved exceeds total")
	}
	exec, err := NewExecution(uuid.New(), AnswerAccepted, 3, 3)
	if err != nil {
		t.Fatalf("NewExecution failed: %v", err)
	}
	if exec.ID == uuid.Nil {
		t.Fatal("execution id not assigned")
	}
}

func TestTerminal(t *testing.T) {
	if StatusQueued.Terminal() || StatusJudging.Terminal() {
		t.Fatal("QUEUED and JUDGING must not be terminal")
	}
	if !StatusJudged.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("JUDGED and FAILED must be terminal")
	}
}
