// Package dispatch decides when submissions enter the judge queue.
package dispatch

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"gavel/internal/common/mq"
	"gavel/internal/contest"
	"gavel/internal/submission"
	"gavel/pkg/errors"
)

// Task is the queue payload for one judge request.
type Task struct {
	SubmissionID string `json:"submissionId"`
	Reason       string `json:"reason"`
}

const (
	ReasonCreated = "created"
	ReasonRerun   = "rerun"
)

// Policy gates judge-queue dispatch on contest settings. Contests with
// auto-judging disabled get their submissions recorded but never
// enqueued; judges handle them manually.
type Policy struct {
	producer mq.Producer
	topic    string
	logger   *zap.Logger
}

func NewPolicy(producer mq.Producer, topic string, logger *zap.Logger) *Policy {
	return &Policy{producer: producer, topic: topic, logger: logger}
}

// OnSubmissionCreated schedules a judge task for a fresh submission,
// deferred until the surrounding commit via hooks.
func (p *Policy) OnSubmissionCreated(c *contest.Contest, sub *submission.Submission, hooks *Hooks) {
	p.schedule(c, sub, ReasonCreated, hooks)
}

// OnSubmissionRerun schedules a judge task for a requeued submission.
func (p *Policy) OnSubmissionRerun(c *contest.Contest, sub *submission.Submission, hooks *Hooks) {
	p.schedule(c, sub, ReasonRerun, hooks)
}

func (p *Policy) schedule(c *contest.Contest, sub *submission.Submission, reason string, hooks *Hooks) {
	if !c.Settings.AutoJudgeEnabled {
		p.logger.Info("auto judging disabled, submission not enqueued",
			zap.String("contest_id", c.ID.String()),
			zap.String("submission_id", sub.ID.String()),
			zap.String("reason", reason))
		return
	}

	id := sub.ID.String()
	hooks.Add(func(ctx context.Context) error {
		body, err := json.Marshal(Task{SubmissionID: id, Reason: reason})
		if err != nil {
			return errors.Wrapf(err, errors.InternalError, "marshal judge task")
		}
		msg := mq.NewMessage(body)
		msg.SetHeader("reason", reason)
		if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
			return errors.Wrapf(err, errors.ServiceUnavailable, "enqueue judge task %s", id)
		}
		p.logger.Info("judge task enqueued",
			zap.String("submission_id", id),
			zap.String("reason", reason))
		return nil
	})
}
