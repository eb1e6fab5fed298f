package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gavel/internal/common/mq"
	"gavel/internal/dispatch"
	"gavel/internal/submission"
	"gavel/pkg/errors"
)

// HandleMessage consumes one judge task. Returning an error requeues
// the task; nil acknowledges it.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	task, err := decodeTask(msg)
	if err != nil {
		// A payload that never parses gains nothing from redelivery.
		s.logger.Error("dropping malformed judge task",
			zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	id, err := uuid.Parse(task.SubmissionID)
	if err != nil {
		s.logger.Error("dropping judge task with bad submission id",
			zap.String("submission_id", task.SubmissionID), zap.Error(err))
		return nil
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), errors.ServiceUnavailable, "waiting for judge slot")
	}
	defer func() { <-s.sem }()

	if err := s.Judge(ctx, id); err != nil {
		if errors.Is(err, errors.InvalidStateTransition) {
			// Duplicate delivery racing another worker. Ack.
			s.logger.Info("judge task skipped by state machine",
				zap.String("submission_id", id.String()))
			return nil
		}
		if !errors.GetCode(err).Retryable() {
			s.logger.Error("judge task dropped after non-retryable error",
				zap.String("submission_id", id.String()), zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// HandleFailedMessage consumes the dead-letter topic and parks the
// submission as FAILED so nothing stays QUEUED or JUDGING forever.
func (s *Service) HandleFailedMessage(ctx context.Context, msg *mq.Message) error {
	task, err := decodeTask(msg)
	if err != nil {
		s.logger.Error("dropping malformed dead letter",
			zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	id, err := uuid.Parse(task.SubmissionID)
	if err != nil {
		s.logger.Error("dropping dead letter with bad submission id",
			zap.String("submission_id", task.SubmissionID), zap.Error(err))
		return nil
	}

	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.SubmissionNotFound) {
			return nil
		}
		return err
	}
	if sub.Status.Terminal() {
		return nil
	}

	// A poison task can die before judging ever starts; step through
	// JUDGING so the state machine stays closed.
	if sub.Status == submission.StatusQueued {
		if err := sub.Transition(submission.StatusJudging); err != nil {
			return err
		}
	}
	if err := sub.Transition(submission.StatusFailed); err != nil {
		return err
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		if errors.Is(err, errors.OptimisticConcurrency) {
			// Someone else moved it; their write wins.
			return nil
		}
		return err
	}

	s.logger.Error("submission parked as failed after exhausted retries",
		zap.String("submission_id", sub.ID.String()))
	s.notifyUpdated(ctx, sub)
	return nil
}

func decodeTask(msg *mq.Message) (*dispatch.Task, error) {
	var task dispatch.Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "decode judge task")
	}
	if task.SubmissionID == "" {
		return nil, errors.New(errors.InvalidParams).WithMessage("judge task without submission id")
	}
	return &task, nil
}
