// Package notify publishes contest events for downstream consumers
// (live scoreboards, websocket fan-out services). Delivery is
// fire-and-forget: a lost notification never fails the operation that
// produced it.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gavel/internal/common/mq"
)

// EventType labels a contest event.
type EventType string

const (
	EventSubmissionCreated  EventType = "SUBMISSION_CREATED"
	EventSubmissionUpdated  EventType = "SUBMISSION_UPDATED"
	EventLeaderboardChanged EventType = "LEADERBOARD_CHANGED"
)

// Event is one contest notification.
type Event struct {
	Type         EventType       `json:"type"`
	ContestID    uuid.UUID       `json:"contestId"`
	SubmissionID uuid.UUID       `json:"submissionId,omitempty"`
	MemberID     uuid.UUID       `json:"memberId,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Sink receives events.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// KafkaSink publishes events to a topic. Publish failures are logged
// and swallowed.
type KafkaSink struct {
	producer mq.Producer
	topic    string
	logger   *zap.Logger
}

func NewKafkaSink(producer mq.Producer, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

func (s *KafkaSink) Notify(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal event", zap.Error(err))
		return
	}
	msg := mq.NewMessage(body)
	msg.SetHeader("event-type", string(event.Type))
	if err := s.producer.Publish(ctx, s.topic, msg); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", string(event.Type)),
			zap.String("contest_id", event.ContestID.String()),
			zap.Error(err))
	}
}

// NopSink drops all events.
type NopSink struct{}

func (NopSink) Notify(context.Context, Event) {}
