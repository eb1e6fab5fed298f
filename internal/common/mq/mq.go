// Package mq defines the queue abstraction used by the judge pipeline.
// Keeping the interface narrow lets the dispatch and consumer code stay
// independent of the broker implementation.
package mq

import (
	"context"
	"time"
)

// MessageQueue is the unified producer/consumer surface.
type MessageQueue interface {
	Producer
	Consumer

	// Ping verifies the broker connection is alive.
	Ping(ctx context.Context) error

	// Close closes the connection.
	Close() error
}

// Producer publishes messages.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer subscribes to topics and processes messages.
type Consumer interface {
	// Subscribe registers a handler for a topic. Handlers returning an
	// error trigger redelivery up to MaxRetries, then routing to the
	// dead-letter topic.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	// Start begins consuming on all subscriptions.
	Start() error

	// Stop gracefully stops consuming.
	Stop() error
}

// Message is one queue message.
type Message struct {
	ID         string            `json:"id"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
	Timestamp  time.Time         `json:"timestamp"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
}

// HandlerFunc processes one message. A nil return acknowledges the
// message; an error triggers the retry path.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions controls consumption behavior for one subscription.
type SubscribeOptions struct {
	ConsumerGroup   string
	Concurrency     int
	MaxRetries      int
	RetryDelay      time.Duration
	DeadLetterTopic string
}

// SetDefaults fills zero-valued options.
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a message with the given body.
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value.
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}

// ShouldRetry reports whether the message has retry budget left.
func (m *Message) ShouldRetry() bool {
	return m.RetryCount < m.MaxRetries
}
