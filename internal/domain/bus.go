package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (single node) or NATS (multi node). All methods
// scope subjects by the CDM database identifier.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, databaseID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, databaseID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, databaseID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID         string            `json:"id"`
	DatabaseID string            `json:"databaseId"`
	Topic      string            `json:"topic"`
	Payload    []byte            `json:"payload"`
	Metadata   map[string]string `json:"metadata"`
	Timestamp  int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize"`

	// NATS settings
	NATSUrl           string `json:"natsUrl"`
	NATSToken         string `json:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait"` // seconds
}

// Standard topic names for the quality run pipeline.
const (
	TopicRunRequested = "kestrel.run.requested"
	TopicRunStarted   = "kestrel.run.started"
	TopicRunCompleted = "kestrel.run.completed"
	TopicAlert        = "kestrel.alert"
)

// RunRequestedEvent is the payload of a kestrel.run.requested message.
// RunID is assigned by the requester and stamped on the stored report.
type RunRequestedEvent struct {
	RunID string `json:"runId"`
}

// RunCompletedEvent is the payload of a kestrel.run.completed message.
type RunCompletedEvent struct {
	RunID        string  `json:"runId"`
	OverallScore float64 `json:"overallScore"`
	Grade        Grade   `json:"grade"`
}

// AlertEvent is the payload of a kestrel.alert message, published
// when a run grades Poor or Critical.
type AlertEvent struct {
	RunID        string  `json:"runId"`
	OverallScore float64 `json:"overallScore"`
	Grade        Grade   `json:"grade"`
	Message      string  `json:"message"`
}
