// Package activity publishes a best-effort feed of domain events to
// Kafka for the external health-stats form and analytics/export
// pipeline to consume, generalizing the teacher's ChatHandler.publishEvent
// (kafka.Writer.WriteMessages against a fixed "chat-events" topic) into a
// small typed set of event kinds without changing its fire-and-forget
// semantics: a publish failure is logged, never surfaced to the caller.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const topic = "chat.activity"

// Publisher wraps a kafka.Writer for fire-and-forget activity export.
type Publisher struct {
	writer *kafka.Writer
	log    *logrus.Logger
}

// New builds a Publisher against the given broker address. A nil/empty
// addr yields a Publisher whose Publish calls are no-ops, so activity
// export can be disabled without special-casing every call site.
func New(brokerAddr string, log *logrus.Logger) *Publisher {
	if brokerAddr == "" {
		return &Publisher{log: log}
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerAddr),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		log: log,
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// event is the envelope shape written to the topic.
type event struct {
	Kind string `json:"kind"`
	At   int64  `json:"at"`
	Data any    `json:"data"`
}

// Publish fires event kind/data at the activity topic, asynchronously
// and best-effort; it never blocks the caller's hot path and never
// returns an error, mirroring publishEvent's "log and move on" policy.
func (p *Publisher) Publish(kind string, data any) {
	if p.writer == nil {
		return
	}
	go func() {
		payload, err := json.Marshal(event{Kind: kind, At: time.Now().Unix(), Data: data})
		if err != nil {
			p.log.WithError(err).Warn("activity: failed to marshal event")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.writer.WriteMessages(ctx, kafka.Message{Value: payload}); err != nil {
			p.log.WithError(err).Warn("activity: failed to publish event")
		}
	}()
}

// Event kinds published by the session dispatcher.
const (
	KindMessageCreated       = "message.created"
	KindConversationCreated  = "conversation.created"
	KindFriendRequestChanged = "friend_request.changed"
)
