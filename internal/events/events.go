// Package events publishes upload lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	UploadCompleted EventType = "upload.completed"
	UploadFailed    EventType = "upload.failed"
	DocumentDeleted EventType = "document.deleted"
)

type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

func NewEvent(eventType EventType, source string, data map[string]interface{}) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      data,
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. key groups related events on one partition.
type Publisher interface {
	Publish(ctx context.Context, key string, ev Event) error
	Close() error
}

// Nop discards events; used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }
func (Nop) Close() error                                  { return nil }

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes JSON events to a single topic.
type Kafka struct {
	writer messageWriter
	log    logrus.FieldLogger
}

// NewKafka returns a Nop when brokers is empty.
func NewKafka(brokers []string, topic string, logger logrus.FieldLogger) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return newKafka(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}, logger)
}

func newKafka(w messageWriter, logger logrus.FieldLogger) *Kafka {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Kafka{writer: w, log: logger.WithField("component", "events")}
}

func (k *Kafka) Publish(ctx context.Context, key string, ev Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	k.log.WithFields(logrus.Fields{"type": ev.Type, "key": key}).Debug("event published")
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
