// Package notify announces finished report runs on a Kafka topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// RunEvent is the message value; the key is the run id.
type RunEvent struct {
	RunID          string         `json:"run_id"`
	Period         string         `json:"period"`
	Status         string         `json:"status"`
	At             time.Time      `json:"at"`
	Files          []string       `json:"files,omitempty"`
	Archived       int            `json:"archived"`
	RenderFailures []string       `json:"render_failures,omitempty"`
	Severity       map[string]int `json:"severity,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	w writer
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	const op = "notify.NewKafka"

	if len(brokers) == 0 {
		return nil, fmt.Errorf("%s: %w", op, errors.New("at least one broker required"))
	}
	if topic == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("topic required"))
	}

	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

func (k *Kafka) Notify(ctx context.Context, e RunEvent) error {
	const op = "notify.Kafka.Notify"

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	msg := kafka.Message{Key: []byte(e.RunID), Value: value, Time: e.At}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	if k == nil || k.w == nil {
		return nil
	}
	return k.w.Close()
}
