package publish

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mklimuk/lightning/detector"
)

var _ detector.Sink = &Kafka{}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka writes events keyed by their id.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}}
}

func (k *Kafka) Publish(ctx context.Context, ev detector.Event) error {
	msg, err := message(ev)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("could not write event %s: %w", ev.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func message(ev detector.Event) (kafkago.Message, error) {
	data, err := encode(ev)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(ev.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_kind", Value: []byte(ev.Kind.String())},
			{Key: "detected_at", Value: []byte(ev.Time.UTC().Format(time.RFC3339))},
		},
	}, nil
}
