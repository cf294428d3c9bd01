// Package events publishes bundle outcomes to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
)

// DefaultTopic receives bundle outcome events.
const DefaultTopic = "bundle.labels"

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements bundle.Publisher. Messages are keyed by bundle
// id so every event of a bundle lands on the same partition.
type KafkaPublisher struct {
	w Writer
}

var _ bundle.Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return NewPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}), nil
}

// NewPublisher wraps an existing writer.
func NewPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish writes one event synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, ev bundle.Event) error {
	if ev.Result == nil {
		return errors.New("event without result")
	}
	msg := kafka.Message{
		Key:   []byte(ev.Result.BundleID),
		Value: Encode(ev),
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event for %s", ev.Kind, ev.Result.BundleID)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Noop drops every event. It is used when no brokers are configured.
type Noop struct{}

// Publish implements bundle.Publisher.
func (Noop) Publish(context.Context, bundle.Event) error { return nil }

// Encode renders an event as JSON.
func Encode(ev bundle.Event) []byte {
	r := ev.Result
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(ev.Kind)) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("bundleId", func(e *jx.Encoder) { e.Str(string(r.BundleID)) })
		e.Field("outcome", func(e *jx.Encoder) { e.Str(string(r.Outcome)) })
		e.Field("trackingNumber", func(e *jx.Encoder) { e.Str(r.TrackingNumber) })
		e.Field("labelUrl", func(e *jx.Encoder) { e.Str(r.LabelURL) })
		e.Field("carrier", func(e *jx.Encoder) { e.Str(r.Carrier) })
		e.Field("service", func(e *jx.Encoder) { e.Str(r.Service) })
		e.Field("cost", func(e *jx.Encoder) { e.Str(r.Cost.StringFixed(2)) })
		e.Field("orderIds", func(e *jx.Encoder) { encodeStrings(e, r.AffectedOrders) })
		e.Field("failedOrders", func(e *jx.Encoder) { encodeStrings(e, r.FailedOrders()) })
		e.Field("weight", func(e *jx.Encoder) { e.Str(r.Parcel.Weight) })
		e.Field("dimensions", func(e *jx.Encoder) { e.Str(r.Parcel.Dimensions) })
	})
	return e.Bytes()
}

func encodeStrings(e *jx.Encoder, v []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range v {
			e.Str(s)
		}
	})
}
