package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.msgs = append(m.msgs, msgs...)
	return m.err
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func testEvent() bundle.Event {
	return bundle.Event{
		Kind:       bundle.EventPurchased,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Result: &bundle.Result{
			Outcome:        bundle.OutcomePartiallySucceeded,
			BundleID:       "bundle_o1_o2",
			TrackingNumber: "1Z999",
			LabelURL:       "https://labels.example.com/1Z999.pdf",
			Carrier:        "UPS",
			Service:        "Ground",
			Cost:           decimal.RequireFromString("12.3"),
			AffectedOrders: []string{"o1", "o2"},
			Updates: []bundle.UpdateResult{
				{OrderID: "o1", Success: true},
				{OrderID: "o2", Error: "boom"},
			},
			Parcel: bundle.Parcel{Weight: "16 oz", Dimensions: "10x6x5"},
		},
	}
}

func TestEncode(t *testing.T) {
	assert.JSONEq(t, `{
		"kind": "label_purchased",
		"occurredAt": "2026-03-01T12:00:00Z",
		"bundleId": "bundle_o1_o2",
		"outcome": "partially_succeeded",
		"trackingNumber": "1Z999",
		"labelUrl": "https://labels.example.com/1Z999.pdf",
		"carrier": "UPS",
		"service": "Ground",
		"cost": "12.30",
		"orderIds": ["o1", "o2"],
		"failedOrders": ["o2"],
		"weight": "16 oz",
		"dimensions": "10x6x5"
	}`, string(Encode(testEvent())))
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &mockWriter{}
	p := NewPublisher(w)

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "bundle_o1_o2", string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "kind", Value: []byte("label_purchased")}}, msg.Headers)
	assert.Equal(t, Encode(testEvent()), msg.Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	p := NewPublisher(w)

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write label_purchased event for bundle_o1_o2")

	err = p.Publish(context.Background(), bundle.Event{Kind: bundle.EventRepaired})
	require.Error(t, err)

	_, err = NewKafkaPublisher(nil, "")
	require.Error(t, err)
}

func TestNewKafkaPublisher_DefaultTopic(t *testing.T) {
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "")
	require.NoError(t, err)
	kw, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, kw.Topic)
	require.NoError(t, p.Close())
}
