package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type ackRecord struct {
	tag     uint64
	acked   bool
	requeue bool
}

type recordingAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ackRecord{tag: tag, acked: true})
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestNewPublishing(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := newPublishing(map[string]interface{}{"order_number": "ORD-0000000001"}, now)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, now, msg.Timestamp)
	assert.JSONEq(t, `{"order_number":"ORD-0000000001"}`, string(msg.Body))

	_, err = newPublishing(make(chan int), now)
	assert.Error(t, err)
}

func TestProcess_AcksAndNacks(t *testing.T) {
	acker := &recordingAcknowledger{}
	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, RoutingKey: "order.created", Body: []byte(`{"order_number":"ORD-1"}`)}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, RoutingKey: "order.created", Body: []byte(`nope`)}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, RoutingKey: "order.created", Body: []byte(`nope`), Redelivered: true}
	close(msgs)

	process(context.Background(), zap.NewNop(), msgs, LogHandler(zap.NewNop()))

	assert.Equal(t, []ackRecord{
		{tag: 1, acked: true},
		{tag: 2, requeue: true},
		{tag: 3, requeue: false},
	}, acker.records)
}

func TestProcess_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan amqp.Delivery)
	done := make(chan struct{})

	go func() {
		process(ctx, zap.NewNop(), msgs, func(context.Context, amqp.Delivery) error {
			return errors.New("unreachable")
		})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := LogHandler(zap.New(core))

	err := handler(context.Background(), amqp.Delivery{
		RoutingKey: "order.status_changed",
		Body:       []byte(`{"order_number":"ORD-ABCDEFGHJK","to":"cancelled"}`),
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "order event received", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "order.status_changed", fields["routing_key"])
	assert.Equal(t, "ORD-ABCDEFGHJK", fields["order_number"])
}

func TestPublish_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Client{log: zap.NewNop(), now: time.Now}
	assert.ErrorIs(t, c.Publish(ctx, "order.created", struct{}{}), context.Canceled)
}
