package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/kafka"
	amqp "github.com/rabbitmq/amqp091-go"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error {
	args := m.Called(ctx, topic, key, payload, maxRetries)
	return args.Error(0)
}

type fakeChannel struct {
	key       string
	published []amqp.Publishing
	err       error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.key = key
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

type fakeAck struct {
	acked  int
	nacked int
}

func (a *fakeAck) Ack(bool) error {
	a.acked++
	return nil
}

func (a *fakeAck) Nack(bool, bool) error {
	a.nacked++
	return nil
}

func confirmedEvent() domain.ReservationConfirmed {
	return domain.ReservationConfirmed{
		ReservationID: "res-1",
		OwnerID:       "owner-a",
		EventID:       1,
		SeatNo:        5,
		Price:         80000,
		ConfirmedAt:   time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaSink_PublishesKeyedByReservation(t *testing.T) {
	pub := &MockPublisher{}
	sink := NewKafkaSink(pub, "reservation-events")
	ctx := context.Background()
	ev := confirmedEvent()

	pub.On("PublishWithRetry", ctx, "reservation-events", "res-1", eventFrom(ev), 3).Return(nil).Once()

	require.NoError(t, sink.ReservationConfirmed(ctx, ev))
	pub.AssertExpectations(t)
}

func TestRabbitSink_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	sink := &RabbitSink{channel: ch, queue: "reservation.confirmed"}

	require.NoError(t, sink.ReservationConfirmed(context.Background(), confirmedEvent()))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "reservation.confirmed", ch.key)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)

	var ev kafka.ReservationEvent
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, kafka.EventTypeReservationConfirmed, ev.Type)
	assert.Equal(t, int64(80000), ev.Price)

	ch.err = errors.New("channel closed")
	assert.Error(t, sink.ReservationConfirmed(context.Background(), confirmedEvent()))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.ReservationConfirmed(context.Background(), confirmedEvent()))
}

func TestSender_Handle(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	body, err := json.Marshal(eventFrom(confirmedEvent()))
	require.NoError(t, err)

	require.NoError(t, s.Handle(context.Background(), kafkago.Message{Value: body}))
	assert.Contains(t, buf.String(), `"reservation_id":"res-1"`)

	assert.NoError(t, s.Handle(context.Background(), kafkago.Message{Value: []byte("nope")}))
	assert.Contains(t, buf.String(), "drop undecodable notification")
}

func TestSender_HandleDelivery(t *testing.T) {
	s := NewSender(nil)
	body, err := json.Marshal(eventFrom(confirmedEvent()))
	require.NoError(t, err)

	ack := &fakeAck{}
	s.handleDelivery(context.Background(), body, ack)
	s.handleDelivery(context.Background(), []byte("{"), ack)

	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, 1, ack.nacked)
}
