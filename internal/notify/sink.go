package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/kafka"
	amqp "github.com/rabbitmq/amqp091-go"
)

type retryPublisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error
}

func eventFrom(ev domain.ReservationConfirmed) kafka.ReservationEvent {
	return kafka.ReservationEvent{
		Type:          kafka.EventTypeReservationConfirmed,
		ReservationID: ev.ReservationID,
		OwnerID:       ev.OwnerID,
		EventID:       ev.EventID,
		SeatNo:        ev.SeatNo,
		Price:         ev.Price,
		ConfirmedAt:   ev.ConfirmedAt,
	}
}

// KafkaSink publishes confirmations to the notifications topic, keyed by reservation id.
type KafkaSink struct {
	producer retryPublisher
	topic    string
	retries  int
}

func NewKafkaSink(producer retryPublisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, retries: 3}
}

func (s *KafkaSink) ReservationConfirmed(ctx context.Context, ev domain.ReservationConfirmed) error {
	return s.producer.PublishWithRetry(ctx, s.topic, ev.ReservationID, eventFrom(ev), s.retries)
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitSink sends the same payload to a durable RabbitMQ queue through the default exchange.
type RabbitSink struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
}

func NewRabbitSink(url, queue string) (*RabbitSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare %s: %w", queue, err)
	}

	return &RabbitSink{conn: conn, channel: ch, queue: queue}, nil
}

func (s *RabbitSink) ReservationConfirmed(ctx context.Context, ev domain.ReservationConfirmed) error {
	body, err := json.Marshal(eventFrom(ev))
	if err != nil {
		return fmt.Errorf("marshal reservation event: %w", err)
	}

	return s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ReservationID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (s *RabbitSink) Close() error {
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Nop drops events. Used when notifications are disabled.
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) ReservationConfirmed(_ context.Context, ev domain.ReservationConfirmed) error {
	if n.Logger != nil {
		n.Logger.Debug("notification disabled, event dropped", "reservation_id", ev.ReservationID)
	}
	return nil
}
