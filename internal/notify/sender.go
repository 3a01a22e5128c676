package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/seatrush/internal/kafka"
	amqp "github.com/rabbitmq/amqp091-go"
	kafkago "github.com/segmentio/kafka-go"
)

// Sender is the delivery end of the notification pipeline. It currently only
// records each confirmation in the log.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

func (s *Sender) Send(_ context.Context, ev kafka.ReservationEvent) error {
	s.logger.Info("reservation notification",
		"type", ev.Type,
		"reservation_id", ev.ReservationID,
		"owner_id", ev.OwnerID,
		"event_id", ev.EventID,
		"seat_no", ev.SeatNo,
		"price", ev.Price,
		"confirmed_at", ev.ConfirmedAt)
	return nil
}

// Handle is a kafka.Handler for the notifications topic.
func (s *Sender) Handle(ctx context.Context, msg kafkago.Message) error {
	ev, err := decodeEvent(msg.Value)
	if err != nil {
		s.logger.Error("drop undecodable notification", "offset", msg.Offset, "error", err)
		return nil
	}
	return s.Send(ctx, ev)
}

func decodeEvent(body []byte) (kafka.ReservationEvent, error) {
	var ev kafka.ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal reservation event: %w", err)
	}
	return ev, nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (s *Sender) handleDelivery(ctx context.Context, body []byte, ack acknowledger) {
	ev, err := decodeEvent(body)
	if err == nil {
		err = s.Send(ctx, ev)
	}
	if err != nil {
		s.logger.Error("rabbitmq notification rejected", "error", err)
		// Requeueing a message that cannot be handled would spin forever.
		_ = ack.Nack(false, false)
		return
	}
	_ = ack.Ack(false)
}

// ConsumeRabbit reads the notification queue until ctx is cancelled,
// reconnecting with capped backoff when the broker goes away.
func (s *Sender) ConsumeRabbit(ctx context.Context, url, queue string) error {
	backoff := time.Second
	for {
		err := s.consumeRabbitOnce(ctx, url, queue)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("rabbitmq consumer stopped, reconnecting", "queue", queue, "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Sender) consumeRabbitOnce(ctx context.Context, url, queue string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(50, 0, false); err != nil {
		s.logger.Warn("rabbitmq qos", "error", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			s.handleDelivery(ctx, d.Body, &d)
		}
	}
}
