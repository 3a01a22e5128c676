package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/kafka"
	"github.com/Domenick1991/seatrush/internal/metrics"
	"github.com/Domenick1991/seatrush/internal/service/reservation"
	kafkago "github.com/segmentio/kafka-go"
)

type Wallet interface {
	Pay(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Outcomes interface {
	ApplyPaymentOutcome(ctx context.Context, outcome reservation.PaymentOutcome) error
}

// Processor executes payment commands against the wallet and reports each
// outcome on the results topic.
type Processor struct {
	wallet       Wallet
	producer     Producer
	resultsTopic string
	logger       *slog.Logger
	now          func() time.Time
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

func NewProcessor(wallet Wallet, producer Producer, resultsTopic string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		wallet:       wallet,
		producer:     producer,
		resultsTopic: resultsTopic,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleCommand returns nil when the message may be committed. Business
// failures are final and reported as a failed result; anything else is
// returned so the consumer redelivers the command.
func (p *Processor) HandleCommand(ctx context.Context, msg kafkago.Message) error {
	var cmd kafka.PaymentCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		p.logger.Error("drop undecodable payment command", "offset", msg.Offset, "error", err)
		metrics.PaymentCommands.WithLabelValues("malformed").Inc()
		return nil
	}

	result := kafka.PaymentResult{
		ReservationID:  cmd.ReservationID,
		OwnerID:        cmd.OwnerID,
		IdempotencyKey: cmd.IdempotencyKey,
	}

	balance, err := p.wallet.Pay(ctx, cmd.OwnerID, cmd.Amount, cmd.IdempotencyKey)
	switch {
	case err == nil:
		result.Status = kafka.PaymentStatusSuccess
		result.Balance = balance
	case domain.IsBusiness(err) || domain.IsValidation(err):
		result.Status = failureStatus(err)
		result.FailReason = err.Error()
	default:
		metrics.PaymentCommands.WithLabelValues("error").Inc()
		return err
	}
	result.ProcessedAt = p.now()

	if err := p.producer.Publish(ctx, p.resultsTopic, cmd.ReservationID, result); err != nil {
		metrics.PaymentCommands.WithLabelValues("error").Inc()
		return err
	}

	metrics.PaymentCommands.WithLabelValues(string(result.Status)).Inc()
	p.logger.Info("payment command processed",
		"reservation_id", cmd.ReservationID, "owner_id", cmd.OwnerID, "amount", cmd.Amount, "status", result.Status)
	return nil
}

func failureStatus(err error) kafka.PaymentStatus {
	if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrWalletNotFound) {
		return kafka.PaymentStatusInsufficientBalance
	}
	return kafka.PaymentStatusFailed
}

// ResultApplier feeds payment results into the reservation state machine.
type ResultApplier struct {
	outcomes Outcomes
	logger   *slog.Logger
}

func NewResultApplier(outcomes Outcomes, logger *slog.Logger) *ResultApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultApplier{outcomes: outcomes, logger: logger}
}

func (a *ResultApplier) HandleResult(ctx context.Context, msg kafkago.Message) error {
	var result kafka.PaymentResult
	if err := json.Unmarshal(msg.Value, &result); err != nil {
		a.logger.Error("drop undecodable payment result", "offset", msg.Offset, "error", err)
		metrics.PaymentResults.WithLabelValues("malformed").Inc()
		return nil
	}

	outcome := reservation.PaymentOutcome{
		ReservationID: result.ReservationID,
		Succeeded:     result.Succeeded(),
		FailReason:    result.FailReason,
	}
	if !outcome.Succeeded && outcome.FailReason == "" {
		outcome.FailReason = string(result.Status)
	}

	err := a.outcomes.ApplyPaymentOutcome(ctx, outcome)
	if errors.Is(err, domain.ErrReservationNotFound) {
		a.logger.Warn("payment result for unknown reservation", "reservation_id", result.ReservationID)
		metrics.PaymentResults.WithLabelValues("unknown").Inc()
		return nil
	}
	if err != nil {
		metrics.PaymentResults.WithLabelValues("error").Inc()
		return err
	}

	metrics.PaymentResults.WithLabelValues(string(result.Status)).Inc()
	return nil
}
