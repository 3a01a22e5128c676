package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/kafka"
	"github.com/Domenick1991/seatrush/internal/metrics"
	"github.com/Domenick1991/seatrush/internal/repository"
	"github.com/google/uuid"
)

type ReservationUseCase interface {
	AssignTemporary(ctx context.Context, input AssignInput) (*domain.Reservation, error)
	RequestConfirmation(ctx context.Context, input ConfirmInput) (*domain.Reservation, error)
	ApplyPaymentOutcome(ctx context.Context, outcome PaymentOutcome) error
	Cancel(ctx context.Context, token, reservationID string) (*domain.Reservation, error)
	ExpireStale(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	Get(ctx context.Context, reservationID string) (*domain.Reservation, error)
}

type Admission interface {
	Authorize(ctx context.Context, tokenID string) (string, error)
	Expire(ctx context.Context, tokenID string) error
}

type SeatHolds interface {
	TryAcquire(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, seat domain.SeatKey, holderID string, ttl time.Duration) (bool, error)
	IsHeldBy(ctx context.Context, seat domain.SeatKey, holderID string) (bool, error)
	ReleaseIfHeldBy(ctx context.Context, seat domain.SeatKey, holderID string, acquiredBy time.Time) (bool, error)
}

type Catalog interface {
	ScheduleExists(ctx context.Context, eventID int64) (bool, error)
	SeatCount(ctx context.Context, eventID int64) (int, error)
	PriceOf(ctx context.Context, eventID int64, seatNo int) (int64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// EventSink receives fire-and-forget notifications after a confirmation.
type EventSink interface {
	ReservationConfirmed(ctx context.Context, ev domain.ReservationConfirmed) error
}

// Refunder returns money for a payment that landed after the reservation had
// already left PAYMENT_PENDING.
type Refunder interface {
	Refund(ctx context.Context, ownerID string, amount int64, idempotencyKey string) (int64, error)
}

type AssignInput struct {
	Token   string
	EventID int64
	SeatNo  int
}

type ConfirmInput struct {
	Token          string
	ReservationID  string
	IdempotencyKey string
}

type PaymentOutcome struct {
	ReservationID string
	Succeeded     bool
	FailReason    string
}

const (
	reasonHoldTimeout    = "hold timeout"
	reasonPaymentTimeout = "payment timeout"
)

type Service struct {
	reservations   repository.ReservationRepository
	admission      Admission
	holds          SeatHolds
	catalog        Catalog
	producer       Producer
	commandsTopic  string
	holdTTL        time.Duration
	paymentTimeout time.Duration
	sweepBatch     int
	events         EventSink
	refunder       Refunder
	logger         *slog.Logger
	now            func() time.Time
}

type ServiceOption func(*Service)

func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.events = sink
	}
}

func WithRefunder(r Refunder) ServiceOption {
	return func(s *Service) {
		s.refunder = r
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func WithSweepBatch(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

func NewService(
	reservations repository.ReservationRepository,
	admission Admission,
	holds SeatHolds,
	catalog Catalog,
	producer Producer,
	commandsTopic string,
	holdTTL, paymentTimeout time.Duration,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		reservations:   reservations,
		admission:      admission,
		holds:          holds,
		catalog:        catalog,
		producer:       producer,
		commandsTopic:  commandsTopic,
		holdTTL:        holdTTL,
		paymentTimeout: paymentTimeout,
		sweepBatch:     500,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignTemporary claims a seat for the token's owner for the hold window.
func (s *Service) AssignTemporary(ctx context.Context, input AssignInput) (*domain.Reservation, error) {
	if input.EventID <= 0 || input.SeatNo <= 0 {
		return nil, fmt.Errorf("%w: event and seat must be positive", domain.ErrInvalidInput)
	}

	ownerID, err := s.admission.Authorize(ctx, input.Token)
	if err != nil {
		return nil, err
	}

	price, err := s.checkCatalog(ctx, input.EventID, input.SeatNo)
	if err != nil {
		return nil, err
	}

	seat := domain.SeatKey{EventID: input.EventID, SeatNo: input.SeatNo}
	existing, err := s.reservations.FindActiveForSeat(ctx, seat)
	if err != nil {
		return nil, err
	}
	if err := occupiedError(existing); err != nil {
		return nil, err
	}

	acquired, err := s.holds.TryAcquire(ctx, seat, ownerID, s.holdTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		// A leftover hold of the same owner, e.g. from an earlier attempt whose
		// insert failed and whose release was lost, still counts as theirs.
		mine, err := s.holds.IsHeldBy(ctx, seat, ownerID)
		if err != nil {
			return nil, err
		}
		if !mine {
			return nil, domain.ErrSeatAlreadyHeld
		}
	}

	res := &domain.Reservation{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		EventID:         input.EventID,
		SeatNo:          input.SeatNo,
		Price:           price,
		Status:          domain.ReservationStatusTemporaryAssigned,
		TemporaryHeldAt: s.now(),
	}
	if err := s.reservations.Insert(ctx, res); err != nil {
		// A reused hold may back a concurrent request of the same owner.
		if acquired {
			if _, relErr := s.holds.ReleaseIfHeldBy(ctx, seat, ownerID, res.TemporaryHeldAt); relErr != nil {
				s.logger.Error("release hold after failed insert", "event_id", seat.EventID, "seat_no", seat.SeatNo, "error", relErr)
			}
		}
		return nil, err
	}

	metrics.ReservationTransitions.WithLabelValues(string(res.Status)).Inc()
	s.logger.Info("seat temporarily assigned",
		"reservation_id", res.ID, "owner_id", ownerID, "event_id", res.EventID, "seat_no", res.SeatNo, "price", res.Price)
	return res, nil
}

func (s *Service) checkCatalog(ctx context.Context, eventID int64, seatNo int) (int64, error) {
	exists, err := s.catalog.ScheduleExists(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, domain.ErrScheduleNotFound
	}

	count, err := s.catalog.SeatCount(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if seatNo > count {
		return 0, domain.ErrSeatNotFound
	}
	return s.catalog.PriceOf(ctx, eventID, seatNo)
}

func occupiedError(existing []domain.Reservation) error {
	if len(existing) == 0 {
		return nil
	}
	for _, r := range existing {
		if r.Status == domain.ReservationStatusConfirmed {
			return domain.ErrSeatAlreadyConfirmed
		}
	}
	return domain.ErrSeatAlreadyAssigned
}

// RequestConfirmation moves the reservation to PAYMENT_PENDING and enqueues the
// payment. It never waits for the charge itself. Repeating the request for a
// reservation that is already pending republishes the command with the
// originally recorded key.
func (s *Service) RequestConfirmation(ctx context.Context, input ConfirmInput) (*domain.Reservation, error) {
	if input.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput)
	}

	ownerID, err := s.admission.Authorize(ctx, input.Token)
	if err != nil {
		return nil, err
	}

	res, err := s.reservations.Get(ctx, input.ReservationID)
	if err != nil {
		return nil, err
	}
	if res.OwnerID != ownerID {
		return nil, domain.ErrUnauthorized
	}

	switch res.Status {
	case domain.ReservationStatusPaymentPending:
		s.logger.Info("republishing payment command", "reservation_id", res.ID, "idempotency_key", res.PaymentKey)
	case domain.ReservationStatusTemporaryAssigned:
		if err := s.startPayment(ctx, res, input.IdempotencyKey); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: reservation is %s", domain.ErrInvalidTransition, res.Status)
	}

	if err := s.publishCommand(ctx, res); err != nil {
		return nil, err
	}

	if err := s.admission.Expire(ctx, input.Token); err != nil {
		s.logger.Warn("expire admission token after confirmation", "reservation_id", res.ID, "error", err)
	}
	return res, nil
}

func (s *Service) startPayment(ctx context.Context, res *domain.Reservation, key string) error {
	now := s.now()
	if !now.Before(res.HoldExpiresAt(s.holdTTL)) {
		return domain.ErrReservationExpired
	}

	held, err := s.holds.IsHeldBy(ctx, res.Seat(), res.OwnerID)
	if err != nil {
		return err
	}
	if !held {
		return domain.ErrReservationExpired
	}

	if err := res.StartPayment(key, now); err != nil {
		return err
	}
	if err := s.reservations.Update(ctx, res); err != nil {
		return err
	}
	metrics.ReservationTransitions.WithLabelValues(string(res.Status)).Inc()

	// Keep the seat covered while the payment is in flight.
	if _, err := s.holds.Extend(ctx, res.Seat(), res.OwnerID, s.paymentTimeout); err != nil {
		s.logger.Warn("extend hold for pending payment", "reservation_id", res.ID, "error", err)
	}
	return nil
}

func (s *Service) publishCommand(ctx context.Context, res *domain.Reservation) error {
	requestedAt := s.now()
	if res.PaymentRequestedAt != nil {
		requestedAt = *res.PaymentRequestedAt
	}
	cmd := kafka.PaymentCommand{
		ReservationID:  res.ID,
		OwnerID:        res.OwnerID,
		Amount:         res.Price,
		IdempotencyKey: res.PaymentKey,
		EventID:        res.EventID,
		SeatNo:         res.SeatNo,
		RequestedAt:    requestedAt,
	}
	if err := s.producer.Publish(ctx, s.commandsTopic, res.OwnerID, cmd); err != nil {
		return fmt.Errorf("publish payment command for %s: %w", res.ID, err)
	}
	return nil
}

// ApplyPaymentOutcome settles a PAYMENT_PENDING reservation. Outcomes for
// reservations that already left PAYMENT_PENDING are treated as handled.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, outcome PaymentOutcome) error {
	for attempt := 0; ; attempt++ {
		res, err := s.reservations.Get(ctx, outcome.ReservationID)
		if err != nil {
			return err
		}

		if res.Status != domain.ReservationStatusPaymentPending {
			return s.alreadySettled(ctx, res, outcome)
		}

		now := s.now()
		if outcome.Succeeded {
			err = res.Confirm(now)
		} else {
			err = res.FailPayment(outcome.FailReason)
		}
		if err != nil {
			return err
		}

		err = s.reservations.Update(ctx, res)
		if errors.Is(err, domain.ErrVersionConflict) && attempt == 0 {
			// Someone else moved it first; re-read and settle against the new state.
			continue
		}
		if err != nil {
			return err
		}

		metrics.ReservationTransitions.WithLabelValues(string(res.Status)).Inc()
		s.releaseHold(ctx, res)

		if outcome.Succeeded {
			s.logger.Info("reservation confirmed", "reservation_id", res.ID, "owner_id", res.OwnerID)
			s.emitConfirmed(ctx, res)
		} else {
			s.logger.Info("reservation payment failed", "reservation_id", res.ID, "owner_id", res.OwnerID, "reason", res.PaymentFailReason)
		}
		return nil
	}
}

func (s *Service) alreadySettled(ctx context.Context, res *domain.Reservation, outcome PaymentOutcome) error {
	s.logger.Debug("payment outcome already handled", "reservation_id", res.ID, "status", res.Status)

	if !outcome.Succeeded || res.Status == domain.ReservationStatusConfirmed || res.PaymentKey == "" {
		return nil
	}

	// The charge went through but the reservation expired first.
	if s.refunder == nil {
		s.logger.Error("late payment left unrefunded", "reservation_id", res.ID, "owner_id", res.OwnerID, "amount", res.Price)
		return nil
	}
	if _, err := s.refunder.Refund(ctx, res.OwnerID, res.Price, "refund:"+res.PaymentKey); err != nil {
		return fmt.Errorf("refund late payment for %s: %w", res.ID, err)
	}
	s.logger.Info("refunded late payment", "reservation_id", res.ID, "owner_id", res.OwnerID, "amount", res.Price)
	return nil
}

func (s *Service) emitConfirmed(ctx context.Context, res *domain.Reservation) {
	if s.events == nil {
		return
	}
	if err := s.events.ReservationConfirmed(ctx, res.ConfirmedEvent()); err != nil {
		s.logger.Warn("publish confirmation event", "reservation_id", res.ID, "error", err)
	}
}

// releaseHold drops the hold backing res. A hold taken after res was
// assigned belongs to a later reservation and stays.
func (s *Service) releaseHold(ctx context.Context, res *domain.Reservation) {
	released, err := s.holds.ReleaseIfHeldBy(ctx, res.Seat(), res.OwnerID, res.TemporaryHeldAt)
	if err != nil {
		s.logger.Warn("release seat hold", "reservation_id", res.ID, "event_id", res.EventID, "seat_no", res.SeatNo, "error", err)
		return
	}
	if !released {
		s.logger.Debug("seat hold already gone or reassigned", "reservation_id", res.ID, "event_id", res.EventID, "seat_no", res.SeatNo)
	}
}

// Cancel gives a temporarily assigned seat back before payment was requested.
func (s *Service) Cancel(ctx context.Context, token, reservationID string) (*domain.Reservation, error) {
	ownerID, err := s.admission.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}

	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.OwnerID != ownerID {
		return nil, domain.ErrUnauthorized
	}

	if err := res.Cancel(); err != nil {
		return nil, err
	}
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}

	metrics.ReservationTransitions.WithLabelValues(string(res.Status)).Inc()
	s.releaseHold(ctx, res)
	s.logger.Info("reservation cancelled", "reservation_id", res.ID, "owner_id", ownerID)
	return res, nil
}

// ExpireStale expires reservations whose hold or payment window has passed.
// A row that fails is logged and skipped.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("reservations").Observe(time.Since(start).Seconds())
	}()

	sweeps := []struct {
		status  domain.ReservationStatus
		timeout time.Duration
		reason  string
	}{
		{domain.ReservationStatusTemporaryAssigned, s.holdTTL, reasonHoldTimeout},
		{domain.ReservationStatusPaymentPending, s.paymentTimeout, reasonPaymentTimeout},
	}

	expired := make([]domain.Reservation, 0)
	for _, sw := range sweeps {
		stale, err := s.reservations.ListStale(ctx, sw.status, now.Add(-sw.timeout), s.sweepBatch)
		if err != nil {
			return expired, err
		}

		for i := range stale {
			res := &stale[i]
			if err := s.expireOne(ctx, res, sw.reason); err != nil {
				s.logger.Error("expire reservation", "reservation_id", res.ID, "status", sw.status, "error", err)
				continue
			}
			expired = append(expired, *res)
		}
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, res *domain.Reservation, reason string) error {
	if err := res.Expire(reason); err != nil {
		return err
	}
	if err := s.reservations.Update(ctx, res); err != nil {
		return err
	}
	metrics.ReservationTransitions.WithLabelValues(string(res.Status)).Inc()
	s.releaseHold(ctx, res)
	return nil
}

func (s *Service) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.reservations.Get(ctx, reservationID)
}

// RunSweeper calls ExpireStale every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.ExpireStale(ctx, s.now())
			if err != nil {
				s.logger.Error("expire stale reservations", "error", err)
				continue
			}
			if len(expired) > 0 {
				s.logger.Info("expired stale reservations", "count", len(expired))
			}
		}
	}
}

var _ ReservationUseCase = (*Service)(nil)
