package domain

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusTemporaryAssigned ReservationStatus = "TEMPORARY_ASSIGNED"
	ReservationStatusPaymentPending    ReservationStatus = "PAYMENT_PENDING"
	ReservationStatusConfirmed         ReservationStatus = "CONFIRMED"
	ReservationStatusPaymentFailed     ReservationStatus = "PAYMENT_FAILED"
	ReservationStatusCancelled         ReservationStatus = "CANCELLED"
	ReservationStatusExpired           ReservationStatus = "EXPIRED"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusTemporaryAssigned: {
		ReservationStatusPaymentPending,
		ReservationStatusCancelled,
		ReservationStatusExpired,
	},
	ReservationStatusPaymentPending: {
		ReservationStatusConfirmed,
		ReservationStatusPaymentFailed,
		ReservationStatusExpired,
	},
}

// CanTransition is the single source of truth for legal status changes.
func CanTransition(from, to ReservationStatus) bool {
	for _, next := range reservationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusPaymentFailed,
		ReservationStatusCancelled, ReservationStatusExpired:
		return true
	}
	return false
}

// OccupiesSeat reports whether a reservation in this status blocks other buyers from the seat.
func (s ReservationStatus) OccupiesSeat() bool {
	switch s {
	case ReservationStatusTemporaryAssigned, ReservationStatusPaymentPending, ReservationStatusConfirmed:
		return true
	}
	return false
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusTemporaryAssigned, ReservationStatusPaymentPending, ReservationStatusConfirmed,
		ReservationStatusPaymentFailed, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	}
	return false
}

// ActiveReservationStatuses lists the statuses covered by the one-reservation-per-seat constraint.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationStatusTemporaryAssigned,
	ReservationStatusPaymentPending,
	ReservationStatusConfirmed,
}

type Reservation struct {
	ID                 string
	OwnerID            string
	EventID            int64
	SeatNo             int
	Price              int64
	Status             ReservationStatus
	TemporaryHeldAt    time.Time
	PaymentRequestedAt *time.Time
	ConfirmedAt        *time.Time
	PaymentFailReason  string
	// PaymentKey is the idempotency key the payment was requested with.
	PaymentKey string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *Reservation) Seat() SeatKey {
	return SeatKey{EventID: r.EventID, SeatNo: r.SeatNo}
}

// HoldExpiresAt is the instant the temporary assignment lapses.
func (r *Reservation) HoldExpiresAt(holdTTL time.Duration) time.Time {
	return r.TemporaryHeldAt.Add(holdTTL)
}

func (r *Reservation) transition(to ReservationStatus) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *Reservation) StartPayment(idempotencyKey string, at time.Time) error {
	if err := r.transition(ReservationStatusPaymentPending); err != nil {
		return err
	}
	r.PaymentRequestedAt = &at
	r.PaymentKey = idempotencyKey
	return nil
}

func (r *Reservation) Confirm(at time.Time) error {
	if err := r.transition(ReservationStatusConfirmed); err != nil {
		return err
	}
	r.ConfirmedAt = &at
	return nil
}

func (r *Reservation) FailPayment(reason string) error {
	if err := r.transition(ReservationStatusPaymentFailed); err != nil {
		return err
	}
	r.PaymentFailReason = reason
	return nil
}

func (r *Reservation) Cancel() error {
	return r.transition(ReservationStatusCancelled)
}

func (r *Reservation) Expire(reason string) error {
	if err := r.transition(ReservationStatusExpired); err != nil {
		return err
	}
	r.PaymentFailReason = reason
	return nil
}

// ReservationConfirmed is emitted to downstream consumers after a reservation reaches CONFIRMED.
type ReservationConfirmed struct {
	ReservationID string
	OwnerID       string
	EventID       int64
	SeatNo        int
	Price         int64
	ConfirmedAt   time.Time
}

func (r *Reservation) ConfirmedEvent() ReservationConfirmed {
	ev := ReservationConfirmed{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		EventID:       r.EventID,
		SeatNo:        r.SeatNo,
		Price:         r.Price,
	}
	if r.ConfirmedAt != nil {
		ev.ConfirmedAt = *r.ConfirmedAt
	}
	return ev
}
