package kafka

import "time"

// PaymentCommand asks the payment worker to debit a wallet for one reservation.
// Keyed by owner id so debits of one wallet stay in submission order.
type PaymentCommand struct {
	ReservationID  string    `json:"reservation_id"`
	OwnerID        string    `json:"owner_id"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	EventID        int64     `json:"event_id"`
	SeatNo         int       `json:"seat_no"`
	RequestedAt    time.Time `json:"requested_at"`
}

type PaymentStatus string

const (
	PaymentStatusSuccess             PaymentStatus = "SUCCESS"
	PaymentStatusInsufficientBalance PaymentStatus = "INSUFFICIENT_BALANCE"
	PaymentStatusFailed              PaymentStatus = "FAILED"
)

// PaymentResult reports the outcome of a PaymentCommand. Keyed by reservation id.
type PaymentResult struct {
	ReservationID  string        `json:"reservation_id"`
	OwnerID        string        `json:"owner_id"`
	IdempotencyKey string        `json:"idempotency_key"`
	Status         PaymentStatus `json:"status"`
	Balance        int64         `json:"balance"`
	FailReason     string        `json:"fail_reason,omitempty"`
	ProcessedAt    time.Time     `json:"processed_at"`
}

func (r PaymentResult) Succeeded() bool {
	return r.Status == PaymentStatusSuccess
}

const EventTypeReservationConfirmed = "reservation_confirmed"

type ReservationEvent struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservation_id"`
	OwnerID       string    `json:"owner_id"`
	EventID       int64     `json:"event_id"`
	SeatNo        int       `json:"seat_no"`
	Price         int64     `json:"price"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}
