package domain

import (
	"fmt"
	"time"
)

type SeatKey struct {
	EventID int64
	SeatNo  int
}

func (k SeatKey) String() string {
	return fmt.Sprintf("%d:%d", k.EventID, k.SeatNo)
}

// SeatHold is a time-boxed exclusive claim on one seat.
type SeatHold struct {
	EventID   int64
	SeatNo    int
	HolderID  string
	HeldAt    time.Time
	ExpiresAt time.Time
}

func (h SeatHold) Key() SeatKey {
	return SeatKey{EventID: h.EventID, SeatNo: h.SeatNo}
}

// Live reports whether the hold is still in force at now. Expired holds are
// logically absent even if storage still carries them.
func (h SeatHold) Live(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

func (h SeatHold) Remaining(now time.Time) time.Duration {
	if !h.Live(now) {
		return 0
	}
	return h.ExpiresAt.Sub(now)
}
