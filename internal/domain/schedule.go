package domain

import "time"

type Schedule struct {
	ID        int64
	Title     string
	StartsAt  time.Time
	SeatCount int
	BasePrice int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSeat reports whether seatNo is inside the venue layout of the schedule.
func (s Schedule) HasSeat(seatNo int) bool {
	return seatNo >= 1 && seatNo <= s.SeatCount
}
