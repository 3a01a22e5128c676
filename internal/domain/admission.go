package domain

import "time"

type TokenState string

const (
	TokenStateWaiting TokenState = "WAITING"
	TokenStateActive  TokenState = "ACTIVE"
	TokenStateExpired TokenState = "EXPIRED"
)

// AdmissionToken proves a shopper may attempt a purchase once it is ACTIVE.
type AdmissionToken struct {
	ID       string
	OwnerID  string
	State    TokenState
	IssuedAt time.Time
}

func (t AdmissionToken) Active() bool {
	return t.State == TokenStateActive
}
