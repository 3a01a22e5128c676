package domain

import "time"

type LedgerReason string

const (
	LedgerReasonCharge  LedgerReason = "CHARGE"
	LedgerReasonPayment LedgerReason = "PAYMENT"
	LedgerReasonRefund  LedgerReason = "REFUND"
)

type Wallet struct {
	OwnerID   string
	Balance   int64
	Version   int64
	UpdatedAt time.Time
}

// LedgerEntry is an append-only record of one applied balance mutation.
// Amount is signed: credits are positive, debits negative.
type LedgerEntry struct {
	ID             int64
	OwnerID        string
	Amount         int64
	Reason         LedgerReason
	IdempotencyKey string
	CreatedAt      time.Time
}

// WalletMutation is a balance delta paired with the ledger entry that licenses it.
type WalletMutation struct {
	OwnerID        string
	Delta          int64
	Reason         LedgerReason
	IdempotencyKey string
}

type MutationResult struct {
	Balance int64
	// Applied is false when the idempotency key had already been used and nothing changed.
	Applied bool
}
