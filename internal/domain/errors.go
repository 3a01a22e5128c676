package domain

import "errors"

// Contention errors: someone else was faster.
var (
	ErrSeatAlreadyHeld       = errors.New("seat is already held")
	ErrSeatAlreadyConfirmed  = errors.New("seat is already confirmed")
	ErrSeatAlreadyAssigned   = errors.New("seat is already assigned")
	ErrDuplicateReservation  = errors.New("duplicate reservation for seat")
	ErrLockAcquisitionFailed = errors.New("lock acquisition failed")
	ErrVersionConflict       = errors.New("version conflict")
)

// State errors: the caller's view is stale.
var (
	ErrInvalidTransition   = errors.New("invalid reservation transition")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTokenNotActive      = errors.New("admission token is not active")
	ErrTokenExpired        = errors.New("admission token expired")
)

// Business errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Validation errors.
var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrInvalidInput     = errors.New("invalid input")
)

func IsContention(err error) bool {
	return isAny(err, ErrSeatAlreadyHeld, ErrSeatAlreadyConfirmed, ErrSeatAlreadyAssigned,
		ErrDuplicateReservation, ErrLockAcquisitionFailed, ErrVersionConflict)
}

func IsStateError(err error) bool {
	return isAny(err, ErrInvalidTransition, ErrReservationExpired, ErrReservationNotFound,
		ErrUnauthorized, ErrTokenNotActive, ErrTokenExpired)
}

// IsBusiness reports failures that a retry cannot change.
func IsBusiness(err error) bool {
	return isAny(err, ErrInsufficientFunds, ErrWalletNotFound, ErrInvalidAmount)
}

func IsValidation(err error) bool {
	return isAny(err, ErrScheduleNotFound, ErrSeatNotFound, ErrInvalidInput)
}

// IsInfrastructure reports errors that fall outside every known class.
func IsInfrastructure(err error) bool {
	return err != nil && !IsContention(err) && !IsStateError(err) && !IsBusiness(err) && !IsValidation(err)
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
