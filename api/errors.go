package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	headerQueueToken     = "X-Queue-Token"
	headerIdempotencyKey = "Idempotency-Key"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrScheduleNotFound),
		errors.Is(err, domain.ErrSeatNotFound),
		errors.Is(err, domain.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenNotActive):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrReservationExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case domain.IsContention(err), domain.IsStateError(err):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusServiceUnavailable {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(code, gin.H{"error": "temporarily unavailable"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
