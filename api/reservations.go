package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	service reservation.ReservationUseCase
}

type createReservationRequest struct {
	EventID int64 `json:"event_id" binding:"required"`
	SeatNo  int   `json:"seat_no" binding:"required"`
}

type reservationResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	EventID     int64  `json:"event_id"`
	SeatNo      int    `json:"seat_no"`
	Price       int64  `json:"price"`
	Status      string `json:"status"`
	HeldAt      string `json:"held_at"`
	ConfirmedAt string `json:"confirmed_at,omitempty"`
	FailReason  string `json:"fail_reason,omitempty"`
}

func toReservationResponse(r *domain.Reservation) reservationResponse {
	resp := reservationResponse{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		EventID:    r.EventID,
		SeatNo:     r.SeatNo,
		Price:      r.Price,
		Status:     string(r.Status),
		HeldAt:     r.TemporaryHeldAt.Format(time.RFC3339),
		FailReason: r.PaymentFailReason,
	}
	if r.ConfirmedAt != nil {
		resp.ConfirmedAt = r.ConfirmedAt.Format(time.RFC3339)
	}
	return resp
}

func NewReservationHandler(service reservation.ReservationUseCase) *ReservationHandler {
	return &ReservationHandler{service: service}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/confirm", h.confirm)
	router.DELETE("/:id", h.cancel)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.AssignTemporary(c.Request.Context(), reservation.AssignInput{
		Token:   c.GetHeader(headerQueueToken),
		EventID: req.EventID,
		SeatNo:  req.SeatNo,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *ReservationHandler) get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

// confirm answers 202: the payment outcome arrives later and is visible through get.
func (h *ReservationHandler) confirm(c *gin.Context) {
	res, err := h.service.RequestConfirmation(c.Request.Context(), reservation.ConfirmInput{
		Token:          c.GetHeader(headerQueueToken),
		ReservationID:  c.Param("id"),
		IdempotencyKey: c.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toReservationResponse(res))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	res, err := h.service.Cancel(c.Request.Context(), c.GetHeader(headerQueueToken), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toReservationResponse(res))
}
