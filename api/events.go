package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Domenick1991/seatrush/internal/domain"
	"github.com/Domenick1991/seatrush/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

type SeatHoldViewer interface {
	EventStatus(ctx context.Context, eventID int64, seatCount int) (map[domain.SeatKey]domain.SeatHold, error)
}

type EventHandler struct {
	catalog catalog.CatalogUseCase
	holds   SeatHoldViewer
}

type heldSeat struct {
	SeatNo    int    `json:"seat_no"`
	ExpiresAt string `json:"expires_at"`
}

type seatMapResponse struct {
	EventID   int64      `json:"event_id"`
	SeatCount int        `json:"seat_count"`
	Held      []heldSeat `json:"held"`
}

func NewEventHandler(catalog catalog.CatalogUseCase, holds SeatHoldViewer) *EventHandler {
	return &EventHandler{catalog: catalog, holds: holds}
}

func (h *EventHandler) Register(router *gin.RouterGroup) {
	router.GET("/:eventID/seats", h.seats)
}

// seats lists seats under a live hold; holder identities are not exposed.
func (h *EventHandler) seats(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("eventID"), 10, 64)
	if err != nil || eventID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ctx := c.Request.Context()
	count, err := h.catalog.SeatCount(ctx, eventID)
	if err != nil {
		writeError(c, err)
		return
	}

	holds, err := h.holds.EventStatus(ctx, eventID, count)
	if err != nil {
		writeError(c, err)
		return
	}

	held := make([]heldSeat, 0, len(holds))
	for key, hold := range holds {
		held = append(held, heldSeat{SeatNo: key.SeatNo, ExpiresAt: hold.ExpiresAt.Format(time.RFC3339)})
	}
	sort.Slice(held, func(i, j int) bool { return held[i].SeatNo < held[j].SeatNo })

	c.JSON(http.StatusOK, seatMapResponse{EventID: eventID, SeatCount: count, Held: held})
}
