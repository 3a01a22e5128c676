package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/seatrush/internal/service/admission"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	service admission.AdmissionUseCase
}

type issueTokenRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	OwnerID  string `json:"owner_id"`
	State    string `json:"state"`
	Position int64  `json:"position,omitempty"`
	IssuedAt string `json:"issued_at,omitempty"`
}

func toTokenResponse(st admission.TokenStatus) tokenResponse {
	resp := tokenResponse{
		Token:    st.Token.ID,
		OwnerID:  st.Token.OwnerID,
		State:    string(st.Token.State),
		Position: st.Position,
	}
	if !st.Token.IssuedAt.IsZero() {
		resp.IssuedAt = st.Token.IssuedAt.Format(time.RFC3339)
	}
	return resp
}

func NewQueueHandler(service admission.AdmissionUseCase) *QueueHandler {
	return &QueueHandler{service: service}
}

func (h *QueueHandler) Register(router *gin.RouterGroup) {
	router.POST("/tokens", h.issue)
	router.GET("/tokens/:token", h.status)
	router.DELETE("/tokens/:token", h.expire)
}

func (h *QueueHandler) issue(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.service.Issue(c.Request.Context(), req.OwnerID)
	if err != nil {
		writeError(c, err)
		return
	}

	// Position is read separately; a failure there should not hide the issued token.
	st, err := h.service.Status(c.Request.Context(), token.ID)
	if err != nil {
		st = admission.TokenStatus{Token: token}
	}
	c.JSON(http.StatusCreated, toTokenResponse(st))
}

func (h *QueueHandler) status(c *gin.Context) {
	st, err := h.service.Status(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(st))
}

func (h *QueueHandler) expire(c *gin.Context) {
	if err := h.service.Expire(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
