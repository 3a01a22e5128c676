package api

import (
	"net/http"

	"github.com/Domenick1991/seatrush/internal/service/wallet"
	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	service wallet.WalletUseCase
}

type chargeRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type walletResponse struct {
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

func NewWalletHandler(service wallet.WalletUseCase) *WalletHandler {
	return &WalletHandler{service: service}
}

func (h *WalletHandler) Register(router *gin.RouterGroup) {
	router.POST("/:ownerID/charge", h.charge)
	router.GET("/:ownerID", h.balance)
}

func (h *WalletHandler) charge(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := c.Param("ownerID")
	balance, err := h.service.Charge(c.Request.Context(), ownerID, req.Amount, c.GetHeader(headerIdempotencyKey))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, walletResponse{OwnerID: ownerID, Balance: balance})
}

func (h *WalletHandler) balance(c *gin.Context) {
	ownerID := c.Param("ownerID")
	balance, err := h.service.BalanceOf(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse{OwnerID: ownerID, Balance: balance})
}
