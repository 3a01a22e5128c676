package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Queue        *QueueHandler
	Events       *EventHandler
	Reservations *ReservationHandler
	Wallets      *WalletHandler
}

func NewRouter(h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.Queue.Register(router.Group("/queue"))
	h.Events.Register(router.Group("/events"))
	h.Reservations.Register(router.Group("/reservations"))
	h.Wallets.Register(router.Group("/wallets"))
	return router
}
