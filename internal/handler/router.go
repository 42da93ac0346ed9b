package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"merchshop/internal/auth"
	"merchshop/internal/metrics"
)

func SetupRouter(h *Handler, tokens *auth.TokenManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(metrics.GinMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api")
	{
		api.POST("/auth", h.Auth)

		protected := api.Group("", AuthMiddleware(tokens, h.accounts))
		{
			protected.GET("/info", h.Info)
			protected.POST("/sendCoin", h.SendCoin)
			protected.GET("/buy/:item", h.Buy)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
