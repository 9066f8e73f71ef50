package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/nquinn721/ai-stock-trader-sub001/controllers"
	"github.com/nquinn721/ai-stock-trader-sub001/services/stream"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, stockController *controllers.StockController, hub *stream.Hub) {
	// API v1 group
	api := router.Group("/api/v1")
	{
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetStocks)
			stocks.GET("/:symbol", stockController.GetStock)
			stocks.GET("/:symbol/quote", stockController.GetQuote)
			stocks.GET("/:symbol/signal", stockController.GetSignal)
		}

		api.GET("/stream/status", stockController.GetStreamStatus)
	}

	// WebSocket subscriber channel
	router.GET("/ws", func(c *gin.Context) {
		hub.HandleWebSocket(c.Writer, c.Request)
	})
}
