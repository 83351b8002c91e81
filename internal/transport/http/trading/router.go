// Package trading exposes the read-only REST endpoints: historical candles
// per symbol and the static instrument catalog.
package trading

import (
	"net/http"
	"strconv"

	"clusterfeed/internal/hub"
	"clusterfeed/internal/logger"
	"clusterfeed/internal/market"

	"github.com/gin-gonic/gin"
)

// Router handles the trading API endpoints.
type Router struct {
	hub *hub.Hub
}

func NewRouter(h *hub.Hub) *Router {
	return &Router{hub: h}
}

// Register registers the trading API routes.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/trading/:symbol", r.handleTrading)
	group.GET("/symbols", r.handleSymbols)
}

func (r *Router) handleTrading(c *gin.Context) {
	key, err := market.ParseKey(c.Param("symbol"), c.Query("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	candles, book, err := r.hub.HistoricalData(c.Request.Context(), key, limit)
	if err != nil {
		logger.Errorf("[api] trading data for %s failed: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trading data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"candles":   candles,
		"orderBook": book,
		"symbol":    key.Symbol,
		"interval":  key.Interval,
	})
}

func (r *Router) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbols":         market.Symbols,
		"intervals":       market.Intervals,
		"orderBookDepths": market.OrderBookDepths,
	})
}
