package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler serves the monitoring dashboard endpoints.
type Handler struct {
	agg *Aggregator
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/summary", h.Summary)
}

// Summary returns the live aggregate counters.
func (h *Handler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.agg.Snapshot())
}
