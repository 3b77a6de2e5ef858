package opfraud

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes the operational fraud analyses over HTTP.
type Handler struct {
	detector *Detector
}

func NewHandler(detector *Detector) *Handler {
	return &Handler{detector: detector}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/teller/analyze", h.AnalyzeTeller)
	rg.POST("/cash/analyze", h.AnalyzeCashHandling)
	rg.POST("/collusion/detect", h.DetectCollusion)
}

type tellerAnalysisRequest struct {
	TellerID string       `json:"tellerId" binding:"required"`
	Metrics  DailyMetrics `json:"metrics"`
}

func (h *Handler) AnalyzeTeller(c *gin.Context) {
	var req tellerAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.detector.AnalyzeTeller(req.TellerID, req.Metrics))
}

type cashAnalysisRequest struct {
	TellerID string    `json:"tellerId" binding:"required"`
	Count    CashCount `json:"count"`
}

func (h *Handler) AnalyzeCashHandling(c *gin.Context) {
	var req cashAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.detector.AnalyzeCashHandling(req.TellerID, req.Count))
}

type collusionRequest struct {
	Transactions []collusionTransaction `json:"transactions" binding:"required"`
}

type collusionTransaction struct {
	TellerID  string  `json:"tellerId" binding:"required"`
	AccountID string  `json:"accountId" binding:"required"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"createdAt"` // RFC3339
}

func (h *Handler) DetectCollusion(c *gin.Context) {
	var req collusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	txs := make([]TellerTransaction, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		var ts time.Time
		if tx.CreatedAt != "" {
			var err error
			ts, err = time.Parse(time.RFC3339, tx.CreatedAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "createdAt must be RFC3339"})
				return
			}
		}
		txs = append(txs, TellerTransaction{
			TellerID:  tx.TellerID,
			AccountID: tx.AccountID,
			Amount:    tx.Amount,
			CreatedAt: ts,
		})
	}
	c.JSON(http.StatusOK, h.detector.DetectCollusion(txs))
}
