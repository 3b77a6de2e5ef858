package engine

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/nexus/internal/scoring"
)

// Handler exposes the analysis pipeline over HTTP.
type Handler struct {
	coord  *Coordinator
	logger *slog.Logger
}

func NewHandler(coord *Coordinator, logger *slog.Logger) *Handler {
	return &Handler{coord: coord, logger: logger}
}

// RegisterRoutes mounts the fraud analysis endpoints on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transactions/analyze", h.AnalyzeTransaction)
	rg.POST("/checks/analyze", h.AnalyzeCheck)
	rg.GET("/alerts/recent", h.RecentAlerts)
}

type analyzeTransactionRequest struct {
	AccountID string  `json:"accountId" binding:"required"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"` // RFC3339, defaults to now
}

// AnalyzeTransaction scores a spending event against the account's
// rolling profile.
func (h *Handler) AnalyzeTransaction(c *gin.Context) {
	var req analyzeTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var ts time.Time
	if req.Timestamp != "" {
		var err error
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC3339"})
			return
		}
	}

	rec, err := h.coord.SubmitTransaction(c.Request.Context(), scoring.TransactionEvent{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Timestamp: ts,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	if rec.IsFlagged {
		h.logger.Warn("transaction flagged",
			"accountId", rec.AccountID,
			"riskScore", rec.RiskScore,
			"riskLevel", rec.RiskLevel,
		)
	}
	c.JSON(http.StatusOK, rec)
}

type analyzeCheckRequest struct {
	CheckNumber         string  `json:"checkNumber" binding:"required"`
	AccountID           string  `json:"accountId" binding:"required"`
	SignatureMatchScore float64 `json:"signatureMatchScore"`
	IsStolen            bool    `json:"isStolen"`
	IsDuplicate         bool    `json:"isDuplicate"`
	IsAltered           bool    `json:"isAltered"`
}

// AnalyzeCheck scores a check against its fraud indicators.
func (h *Handler) AnalyzeCheck(c *gin.Context) {
	var req analyzeCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rec, err := h.coord.SubmitCheck(c.Request.Context(), scoring.CheckEvent{
		CheckNumber:         req.CheckNumber,
		AccountID:           req.AccountID,
		SignatureMatchScore: req.SignatureMatchScore,
		IsStolen:            req.IsStolen,
		IsDuplicate:         req.IsDuplicate,
		IsAltered:           req.IsAltered,
		Timestamp:           time.Now(),
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	if rec.IsFlagged {
		h.logger.Warn("check flagged",
			"checkNumber", rec.CheckNum,
			"accountId", rec.AccountID,
			"riskScore", rec.RiskScore,
			"riskLevel", rec.RiskLevel,
		)
	}
	c.JSON(http.StatusOK, rec)
}

// RecentAlerts returns the most recent alerts, oldest first.
func (h *Handler) RecentAlerts(c *gin.Context) {
	alerts := h.coord.Recent()
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *Handler) writeSubmitError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("analysis failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
