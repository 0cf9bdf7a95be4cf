package risk

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/pagination"
	"github.com/mbd888/safescore/internal/scoring"
)

// BatchRequest is the body of POST /v1/wallets/batch.
type BatchRequest struct {
	Addresses []string `json:"addresses"`
}

// Handler provides HTTP endpoints for wallet risk.
type Handler struct {
	service *Service
}

// NewHandler creates a new risk handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up wallet risk endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/risk", h.GetRisk)
	r.GET("/wallets/:address/report", h.GetReport)
	r.GET("/wallets/:address/assessments", h.ListAssessments)
	r.GET("/wallets/:address/assessments/latest", h.GetLatestAssessment)
	r.POST("/wallets/batch", h.AssessBatch)
	r.POST("/score", h.Score)
}

// GetRisk scores a wallet.
// GET /v1/wallets/:address/risk?refresh=true
func (h *Handler) GetRisk(c *gin.Context) {
	var (
		wa  *WalletAssessment
		err error
	)
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		wa, err = h.service.Reassess(c.Request.Context(), c.Param("address"))
	} else {
		wa, err = h.service.Assess(c.Request.Context(), c.Param("address"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wa)
}

// GetReport returns a fresh assessment with its underlying data.
// GET /v1/wallets/:address/report
func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.service.Report(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListAssessments returns stored assessments, newest first.
// GET /v1/wallets/:address/assessments?limit=&cursor=
func (h *Handler) ListAssessments(c *gin.Context) {
	limit := DefaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	page, err := h.service.HistoryPage(c.Request.Context(), c.Param("address"), c.Query("cursor"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":     NormalizedParam(c),
		"assessments": page.Assessments,
		"count":       len(page.Assessments),
		"nextCursor":  page.NextCursor,
		"hasMore":     page.NextCursor != "",
	})
}

// GetLatestAssessment returns the most recent stored assessment.
// GET /v1/wallets/:address/assessments/latest
func (h *Handler) GetLatestAssessment(c *gin.Context) {
	wa, err := h.service.Latest(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wa)
}

// AssessBatch scores up to MaxBatchSize wallets.
// POST /v1/wallets/batch?format=text
func (h *Handler) AssessBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'addresses' array",
		})
		return
	}

	batch, err := h.service.AssessBatch(c.Request.Context(), req.Addresses)
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, TextReport(batch.Results, time.Now()))
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Score runs the engine on inputs supplied in the body.
// POST /v1/score
func (h *Handler) Score(c *gin.Context) {
	var in scoring.Inputs
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a scoring input document",
		})
		return
	}
	// A bare protocol list carries no aggregates; derive them.
	if pa := in.Protocols; len(pa.Protocols) > 0 && pa.TotalProtocols == 0 {
		in.Protocols = scoring.SummarizeProtocols(pa.Protocols)
	}
	c.JSON(http.StatusOK, h.service.Score(c.Request.Context(), in))
}

// NormalizedParam returns the :address parameter in canonical form, or
// the raw value when it is malformed.
func NormalizedParam(c *gin.Context) string {
	if addr, err := NormalizeAddress(c.Param("address")); err == nil {
		return addr
	}
	return c.Param("address")
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
		})
	case errors.Is(err, pagination.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid for this listing",
		})
	case errors.Is(err, ErrEmptyBatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "At least one address is required",
		})
	case errors.Is(err, ErrBatchTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_addresses",
			"message": "Maximum 25 addresses per batch request",
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No assessment recorded for this wallet",
		})
	case c.Request.Context().Err() != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "request_cancelled",
			"message": "The request was cancelled before the assessment finished",
		})
	default:
		logging.L(c.Request.Context()).Error("wallet assessment failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "assessment_failed",
			"message": "Failed to assess wallet",
		})
	}
}
