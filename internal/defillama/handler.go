package defillama

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/scoring"
	"github.com/mbd888/safescore/internal/validation"
)

const maxNameLength = 100

// ProtocolReport is a protocol's listing entry with its risk rating.
type ProtocolReport struct {
	Protocol     *Protocol         `json:"protocol"`
	RiskScore    float64           `json:"riskScore"`
	RiskLevel    scoring.RiskLevel `json:"riskLevel"`
	Details      *ProtocolDetails  `json:"details,omitempty"`
	DetailsError string            `json:"detailsError,omitempty"`
}

// Lookup finds a protocol by name and rates it. A failed details fetch is
// reported in DetailsError rather than failing the lookup.
func (c *Client) Lookup(ctx context.Context, name string, withDetails bool) (*ProtocolReport, error) {
	p, err := c.FindProtocol(ctx, name)
	if err != nil {
		return nil, err
	}
	score := RiskScore(p)
	report := &ProtocolReport{
		Protocol:  p,
		RiskScore: score,
		RiskLevel: scoring.Level(score),
	}
	if !withDetails || p.Slug == "" {
		return report, nil
	}
	d, err := c.ProtocolDetails(ctx, p.Slug)
	if err != nil {
		logging.L(ctx).Warn("protocol details unavailable", "slug", p.Slug, "error", err)
		report.DetailsError = err.Error()
		return report, nil
	}
	report.Details = d
	return report, nil
}

// Handler serves protocol lookups.
type Handler struct {
	client *Client
}

// NewHandler creates a new protocol handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes sets up protocol endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/protocols/:name", h.GetProtocol)
}

// GetProtocol rates a DeFi protocol by name.
// GET /v1/protocols/:name?details=false
func (h *Handler) GetProtocol(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("name"))
	if errs := validation.Validate(
		validation.Required("name", raw),
		validation.MaxLength("name", raw, maxNameLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_name",
			"message": errs.Error(),
		})
		return
	}
	name := validation.SanitizeString(raw, maxNameLength)

	withDetails := true
	if v := c.Query("details"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "details must be true or false",
			})
			return
		}
		withDetails = parsed
	}

	report, err := h.client.Lookup(c.Request.Context(), name, withDetails)
	if err != nil {
		if errors.Is(err, ErrProtocolNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No DeFiLlama protocol matches " + strconv.Quote(name),
			})
			return
		}
		logging.L(c.Request.Context()).Error("protocol lookup failed", "name", name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_unavailable",
			"message": "Protocol directory is unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}
