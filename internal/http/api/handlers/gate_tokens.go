package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/token"
)

// maxGateTokenTTL caps client-requested gate token lifetimes.
const maxGateTokenTTL = time.Hour

// GateTokenHandler issues short-lived tokens gating create/edit forms.
type GateTokenHandler struct {
	tokens *token.Fabricator
}

// NewGateTokenHandler constructs a GateTokenHandler.
func NewGateTokenHandler(tokens *token.Fabricator) *GateTokenHandler {
	return &GateTokenHandler{tokens: tokens}
}

// Create issues a gate token. An omitted or out-of-range TTL falls back to
// the default.
func (h *GateTokenHandler) Create(c *gin.Context) {
	var body struct {
		TTLSeconds int64 `json:"ttl_seconds"`
	}
	// The body is optional.
	_ = c.ShouldBindJSON(&body)

	ttl := time.Duration(body.TTLSeconds) * time.Second
	if ttl <= 0 || ttl > maxGateTokenTTL {
		ttl = token.DefaultShortLivedTTL
	}

	issued, errIssue := h.tokens.IssueShortLived(c.Request.Context(), ttl)
	if errIssue != nil {
		log.WithError(errIssue).Error("issue gate token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      issued,
		"expires_in": int64(ttl.Seconds()),
	})
}
