package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

// HealthHandler reports process and store liveness.
type HealthHandler struct {
	store kv.Store
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(store kv.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Healthz verifies the KV store answers.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if _, errExists := h.store.Exists(c.Request.Context(), "healthz"); errExists != nil {
		log.WithError(errExists).Error("healthz: store check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
