package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/permissions"
)

// PermissionsHandler manages permission read/write endpoints.
type PermissionsHandler struct {
	gate *permissions.Gate
}

// NewPermissionsHandler constructs a PermissionsHandler.
func NewPermissionsHandler(gate *permissions.Gate) *PermissionsHandler {
	return &PermissionsHandler{gate: gate}
}

// Get returns the caller's own permissions.
func (h *PermissionsHandler) Get(c *gin.Context) {
	perms, errGet := h.gate.Get(c.Request.Context(), currentUserID(c))
	if errGet != nil {
		log.WithError(errGet).Error("get permissions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"max_adapters":  perms.MaxAdapters,
		"advanced_tier": perms.AdvancedTier,
	})
}

// Set writes a user's permissions (admin).
func (h *PermissionsHandler) Set(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var body struct {
		MaxAdapters  int  `json:"max_adapters"`
		AdvancedTier bool `json:"advanced_tier"`
	}
	if errBindJSON := c.ShouldBindJSON(&body); errBindJSON != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.MaxAdapters <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_adapters must be positive"})
		return
	}

	perms := permissions.Permissions{
		MaxAdapters:  body.MaxAdapters,
		AdvancedTier: body.AdvancedTier,
	}
	if errSet := h.gate.Set(c.Request.Context(), userID, perms); errSet != nil {
		log.WithError(errSet).Error("set permissions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"max_adapters":  perms.MaxAdapters,
		"advanced_tier": perms.AdvancedTier,
	})
}
