package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/providers"
)

// ProviderHandler manages model provider endpoints.
type ProviderHandler struct {
	directory *providers.Directory
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(directory *providers.Directory) *ProviderHandler {
	return &ProviderHandler{directory: directory}
}

// List returns all registered providers.
func (h *ProviderHandler) List(c *gin.Context) {
	all, errList := h.directory.List(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Error("list providers failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]gin.H, 0, len(all))
	for _, provider := range all {
		out = append(out, gin.H{
			"provider_id": provider.ID,
			"name":        provider.Name,
			"models":      provider.Models,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Put registers or replaces a provider record (admin).
func (h *ProviderHandler) Put(c *gin.Context) {
	var body struct {
		Name   string   `json:"name"`
		Models []string `json:"models"`
	}
	if errBindJSON := c.ShouldBindJSON(&body); errBindJSON != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	provider := providers.Provider{
		ID:     c.Param("id"),
		Name:   strings.TrimSpace(body.Name),
		Models: body.Models,
	}
	if errPut := h.directory.Put(c.Request.Context(), provider); errPut != nil {
		log.WithError(errPut).Error("put provider failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider_id": provider.ID,
		"name":        provider.Name,
		"models":      provider.Models,
	})
}

// Delete removes a provider record (admin).
func (h *ProviderHandler) Delete(c *gin.Context) {
	if errRemove := h.directory.Remove(c.Request.Context(), c.Param("id")); errRemove != nil {
		log.WithError(errRemove).Error("delete provider failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}
