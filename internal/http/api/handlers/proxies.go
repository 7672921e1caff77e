package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/proxydir"
)

// ProxyHandler manages proxy directory endpoints.
type ProxyHandler struct {
	directory *proxydir.Directory
}

// NewProxyHandler constructs a ProxyHandler.
func NewProxyHandler(directory *proxydir.Directory) *ProxyHandler {
	return &ProxyHandler{directory: directory}
}

// List returns all registered proxy gateways.
func (h *ProxyHandler) List(c *gin.Context) {
	proxies, errList := h.directory.ListPublic(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Error("list proxies failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]gin.H, 0, len(proxies))
	for _, proxy := range proxies {
		out = append(out, gin.H{
			"proxy_id": proxy.ID,
			"url":      proxy.URL,
			"status":   proxy.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"proxies": out})
}

// Health probes one gateway's liveness.
func (h *ProxyHandler) Health(c *gin.Context) {
	proxy, errGet := h.directory.Get(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		log.WithError(errGet).Error("proxy health: lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if proxy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, h.directory.HealthCheck(c.Request.Context(), *proxy))
}

// Put registers or replaces a gateway record (admin).
func (h *ProxyHandler) Put(c *gin.Context) {
	var body struct {
		URL    string `json:"url"`
		Status string `json:"status"`
	}
	if errBindJSON := c.ShouldBindJSON(&body); errBindJSON != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url"})
		return
	}

	proxy := proxydir.Proxy{
		ID:     c.Param("id"),
		URL:    strings.TrimSpace(body.URL),
		Status: strings.TrimSpace(body.Status),
	}
	if errPut := h.directory.Put(c.Request.Context(), proxy); errPut != nil {
		log.WithError(errPut).Error("put proxy failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"proxy_id": proxy.ID,
		"url":      proxy.URL,
		"status":   proxy.Status,
	})
}

// Delete removes a gateway record (admin).
func (h *ProxyHandler) Delete(c *gin.Context) {
	if errRemove := h.directory.Remove(c.Request.Context(), c.Param("id")); errRemove != nil {
		log.WithError(errRemove).Error("delete proxy failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}
