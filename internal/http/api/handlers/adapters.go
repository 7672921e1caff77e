package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/permissions"
	"github.com/flexiproxy/flexiproxy/internal/registry"
	"github.com/flexiproxy/flexiproxy/internal/token"
)

// AdapterHandler manages adapter CRUD endpoints.
type AdapterHandler struct {
	registry *registry.Registry
	perms    *permissions.Gate
	tokens   *token.Fabricator
}

// NewAdapterHandler constructs an AdapterHandler.
func NewAdapterHandler(reg *registry.Registry, perms *permissions.Gate, tokens *token.Fabricator) *AdapterHandler {
	return &AdapterHandler{registry: reg, perms: perms, tokens: tokens}
}

// adapterBody holds the create/update request payload. The gate token was
// issued for the form page load; the version is the client's last-observed
// modification counter.
type adapterBody struct {
	ProxyID     string `json:"proxy_id"`
	ProviderID  string `json:"provider_id"`
	ModelID     string `json:"model_id"`
	APIKey      string `json:"api_key"`
	Note        string `json:"note"`
	ExtraParams string `json:"extra_params"`
	GateToken   string `json:"gate_token"`
	Version     int64  `json:"version"`
}

func (b adapterBody) input() registry.Input {
	return registry.Input{
		ProxyID:     b.ProxyID,
		ProviderID:  b.ProviderID,
		ModelID:     b.ModelID,
		APIKey:      b.APIKey,
		Note:        b.Note,
		ExtraParams: b.ExtraParams,
	}
}

// List returns the user's adapters and current modification version.
func (h *AdapterHandler) List(c *gin.Context) {
	owner := currentUserID(c)
	adapters, errList := h.registry.List(c.Request.Context(), owner)
	if errList != nil {
		respondRegistryError(c, errList, "list adapters failed")
		return
	}
	version, errVersion := h.registry.GetModifyVersion(c.Request.Context(), owner)
	if errVersion != nil {
		respondRegistryError(c, errVersion, "get version failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapters": adapters, "version": version})
}

// Get returns one adapter.
func (h *AdapterHandler) Get(c *gin.Context) {
	adapter, errGet := h.registry.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if errGet != nil {
		respondRegistryError(c, errGet, "get adapter failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapter": adapter})
}

// GetVersion returns the user's modification version for optimistic
// concurrency checks.
func (h *AdapterHandler) GetVersion(c *gin.Context) {
	version, errVersion := h.registry.GetModifyVersion(c.Request.Context(), currentUserID(c))
	if errVersion != nil {
		respondRegistryError(c, errVersion, "get version failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

// Create makes a new adapter after the gate token, version, and quota
// checks pass. The gate token is burned once the create succeeds.
func (h *AdapterHandler) Create(c *gin.Context) {
	owner := currentUserID(c)

	var body adapterBody
	if errBindJSON := c.ShouldBindJSON(&body); errBindJSON != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if !h.checkGateToken(c, body.GateToken) {
		return
	}
	if !h.checkVersion(c, owner, body.Version) {
		return
	}

	perms, errPerms := h.perms.Get(c.Request.Context(), owner)
	if errPerms != nil {
		log.WithError(errPerms).WithField("user", owner).Error("create adapter: permission read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	count, errCount := h.registry.Count(c.Request.Context(), owner)
	if errCount != nil {
		respondRegistryError(c, errCount, "count adapters failed")
		return
	}
	if count >= perms.MaxAdapters {
		c.JSON(http.StatusForbidden, gin.H{"error": "adapter quota exceeded"})
		return
	}

	adapter, errCreate := h.registry.Create(c.Request.Context(), owner, body.input())
	if errCreate != nil {
		respondRegistryError(c, errCreate, "create adapter failed")
		return
	}

	h.burnGateToken(c, body.GateToken)
	c.JSON(http.StatusCreated, gin.H{"adapter": adapter})
}

// Update rotates the adapter's token and replaces its binding.
func (h *AdapterHandler) Update(c *gin.Context) {
	owner := currentUserID(c)

	var body adapterBody
	if errBindJSON := c.ShouldBindJSON(&body); errBindJSON != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if !h.checkGateToken(c, body.GateToken) {
		return
	}
	if !h.checkVersion(c, owner, body.Version) {
		return
	}

	adapter, errUpdate := h.registry.Update(c.Request.Context(), owner, c.Param("id"), body.input())
	if errUpdate != nil {
		respondRegistryError(c, errUpdate, "update adapter failed")
		return
	}

	h.burnGateToken(c, body.GateToken)
	c.JSON(http.StatusOK, gin.H{"adapter": adapter})
}

// Delete removes an adapter. Deleting an absent adapter succeeds.
func (h *AdapterHandler) Delete(c *gin.Context) {
	owner := currentUserID(c)

	versionRaw := strings.TrimSpace(c.Query("version"))
	if versionRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing version"})
		return
	}
	version, errParse := strconv.ParseInt(versionRaw, 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}
	if !h.checkVersion(c, owner, version) {
		return
	}

	if errDelete := h.registry.Delete(c.Request.Context(), owner, c.Param("id")); errDelete != nil {
		respondRegistryError(c, errDelete, "delete adapter failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// checkGateToken rejects the request when the short-lived gate token is
// missing or expired. Returns false after writing the response.
func (h *AdapterHandler) checkGateToken(c *gin.Context, gateToken string) bool {
	ok, errVerify := h.tokens.VerifyShortLived(c.Request.Context(), gateToken)
	if errVerify != nil {
		log.WithError(errVerify).Error("gate token check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired gate token"})
		return false
	}
	return true
}

// checkVersion enforces the optimistic-concurrency contract: a stale
// client-held version yields a conflict, a normal control-flow branch that
// redirects the client to refetch.
func (h *AdapterHandler) checkVersion(c *gin.Context, owner string, clientVersion int64) bool {
	current, errVersion := h.registry.GetModifyVersion(c.Request.Context(), owner)
	if errVersion != nil {
		respondRegistryError(c, errVersion, "get version failed")
		return false
	}
	if current != clientVersion {
		c.JSON(http.StatusConflict, gin.H{"error": "stale version", "version": current})
		return false
	}
	return true
}

func (h *AdapterHandler) burnGateToken(c *gin.Context, gateToken string) {
	if errBurn := h.tokens.BurnShortLived(c.Request.Context(), gateToken); errBurn != nil {
		log.WithError(errBurn).Warn("gate token burn failed")
	}
}

// respondRegistryError maps registry errors onto the HTTP surface without
// leaking internal detail.
func respondRegistryError(c *gin.Context, err error, logMessage string) {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, registry.ErrProxyNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown proxy"})
	case errors.Is(err, registry.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	default:
		log.WithError(err).Error(logMessage)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
