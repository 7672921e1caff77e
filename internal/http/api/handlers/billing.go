package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/billing"
	"github.com/flexiproxy/flexiproxy/internal/token"
)

// BillingHandler serves subscription plan and status reads.
type BillingHandler struct {
	service *billing.Service
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(service *billing.Service) *BillingHandler {
	return &BillingHandler{service: service}
}

// Plans lists subscribable plans.
func (h *BillingHandler) Plans(c *gin.Context) {
	plans, errPlans := h.service.Plans()
	if errPlans != nil {
		if errors.Is(errPlans, billing.ErrDisabled) {
			c.JSON(http.StatusOK, gin.H{"enabled": false, "plans": []billing.Plan{}})
			return
		}
		log.WithError(errPlans).Error("list plans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "plans": plans})
}

// Subscription reports the caller's subscription status. The customer
// reference travels in the session's extra claims.
func (h *BillingHandler) Subscription(c *gin.Context) {
	customerID := ""
	if v, exists := c.Get(ContextClaims); exists {
		if claims, ok := v.(*token.SessionClaims); ok {
			customerID = claims.Extra["stripe_customer"]
		}
	}

	status, errStatus := h.service.Subscription(customerID)
	if errStatus != nil {
		if errors.Is(errStatus, billing.ErrDisabled) {
			c.JSON(http.StatusOK, gin.H{"enabled": false})
			return
		}
		log.WithError(errStatus).Error("get subscription failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "subscription": status})
}
