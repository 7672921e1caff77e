package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/contact"
)

// ContactHandler manages contact-form submissions.
type ContactHandler struct {
	intake *contact.Intake
}

// NewContactHandler constructs a ContactHandler.
func NewContactHandler(intake *contact.Intake) *ContactHandler {
	return &ContactHandler{intake: intake}
}

// Submit stores a contact message, limited to one per user per 24 hours.
func (h *ContactHandler) Submit(c *gin.Context) {
	var body struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if errBindJSON := c.ShouldBindJSON(&body); errBindJSON != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message"})
		return
	}

	errSubmit := h.intake.Submit(c.Request.Context(), currentUserID(c), body.Subject, body.Message)
	if errSubmit != nil {
		if errors.Is(errSubmit, contact.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "one submission per 24 hours"})
			return
		}
		log.WithError(errSubmit).Error("contact submit failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusAccepted)
}
