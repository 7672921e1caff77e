package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flexiproxy/flexiproxy/internal/kv"
)

// submitWindow is the per-user cooldown between submissions.
const submitWindow = 24 * time.Hour

// ErrRateLimited indicates the user already submitted within the window.
var ErrRateLimited = errors.New("contact: already submitted within 24 hours")

// Submission is a stored contact-form message.
type Submission struct {
	UserID      string    `json:"user_id"`
	Subject     string    `json:"subject"`
	Message     string    `json:"message"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Intake stores contact submissions and enforces the 24-hour window with a
// TTL marker key.
type Intake struct {
	store  kv.Store
	prefix string
	nowFn  func() time.Time
}

// NewIntake constructs an Intake. A nil nowFn defaults to time.Now.
func NewIntake(store kv.Store, prefix string, nowFn func() time.Time) *Intake {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Intake{
		store:  store,
		prefix: strings.TrimSpace(prefix),
		nowFn:  nowFn,
	}
}

func (i *Intake) markerKey(userID string) string {
	return i.prefix + ":rl:" + userID
}

func (i *Intake) submissionKey(userID string, at time.Time) string {
	return i.prefix + ":msg:" + userID + ":" + at.UTC().Format(time.RFC3339Nano)
}

// Submit stores the message unless the user submitted within the window.
func (i *Intake) Submit(ctx context.Context, userID, subject, message string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("contact: missing user id")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("contact: empty message")
	}

	exists, errExists := i.store.Exists(ctx, i.markerKey(userID))
	if errExists != nil {
		log.WithError(errExists).WithField("user", userID).Error("contact: marker check failed")
		return fmt.Errorf("contact: marker check: %w", errExists)
	}
	if exists {
		return ErrRateLimited
	}

	now := i.nowFn()
	submission := Submission{
		UserID:      userID,
		Subject:     strings.TrimSpace(subject),
		Message:     message,
		SubmittedAt: now.UTC(),
	}
	raw, errMarshal := json.Marshal(submission)
	if errMarshal != nil {
		return fmt.Errorf("contact: encode submission: %w", errMarshal)
	}

	return i.store.Txn(ctx, []kv.Op{
		kv.SetOp(i.submissionKey(userID, now), raw),
		kv.SetTTLOp(i.markerKey(userID), []byte("1"), submitWindow),
	})
}
