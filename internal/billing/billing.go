package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// ErrDisabled indicates no Stripe API key is configured.
var ErrDisabled = errors.New("billing: not configured")

// Plan is a subscribable recurring price.
type Plan struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname,omitempty"`
	Currency   string `json:"currency"`
	UnitAmount int64  `json:"unit_amount"`
	Interval   string `json:"interval,omitempty"`
}

// SubscriptionStatus summarizes a customer's current subscription.
type SubscriptionStatus struct {
	Active           bool      `json:"active"`
	Status           string    `json:"status,omitempty"`
	PlanID           string    `json:"plan_id,omitempty"`
	CurrentPeriodEnd time.Time `json:"current_period_end,omitempty"`
}

// Service reads subscription plans and statuses from Stripe. Payment
// webhooks and checkout UI are out of scope; this is the read surface the
// dashboard renders.
type Service struct {
	client *client.API
}

// NewService constructs a Service. An empty API key yields a disabled
// service whose methods return ErrDisabled.
func NewService(apiKey string) *Service {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &Service{}
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Service{client: api}
}

// Enabled reports whether a Stripe key is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// Plans lists the active recurring prices.
func (s *Service) Plans() ([]Plan, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	params := &stripe.PriceListParams{}
	params.Active = stripe.Bool(true)
	params.Limit = stripe.Int64(100)

	iter := s.client.Prices.List(params)
	plans := make([]Plan, 0)
	for iter.Next() {
		price := iter.Price()
		if price.Recurring == nil {
			continue
		}
		plans = append(plans, Plan{
			ID:         price.ID,
			Nickname:   price.Nickname,
			Currency:   string(price.Currency),
			UnitAmount: price.UnitAmount,
			Interval:   string(price.Recurring.Interval),
		})
	}
	if errIter := iter.Err(); errIter != nil {
		return nil, fmt.Errorf("billing: list prices: %w", errIter)
	}
	return plans, nil
}

// Subscription returns the customer's most recent subscription status, or
// an inactive status when none exists.
func (s *Service) Subscription(customerID string) (*SubscriptionStatus, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return &SubscriptionStatus{}, nil
	}

	params := &stripe.SubscriptionListParams{Customer: customerID}
	params.Limit = stripe.Int64(1)

	iter := s.client.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		status := &SubscriptionStatus{
			Active: sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing,
			Status: string(sub.Status),
		}
		if sub.CurrentPeriodEnd > 0 {
			status.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			status.PlanID = sub.Items.Data[0].Price.ID
		}
		return status, nil
	}
	if errIter := iter.Err(); errIter != nil {
		return nil, fmt.Errorf("billing: list subscriptions: %w", errIter)
	}
	return &SubscriptionStatus{}, nil
}
