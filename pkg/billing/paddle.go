package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Paddle API base URLs
const (
	PaddleSandboxURL    = "https://sandbox-api.paddle.com"
	PaddleProductionURL = "https://api.paddle.com"
)

type paddleItem struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
}

type paddleWebhook struct {
	EventType string `json:"event_type"`
	Data      struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
		BillingDetails struct {
			Email string `json:"email"`
		} `json:"billing_details"`
		Items []paddleItem `json:"items"`
	} `json:"data"`
}

// ParsePaddleEvent decodes a Paddle Billing notification
func ParsePaddleEvent(body []byte) (Event, error) {
	var w paddleWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := Event{
		Provider:   ProviderPaddle,
		Type:       w.EventType,
		Status:     w.Data.Status,
		ResourceID: w.Data.ID,
		Email:      w.Data.Customer.Email,
	}
	if ev.Email == "" {
		ev.Email = w.Data.BillingDetails.Email
	}
	if len(w.Data.Items) > 0 {
		ev.PlanID = w.Data.Items[0].Price.ID
	}
	ev.Category = paddleCategory(ev.Type, ev.Status)
	return ev, nil
}

func paddleCategory(eventType, status string) Category {
	switch eventType {
	case "subscription.created", "subscription.updated", "subscription.activated", "subscription.resumed":
		switch status {
		case "", "active", "trialing":
			return CategoryActivated
		case "canceled":
			if eventType == "subscription.updated" {
				return CategoryCancelled
			}
		}
		// paused and past_due keep the current plan
		return CategoryUnknown
	case "subscription.canceled":
		return CategoryCancelled
	case "transaction.completed":
		return CategoryOrder
	}
	return CategoryUnknown
}

// PaddleClient queries the Paddle Billing API
type PaddleClient struct {
	api *apiClient
}

// NewPaddleClient creates a Paddle API client
func NewPaddleClient(cfg ClientConfig) *PaddleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = PaddleSandboxURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PaddleClient{
		api: newAPIClient("paddle", cfg, map[string]string{
			"Content-Type": "application/json",
		}),
	}
}

// Provider implements SubscriptionLookup
func (c *PaddleClient) Provider() Provider {
	return ProviderPaddle
}

// Configured implements SubscriptionLookup
func (c *PaddleClient) Configured() bool {
	return c.api.configured()
}

type paddleSubscriptionList struct {
	Data []struct {
		ID           string       `json:"id"`
		Status       string       `json:"status"`
		NextBilledAt *time.Time   `json:"next_billed_at"`
		Items        []paddleItem `json:"items"`
	} `json:"data"`
}

// ActiveSubscription implements SubscriptionLookup
func (c *PaddleClient) ActiveSubscription(ctx context.Context, email string) (*Subscription, error) {
	q := url.Values{}
	q.Set("customer_email", email)
	q.Set("status", "active")

	var list paddleSubscriptionList
	if err := c.api.getJSON(ctx, "list_subscriptions", c.api.cfg.BaseURL+"/subscriptions?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	for _, s := range list.Data {
		if s.Status != "" && s.Status != "active" {
			continue
		}
		sub := &Subscription{
			ID:       s.ID,
			Status:   "active",
			RenewsAt: s.NextBilledAt,
		}
		if len(s.Items) > 0 {
			sub.PlanID = s.Items[0].Price.ID
		}
		return sub, nil
	}
	return nil, nil
}
