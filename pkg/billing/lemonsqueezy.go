package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// LemonDefaultURL is the Lemon Squeezy API base URL
const LemonDefaultURL = "https://api.lemonsqueezy.com/v1"

// ErrOrderNotFound is returned when Lemon Squeezy has no such order
var ErrOrderNotFound = errors.New("order not found")

type lemonWebhook struct {
	Meta struct {
		EventName string `json:"event_name"`
	} `json:"meta"`
	Data struct {
		ID         flexibleID `json:"id"`
		Attributes struct {
			UserEmail string     `json:"user_email"`
			Status    string     `json:"status"`
			ProductID flexibleID `json:"product_id"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseLemonEvent decodes a Lemon Squeezy webhook
func ParseLemonEvent(body []byte) (Event, error) {
	var w lemonWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	attrs := w.Data.Attributes
	ev := Event{
		Provider:   ProviderLemon,
		Type:       w.Meta.EventName,
		Email:      attrs.UserEmail,
		PlanID:     string(attrs.ProductID),
		Status:     attrs.Status,
		ResourceID: string(w.Data.ID),
	}
	ev.Category = lemonCategory(ev.Type, ev.Status)
	return ev, nil
}

func lemonCategory(eventName, status string) Category {
	switch eventName {
	case "subscription_created", "subscription_updated", "subscription_resumed":
		switch status {
		case "", "active", "on_trial":
			return CategoryActivated
		case "expired", "cancelled":
			if eventName == "subscription_updated" {
				return CategoryCancelled
			}
		}
		return CategoryUnknown
	case "subscription_cancelled", "subscription_expired":
		return CategoryCancelled
	case "order_created":
		return CategoryOrder
	}
	return CategoryUnknown
}

// LemonClient queries the Lemon Squeezy API
type LemonClient struct {
	api *apiClient
}

// NewLemonClient creates a Lemon Squeezy API client
func NewLemonClient(cfg ClientConfig) *LemonClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = LemonDefaultURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LemonClient{
		api: newAPIClient("lemonsqueezy", cfg, map[string]string{
			"Accept":       "application/vnd.api+json",
			"Content-Type": "application/vnd.api+json",
		}),
	}
}

// Provider implements SubscriptionLookup
func (c *LemonClient) Provider() Provider {
	return ProviderLemon
}

// Configured implements SubscriptionLookup
func (c *LemonClient) Configured() bool {
	return c.api.configured()
}

type lemonSubscriptionList struct {
	Data []struct {
		ID         flexibleID `json:"id"`
		Attributes struct {
			Status    string     `json:"status"`
			ProductID flexibleID `json:"product_id"`
			UserEmail string     `json:"user_email"`
			RenewsAt  *time.Time `json:"renews_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// ActiveSubscription implements SubscriptionLookup
func (c *LemonClient) ActiveSubscription(ctx context.Context, email string) (*Subscription, error) {
	q := url.Values{}
	q.Set("filter[user_email]", email)

	var list lemonSubscriptionList
	if err := c.api.getJSON(ctx, "list_subscriptions", c.api.cfg.BaseURL+"/subscriptions?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	for _, s := range list.Data {
		if s.Attributes.Status != "active" {
			continue
		}
		return &Subscription{
			ID:       string(s.ID),
			Status:   s.Attributes.Status,
			PlanID:   string(s.Attributes.ProductID),
			Email:    s.Attributes.UserEmail,
			RenewsAt: s.Attributes.RenewsAt,
		}, nil
	}
	return nil, nil
}

// Order is the part of a Lemon Squeezy order shown after checkout
type Order struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type lemonOrderResponse struct {
	Data *struct {
		ID         flexibleID `json:"id"`
		Attributes *struct {
			UserEmail string `json:"user_email"`
		} `json:"attributes"`
	} `json:"data"`
}

// GetOrder fetches an order by id
func (c *LemonClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp lemonOrderResponse
	err := c.api.getJSON(ctx, "get_order", c.api.cfg.BaseURL+"/orders/"+url.PathEscape(orderID), &resp)
	if IsNotFound(err) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Attributes == nil {
		return nil, ErrOrderNotFound
	}
	return &Order{ID: orderID, Email: resp.Data.Attributes.UserEmail}, nil
}
