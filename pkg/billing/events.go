package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Category is the provider-neutral meaning of a webhook event
type Category string

const (
	CategoryActivated Category = "subscription_activated"
	CategoryCancelled Category = "subscription_cancelled"
	CategoryOrder     Category = "order_completed"
	CategoryUnknown   Category = "unknown"
)

// Event is a verified webhook reduced to what the reconciler needs
type Event struct {
	Provider   Provider
	Type       string
	Category   Category
	Email      string
	PlanID     string // price id (Paddle) or product id (Lemon Squeezy)
	Status     string
	ResourceID string
}

// ErrMalformedPayload is returned when a verified body is not the JSON the
// provider documents
var ErrMalformedPayload = errors.New("malformed webhook payload")

// ParseEvent decodes a verified webhook body from the given provider
func ParseEvent(p Provider, body []byte) (Event, error) {
	switch p {
	case ProviderPaddle:
		return ParsePaddleEvent(body)
	case ProviderLemon:
		return ParseLemonEvent(body)
	}
	return Event{}, errors.New("unknown provider: " + string(p))
}

// flexibleID accepts an identifier sent as either a JSON string or number
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexibleID(n.String())
	return nil
}
