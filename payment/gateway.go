package payment

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Gateway is a hosted-checkout payment provider.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	RetrieveCheckout(ctx context.Context, sessionID string) (*Checkout, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type CheckoutRequest struct {
	Reference     string // our payment id
	Description   string
	AmountMinor   int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

type Checkout struct {
	SessionID  string
	URL        string
	PaymentRef string
	Paid       bool
	Expired    bool
}

type EventType string

const (
	EventCheckoutCompleted EventType = "checkout_completed"
	EventCheckoutFailed    EventType = "checkout_failed"
	EventRefunded          EventType = "refunded"
	EventIgnored           EventType = "ignored"
)

// Event is a provider webhook reduced to what fulfilment needs.
type Event struct {
	ID         string
	Type       EventType
	RawType    string
	SessionID  string
	PaymentRef string
	Paid       bool
}
