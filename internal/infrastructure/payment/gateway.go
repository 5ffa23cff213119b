package payment

import (
	"context"
	"errors"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

type CheckoutRequest struct {
	Reference   string
	PaymentID   int64
	Description string
	Amount      int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	Email       string
}

type Session struct {
	ID        string        `json:"id"`
	URL       string        `json:"url,omitempty"`
	Status    SessionStatus `json:"status"`
	Paid      bool          `json:"paid"`
	PaymentID int64         `json:"payment_id,omitempty"`
}

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

type WebhookEvent struct {
	ID      string
	Type    string
	Session *Session
}

// Gateway is the slice of a payment processor the marketplace relies on.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
