package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

type PaymentPurpose string

const PaymentPurposeFeatureAd PaymentPurpose = "feature_ad"

type Payment struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	AdID        int64          `json:"ad_id"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Purpose     PaymentPurpose `json:"purpose"`
	Status      PaymentStatus  `json:"status"`
	Provider    string         `json:"provider"`
	SessionID   string         `json:"session_id,omitempty"`
	CheckoutURL string         `json:"checkout_url,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// IsFinal reports whether the payment can no longer change state.
func (p *Payment) IsFinal() bool {
	return p.Status != PaymentStatusPending
}

// PaymentTotals aggregates payments for the admin dashboard. Revenue only
// counts paid payments and is keyed by currency, in minor units.
type PaymentTotals struct {
	Counts  map[PaymentStatus]int `json:"counts"`
	Revenue map[string]int64      `json:"revenue"`
}
