package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentChannel string

const (
	ChannelCard  PaymentChannel = "card"
	ChannelStars PaymentChannel = "stars"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusSucceeded InvoiceStatus = "succeeded"
	InvoiceStatusCanceled  InvoiceStatus = "canceled"
	InvoiceStatusExpired   InvoiceStatus = "expired"
)

// Invoice is one payment attempt. ExternalID is the provider-side payment id
// for the card channel; for the credits channel the invoice id itself is the
// payload, so ExternalID stays empty until the charge id arrives.
type Invoice struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	ExternalID *string        `json:"external_id,omitempty" db:"external_id"`
	UserID     int64          `json:"user_id" db:"tg_id"`
	Channel    PaymentChannel `json:"channel" db:"channel"`
	Amount     int64          `json:"amount" db:"amount"`
	Days       int            `json:"days" db:"days"`
	Status     InvoiceStatus  `json:"status" db:"status"`
	MessageID  int            `json:"message_id" db:"message_id"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt  int64          `json:"expires_at" db:"expires_at"` // unix seconds
}

func (i *Invoice) Expired(now time.Time) bool {
	return i.Status == InvoiceStatusPending && i.ExpiresAt <= now.Unix()
}
