package model

import (
	"time"
)

type User struct {
	ID            int64     `json:"id" db:"tg_id"`
	Username      *string   `json:"username,omitempty" db:"username"`
	FirstName     *string   `json:"first_name,omitempty" db:"first_name"`
	ReferralCode  string    `json:"referral_code" db:"referral_code"`
	ReferredBy    *string   `json:"referred_by,omitempty" db:"referred_by"` // referrer's code
	ReferralCount int       `json:"referral_count" db:"referral_count"`
	TrialUsed     bool      `json:"trial_used" db:"trial_used"`
	PaidCount     int       `json:"paid_count" db:"paid_count"`
	BalanceDays   int       `json:"balance_days" db:"balance_days"`
	LastPaymentAt *int64    `json:"last_payment_at,omitempty" db:"last_payment_at"`
	Email         *string   `json:"email,omitempty" db:"email"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

func (u *User) HasEmail() bool {
	return u.Email != nil && *u.Email != ""
}

func (u *User) IsReferred() bool {
	return u.ReferredBy != nil && *u.ReferredBy != ""
}
