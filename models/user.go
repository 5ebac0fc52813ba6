package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingAnnual  BillingCycle = "annual"
)

func (b BillingCycle) Valid() bool {
	return b == BillingMonthly || b == BillingAnnual
}

// Advance moves t forward by one billing period.
func (b BillingCycle) Advance(t time.Time) time.Time {
	if b == BillingAnnual {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	Password     string             `bson:"password" json:"-"`
	Role         string             `bson:"role" json:"role"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	Subscription Subscription       `bson:"subscription" json:"subscription"`
	LastLoginAt  *time.Time         `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// Subscription is nil-plan for users on the free tier.
type Subscription struct {
	PlanID       *primitive.ObjectID `bson:"plan_id,omitempty" json:"plan_id,omitempty"`
	PlanSlug     string              `bson:"plan_slug" json:"plan_slug"`
	BillingCycle BillingCycle        `bson:"billing_cycle" json:"billing_cycle"`
	Status       SubscriptionStatus  `bson:"status" json:"status"`
	ExpiresAt    *time.Time          `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	AutoRenewal  bool                `bson:"auto_renewal" json:"auto_renewal"`
	ActivatedAt  *time.Time          `bson:"activated_at,omitempty" json:"activated_at,omitempty"`

	// PaymentID is the payment that activated the current period.
	PaymentID *primitive.ObjectID `bson:"payment_id,omitempty" json:"-"`
}

// IsActive reports whether the paid subscription currently grants its plan.
func (s Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// Period is the usage window length at now. Only a live annual
// subscription gets an annual window; a lapsed one is back on monthly.
func (s Subscription) Period(now time.Time) BillingCycle {
	if s.BillingCycle == BillingAnnual && s.IsActive(now) {
		return BillingAnnual
	}
	return BillingMonthly
}

// AutoRenewalStatus is the renewal preference of a user's subscription.
type AutoRenewalStatus struct {
	AutoRenewal bool               `json:"auto_renewal"`
	PlanSlug    string             `json:"plan_slug"`
	Status      SubscriptionStatus `json:"status"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
}
