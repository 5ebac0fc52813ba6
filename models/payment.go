package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentKind string

const (
	PaymentSubscription PaymentKind = "subscription"
	PaymentTopup        PaymentKind = "topup"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentSuccess  PaymentStatus = "success"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Payment struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Kind             PaymentKind         `bson:"kind" json:"kind"`
	PlanID           *primitive.ObjectID `bson:"plan_id,omitempty" json:"plan_id,omitempty"`
	PackageID        *primitive.ObjectID `bson:"package_id,omitempty" json:"package_id,omitempty"`
	Description      string              `bson:"description" json:"description"`
	BillingCycle     BillingCycle        `bson:"billing_cycle,omitempty" json:"billing_cycle,omitempty"`
	Amount           float64             `bson:"amount" json:"amount"`
	Currency         string              `bson:"currency" json:"currency"`
	Status           PaymentStatus       `bson:"status" json:"status"`
	Gateway          string              `bson:"gateway" json:"gateway"`
	TransactionID    string              `bson:"transaction_id,omitempty" json:"transaction_id"` // gateway checkout session
	PaymentRef       string              `bson:"payment_ref,omitempty" json:"payment_ref,omitempty"`
	CheckoutURL      string              `bson:"checkout_url,omitempty" json:"checkout_url,omitempty"`
	CreditsAllocated map[Category]int64  `bson:"credits_allocated,omitempty" json:"credits_allocated,omitempty"`
	UserSnapshot     UserSnapshot        `bson:"user_snapshot" json:"user_snapshot"`
	FailureReason    string              `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	InvoiceNumber    string              `bson:"invoice_number" json:"invoice_number"`
	InvoiceSent      bool                `bson:"invoice_sent" json:"invoice_sent"`
	PaidAt           *time.Time          `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	CreatedAt        time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `bson:"updated_at" json:"updated_at"`
}

type UserSnapshot struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

// AmountMinor converts the amount to the currency's minor unit.
func (p *Payment) AmountMinor() int64 {
	return int64(p.Amount*100 + 0.5)
}
