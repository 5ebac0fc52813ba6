package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreditPriority decides which pool is drawn first once both have allowance.
type CreditPriority string

const (
	PrioritySubscriptionFirst CreditPriority = "subscription-first"
	PriorityTopupFirst        CreditPriority = "topup-first"
	PriorityMixed             CreditPriority = "mixed"
)

func (p CreditPriority) Valid() bool {
	switch p {
	case PrioritySubscriptionFirst, PriorityTopupFirst, PriorityMixed:
		return true
	}
	return false
}

// CreditSource names the pool a charge was drawn from.
type CreditSource string

const (
	SourceSubscription CreditSource = "subscription"
	SourceTopup        CreditSource = "topup"
)

// CreditAccount holds a user's non-expiring top-up credits. TotalAvailable is
// derived and always equals the sum of Available.
type CreditAccount struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	Available       map[Category]int64 `bson:"available" json:"available"`
	Consumed        map[Category]int64 `bson:"consumed" json:"consumed"`
	TotalAvailable  int64              `bson:"total_available" json:"total_available"`
	Priority        CreditPriority     `bson:"priority" json:"priority"`
	PurchaseHistory []CreditPurchase   `bson:"purchase_history" json:"purchase_history"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

type CreditPurchase struct {
	PackageID     primitive.ObjectID `bson:"package_id" json:"package_id"`
	PaymentID     primitive.ObjectID `bson:"payment_id" json:"payment_id"`
	TransactionID string             `bson:"transaction_id" json:"transaction_id"`
	Credits       map[Category]int64 `bson:"credits" json:"credits"`
	Total         int64              `bson:"total" json:"total"`
	PurchasedAt   time.Time          `bson:"purchased_at" json:"purchased_at"`
}

func (a *CreditAccount) AvailableFor(c Category) int64 {
	if a == nil {
		return 0
	}
	return a.Available[c]
}

// SumCredits totals the positive entries of a per-category credit map.
func SumCredits(credits map[Category]int64) int64 {
	var total int64
	for _, n := range credits {
		if n > 0 {
			total += n
		}
	}
	return total
}
