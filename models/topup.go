package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TopupPackage struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Price         float64            `bson:"price" json:"price"`
	Currency      string             `bson:"currency" json:"currency"`
	Credits       map[Category]int64 `bson:"credits" json:"credits"`
	TotalCredits  int64              `bson:"total_credits" json:"total_credits"`
	IsActive      bool               `bson:"is_active" json:"is_active"`
	Featured      bool               `bson:"featured" json:"featured"`
	SortOrder     int                `bson:"sort_order" json:"sort_order"`
	PurchaseCount int64              `bson:"purchase_count" json:"purchase_count"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Normalize drops unknown or non-positive credit entries and recomputes
// TotalCredits. Call before every write.
func (p *TopupPackage) Normalize() {
	credits := make(map[Category]int64, len(p.Credits))
	for c, n := range p.Credits {
		if c.Valid() && n > 0 {
			credits[c] = n
		}
	}
	p.Credits = credits
	p.TotalCredits = SumCredits(credits)
}
