package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Usage holds one user's consumption for the current cycle window.
type Usage struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Counters     map[Category]int64 `bson:"counters" json:"counters"`
	StorageBytes int64              `bson:"storage_bytes" json:"storage_bytes"`
	Period       BillingCycle       `bson:"period" json:"period"`
	CycleStart   time.Time          `bson:"cycle_start" json:"cycle_start"`
	CycleEnd     time.Time          `bson:"cycle_end" json:"cycle_end"`
	ResetCount   int64              `bson:"reset_count" json:"reset_count"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

func (u *Usage) Used(c Category) int64 {
	if u == nil {
		return 0
	}
	return u.Counters[c]
}

// Due reports whether the cycle window has elapsed at now.
func (u *Usage) Due(now time.Time) bool {
	return !now.Before(u.CycleEnd)
}

// ZeroCounters returns a counter map with every category present.
func ZeroCounters() map[Category]int64 {
	counters := make(map[Category]int64, len(Categories))
	for _, c := range Categories {
		counters[c] = 0
	}
	return counters
}

// CycleWindow returns the first window of the given period starting at start.
// Times are truncated to milliseconds to survive a round trip through BSON.
func CycleWindow(start time.Time, period BillingCycle) (time.Time, time.Time) {
	start = start.UTC().Truncate(time.Millisecond)
	return start, period.Advance(start)
}

// NextWindow advances a window ending at end by whole periods until it
// contains now.
func NextWindow(end time.Time, period BillingCycle, now time.Time) (time.Time, time.Time) {
	start := end.UTC().Truncate(time.Millisecond)
	next := period.Advance(start)
	for !now.Before(next) {
		start = next
		next = period.Advance(start)
	}
	return start, next
}

type CategoryUsage struct {
	Used        int64   `json:"used"`
	Limit       Limit   `json:"limit"`
	Remaining   int64   `json:"remaining"`
	Percentage  float64 `json:"percentage"`
	IsUnlimited bool    `json:"isUnlimited"`
	Topup       int64   `json:"topupAvailable"`
}

type UsageStats struct {
	Plan         *Plan                      `json:"plan"`
	PlanUsage    map[Category]CategoryUsage `json:"planUsage"`
	StorageUsed  int64                      `json:"storageUsed"`
	StorageLimit Limit                      `json:"storageLimit"`
	CycleStart   time.Time                  `json:"cycleStart"`
	CycleEnd     time.Time                  `json:"cycleEnd"`
	Priority     CreditPriority             `json:"creditPriority"`
	TopupBalance int64                      `json:"topupBalance"`
	Subscription Subscription               `json:"subscription"`
}
