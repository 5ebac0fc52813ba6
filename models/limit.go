package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const unlimitedToken = "unlimited"

// Limit is a quota ceiling. Unlimited is an explicit tag; a capped limit with
// Max 0 grants no access at all.
type Limit struct {
	Unlimited bool  `bson:"unlimited"`
	Max       int64 `bson:"max"`
}

func UnlimitedLimit() Limit {
	return Limit{Unlimited: true}
}

func CappedLimit(max int64) Limit {
	if max < 0 {
		max = 0
	}
	return Limit{Max: max}
}

// Allows reports whether one more unit may be consumed at the given usage.
func (l Limit) Allows(used int64) bool {
	return l.Unlimited || used < l.Max
}

// AllowsAmount reports whether amount more units fit on top of used.
func (l Limit) AllowsAmount(used, amount int64) bool {
	return l.Unlimited || used+amount <= l.Max
}

// Remaining is -1 for unlimited limits.
func (l Limit) Remaining(used int64) int64 {
	if l.Unlimited {
		return -1
	}
	if used >= l.Max {
		return 0
	}
	return l.Max - used
}

// Percentage of the limit consumed, capped at 100. Unlimited limits report 0.
func (l Limit) Percentage(used int64) float64 {
	if l.Unlimited {
		return 0
	}
	if l.Max <= 0 {
		return 100
	}
	pct := float64(used) / float64(l.Max) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Scale multiplies a capped limit, used to turn MB/GB plan values into bytes.
func (l Limit) Scale(factor int64) Limit {
	if l.Unlimited {
		return l
	}
	return Limit{Max: l.Max * factor}
}

func (l Limit) String() string {
	if l.Unlimited {
		return unlimitedToken
	}
	return strconv.FormatInt(l.Max, 10)
}

// MarshalJSON renders "unlimited" or a plain number.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.Unlimited {
		return json.Marshal(unlimitedToken)
	}
	return json.Marshal(l.Max)
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != unlimitedToken {
			return fmt.Errorf("invalid limit %q", s)
		}
		*l = UnlimitedLimit()
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid limit: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("invalid limit %d: must not be negative", n)
	}
	*l = CappedLimit(n)
	return nil
}
