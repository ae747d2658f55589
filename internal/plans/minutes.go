package plans

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Minutes is a recording-minute balance. Negative values are reserved for the
// Unlimited variant; a finite balance is never below zero.
type Minutes int64

// Unlimited marks a balance that is never decremented.
const Unlimited Minutes = -1

// IsUnlimited reports whether m is the Unlimited variant.
func (m Minutes) IsUnlimited() bool {
	return m < 0
}

// Available reports whether any recording time is left.
func (m Minutes) Available() bool {
	return m.IsUnlimited() || m > 0
}

// Sub deducts n minutes, clamping at zero. Unlimited balances are unchanged.
func (m Minutes) Sub(n int64) Minutes {
	if m.IsUnlimited() {
		return Unlimited
	}
	if n < 0 {
		n = 0
	}
	if int64(m) <= n {
		return 0
	}
	return m - Minutes(n)
}

func (m Minutes) String() string {
	if m.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(m), 10)
}

// MarshalJSON encodes Unlimited as the string "unlimited".
func (m Minutes) MarshalJSON() ([]byte, error) {
	if m.IsUnlimited() {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(int64(m), 10)), nil
}

// UnmarshalJSON accepts either a number or "unlimited".
func (m *Minutes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "unlimited" {
			*m = Unlimited
			return nil
		}
		return fmt.Errorf("invalid minutes %q", s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid minutes: %w", err)
	}
	if n < 0 {
		*m = Unlimited
		return nil
	}
	*m = Minutes(n)
	return nil
}

// DurationToMinutes converts a clip length to billable minutes, rounding up so
// a one-second clip costs a full minute.
func DurationToMinutes(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}
