// Package plans holds the static pricing table. Order creation and plan
// activation both read from it so the amount charged and the minutes granted
// always come from the same entry.
package plans

import (
	"fmt"
	"sort"
	"strings"
)

// PlanType identifies a subscription tier.
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanLite PlanType = "lite"
	PlanPro  PlanType = "pro"
	PlanMax  PlanType = "max"
)

// FreeMinutes is the balance a free-tier user starts with and is reset to on downgrade.
const FreeMinutes Minutes = 30

// Plan is one row of the pricing table.
type Plan struct {
	Type        PlanType `json:"plan"`
	DisplayName string   `json:"display_name"`
	Amount      int64    `json:"amount"` // minor currency units (paisa)
	Currency    string   `json:"currency"`
	Minutes     Minutes  `json:"minutes"`
}

// IsPremium reports whether the plan unlocks the premium origin.
func (p Plan) IsPremium() bool {
	return p.Type != PlanFree
}

// AmountMajor returns the amount in major currency units as the gateway expects it.
func (p Plan) AmountMajor() float64 {
	return float64(p.Amount) / 100
}

var table = map[PlanType]Plan{
	PlanFree: {Type: PlanFree, DisplayName: "Free", Amount: 0, Currency: "INR", Minutes: FreeMinutes},
	PlanLite: {Type: PlanLite, DisplayName: "Lite", Amount: 19900, Currency: "INR", Minutes: 60},
	PlanPro:  {Type: PlanPro, DisplayName: "Pro", Amount: 49900, Currency: "INR", Minutes: 300},
	PlanMax:  {Type: PlanMax, DisplayName: "Max", Amount: 99900, Currency: "INR", Minutes: Unlimited},
}

// Lookup returns the pricing entry for a plan.
func Lookup(t PlanType) (Plan, bool) {
	p, ok := table[t]
	return p, ok
}

// Purchasable returns the entry for a plan that can be bought. The free tier
// is not purchasable.
func Purchasable(t PlanType) (Plan, error) {
	p, ok := table[t]
	if !ok {
		return Plan{}, fmt.Errorf("unknown plan %q", t)
	}
	if p.Amount <= 0 {
		return Plan{}, fmt.Errorf("plan %q cannot be purchased", t)
	}
	return p, nil
}

// Parse normalizes a user-supplied plan name.
func Parse(s string) (PlanType, error) {
	t := PlanType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := table[t]; !ok {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known plan.
func Valid(t PlanType) bool {
	_, ok := table[t]
	return ok
}

// All returns the pricing table ordered by price.
func All() []Plan {
	out := make([]Plan, 0, len(table))
	for _, p := range table {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount < out[j].Amount })
	return out
}
