// Package strategy holds the option spread domain types and the logic for
// turning a user-supplied spread definition into fully-resolved legs.
//
// Responsibilities:
//   - Define Leg and Spread as consumed by the valuation engine
//   - Resolve strikes from rules such as ATM offsets or leg expressions
//   - Resolve expirations from explicit dates or days-to-expiry
//
// This package performs no pricing and holds no state.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/contactkeval/option-ev/internal/daycount"
)

// OptionType is the right conveyed by a leg.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType normalises "call"/"c"/"put"/"p" (any case).
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return OptionType(s), fmt.Errorf("%w: option type %q", ErrInvalidLegSpec, s)
}

// Valid reports whether t is call or put.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Leg is one fully-resolved option position.
type Leg struct {
	Type       OptionType `json:"type"`   // call or put
	Strike     float64    `json:"strike"` // strike price
	Expiry     time.Time  `json:"expiry"` // expiration date
	Quantity   float64    `json:"qty"`    // signed: positive long, negative short
	EntryPrice float64    `json:"price"`  // premium per unit paid (long) or received (short)
	ImpliedVol float64    `json:"iv"`     // annualized vol for closed-form pricing
}

func (l Leg) String() string {
	return fmt.Sprintf("%+g %s %.2f %s @ %.2f iv=%.4f",
		l.Quantity, l.Type, l.Strike, daycount.Format(l.Expiry), l.EntryPrice, l.ImpliedVol)
}

// Spread is an ordered collection of legs. Order does not affect value.
type Spread []Leg

// InitialCost returns Σ quantity × entry price. Positive for a net debit,
// negative for a net credit.
func (s Spread) InitialCost() float64 {
	cost := 0.0
	for _, l := range s {
		cost += l.Quantity * l.EntryPrice
	}
	return cost
}

// Strikes returns every leg strike in leg order.
func (s Spread) Strikes() []float64 {
	out := make([]float64, 0, len(s))
	for _, l := range s {
		out = append(out, l.Strike)
	}
	return out
}

// LastExpiry returns the latest expiry across legs, or the zero time for an
// empty spread.
func (s Spread) LastExpiry() time.Time {
	var last time.Time
	for _, l := range s {
		if l.Expiry.After(last) {
			last = l.Expiry
		}
	}
	return last
}
