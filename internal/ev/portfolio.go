package ev

import (
	"time"

	"github.com/contactkeval/option-ev/internal/strategy"
)

// PortfolioValue sums PriceLeg over legs, in leg order, at terminal price ST.
// The first leg that fails stops the sum and its error carries the leg index.
func PortfolioValue(legs strategy.Spread, ST, rate float64, evalDate time.Time) (float64, error) {
	total := 0.0
	for i, leg := range legs {
		v, err := priceLeg(i, leg, ST, rate, evalDate)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// ValidateLegs prices every leg once at its own strike so that leg errors
// surface before any integration starts.
func ValidateLegs(legs strategy.Spread, rate float64, evalDate time.Time) error {
	for i, leg := range legs {
		if _, err := priceLeg(i, leg, leg.Strike, rate, evalDate); err != nil {
			return err
		}
	}
	return nil
}
