package ev

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/pricing"
	"github.com/contactkeval/option-ev/internal/strategy"
)

// PriceLeg values one leg at terminal price ST on evalDate, quantity included.
//
// A leg expiring on or before evalDate is worth its intrinsic payoff. Any
// other leg is priced with Black-Scholes using its own implied volatility and
// the Actual/365-fixed time from evalDate to its expiry.
//
// Errors are *UnsupportedLegTypeError or *InvalidLegError with Index 0; use
// PortfolioValue to get spread positions.
func PriceLeg(leg strategy.Leg, ST, rate float64, evalDate time.Time) (float64, error) {
	return priceLeg(0, leg, ST, rate, evalDate)
}

func priceLeg(idx int, leg strategy.Leg, ST, rate float64, evalDate time.Time) (float64, error) {
	if !leg.Type.Valid() {
		return 0, &UnsupportedLegTypeError{Index: idx, Type: leg.Type}
	}
	if !finitePositive(leg.Strike) {
		return 0, &InvalidLegError{Index: idx, Leg: leg, Reason: "strike must be positive"}
	}
	if !finite(leg.Quantity) || !finite(leg.EntryPrice) {
		return 0, &InvalidLegError{Index: idx, Leg: leg, Reason: "quantity and entry price must be finite"}
	}
	if ST < 0 || math.IsNaN(ST) {
		return 0, fmt.Errorf("%w: terminal price %v", ErrInvalidMarket, ST)
	}

	isCall := leg.Type == strategy.Call

	days := daycount.Days(evalDate, leg.Expiry)
	if days <= 0 {
		return leg.Quantity * pricing.Intrinsic(isCall, ST, leg.Strike), nil
	}

	if !finitePositive(leg.ImpliedVol) {
		return 0, &InvalidLegError{Index: idx, Leg: leg, Reason: "implied volatility must be positive on a live leg"}
	}

	T := float64(days) / daycount.DaysPerYear

	if ST == 0 {
		// limits of the closed form as ST -> 0
		if isCall {
			return 0, nil
		}
		return leg.Quantity * leg.Strike * math.Exp(-rate*T), nil
	}

	price, err := pricing.BlackScholesPrice(isCall, ST, leg.Strike, T, rate, leg.ImpliedVol)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidInput) {
			return 0, &InvalidLegError{Index: idx, Leg: leg, Reason: err.Error()}
		}
		return 0, err
	}
	return leg.Quantity * price, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
