// Package ev computes the expected value and expected return of an option
// spread under a risk-neutral log-normal model of the underlying.
//
// The pieces compose bottom-up: PriceLeg values one leg at a hypothetical
// terminal price, PortfolioValue sums legs, BuildDensity gives the terminal
// price density, and ExpectedValue integrates P/L against that density.
// Everything here is a pure function of its arguments.
package ev

import (
	"fmt"
	"math"
	"time"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/logger"
	"github.com/contactkeval/option-ev/internal/quadrature"
	"github.com/contactkeval/option-ev/internal/strategy"
)

// DefaultUpperMultiple truncates the integration domain at 3×spot. The
// probability mass above the bound is reported as Expectation.TailMass.
const DefaultUpperMultiple = 3.0

// EvaluationContext is the market state for one valuation.
type EvaluationContext struct {
	Spot     float64   // underlying spot today
	Rate     float64   // annual, continuously compounded
	ATMVol   float64   // drives the density only; legs use their own vol
	Today    time.Time // valuation date
	EvalDate time.Time // horizon at which P/L is measured
}

// Options tunes the integration. The zero value selects the defaults.
type Options struct {
	UpperMultiple float64 // domain is (0, UpperMultiple×spot]
	AbsTol        float64
	RelTol        float64
}

func (o Options) withDefaults() Options {
	if !(o.UpperMultiple > 0) {
		o.UpperMultiple = DefaultUpperMultiple
	}
	if o.AbsTol <= 0 {
		o.AbsTol = quadrature.DefaultAbsTol
	}
	if o.RelTol <= 0 {
		o.RelTol = quadrature.DefaultRelTol
	}
	return o
}

// Expectation is an EV estimate with its diagnostics.
type Expectation struct {
	Value         float64 // E[portfolio value - initial cost]
	InitialCost   float64
	ErrorEstimate float64 // quadrature error estimate
	TailMass      float64 // P(ST > upper bound)
	UpperBound    float64
	Evaluations   int
	Converged     bool
}

// ExpectedValue integrates (PortfolioValue(ST) - cost0)·pdf(ST) over
// ST in (0, UpperMultiple×spot], where cost0 is the spread's initial cost.
func ExpectedValue(legs strategy.Spread, mkt EvaluationContext, opts Options) (Expectation, error) {
	opts = opts.withDefaults()

	density, err := BuildDensity(mkt.Spot, mkt.Rate, mkt.ATMVol, mkt.Today, mkt.EvalDate)
	if err != nil {
		return Expectation{}, err
	}
	if err := ValidateLegs(legs, mkt.Rate, mkt.EvalDate); err != nil {
		return Expectation{}, err
	}

	cost0 := legs.InitialCost()
	upper := opts.UpperMultiple * mkt.Spot

	var legErr error
	integrand := func(ST float64) float64 {
		if legErr != nil {
			return 0
		}
		v, err := PortfolioValue(legs, ST, mkt.Rate, mkt.EvalDate)
		if err != nil {
			legErr = err
			return 0
		}
		return (v - cost0) * density.PDF(ST)
	}

	res, err := quadrature.Integrate(integrand, 0, upper, quadrature.Options{
		AbsTol: opts.AbsTol,
		RelTol: opts.RelTol,
		Points: append(legs.Strikes(), density.Anchors(upper)...),
	})
	if err != nil {
		return Expectation{}, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	if legErr != nil {
		return Expectation{}, legErr
	}
	if !finite(res.Value) {
		return Expectation{}, fmt.Errorf("%w: expected value %v at %s", ErrNumerical, res.Value, daycount.Format(mkt.EvalDate))
	}
	if !res.Converged {
		logger.Infof("event=quadrature_not_converged date=%s err_estimate=%.3g evals=%d",
			daycount.Format(mkt.EvalDate), res.ErrorEstimate, res.Evaluations)
	}

	exp := Expectation{
		Value:         res.Value,
		InitialCost:   cost0,
		ErrorEstimate: res.ErrorEstimate,
		TailMass:      density.TailMass(upper),
		UpperBound:    upper,
		Evaluations:   res.Evaluations,
		Converged:     res.Converged,
	}

	logger.Debugf("event=expected_value date=%s ev=%.6f cost0=%.4f tail_mass=%.3g evals=%d",
		daycount.Format(mkt.EvalDate), exp.Value, cost0, exp.TailMass, exp.Evaluations)

	return exp, nil
}

// ExpectedReturn normalises EV by the absolute initial cost of legs, so debit
// and credit spreads of the same size compare directly.
// A zero-cost spread returns ErrZeroCostSpread.
func ExpectedReturn(ev float64, legs strategy.Spread) (float64, error) {
	cost0 := legs.InitialCost()
	if cost0 == 0 {
		return 0, ErrZeroCostSpread
	}
	if !finite(ev) {
		return 0, fmt.Errorf("%w: expected value %v", ErrNumerical, ev)
	}
	return ev / math.Abs(cost0), nil
}
