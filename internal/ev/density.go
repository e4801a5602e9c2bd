package ev

import (
	"fmt"
	"math"
	"time"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/pricing"
)

// Density is the risk-neutral terminal price density at an evaluation date.
type Density struct {
	T    float64 // horizon in years, Actual/365-fixed
	dist pricing.LogNormal
}

// BuildDensity constructs the log-normal density of the underlying price at
// evalDate, seen from today, for spot, continuously-compounded rate and the
// at-the-money volatility iv.
func BuildDensity(spot, rate, iv float64, today, evalDate time.Time) (Density, error) {
	T := daycount.YearFraction(today, evalDate)
	if T <= 0 {
		return Density{}, fmt.Errorf("%w: %s (today %s)",
			ErrEvaluationDateNotFuture, daycount.Format(evalDate), daycount.Format(today))
	}
	if !finitePositive(spot) {
		return Density{}, fmt.Errorf("%w: spot %v", ErrInvalidMarket, spot)
	}
	if !finitePositive(iv) {
		return Density{}, fmt.Errorf("%w: atm volatility %v", ErrInvalidMarket, iv)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Density{}, fmt.Errorf("%w: rate %v", ErrInvalidMarket, rate)
	}

	dist, err := pricing.NewRiskNeutralLogNormal(spot, rate, iv, T)
	if err != nil {
		return Density{}, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	return Density{T: T, dist: dist}, nil
}

// PDF returns the density at ST, zero for ST <= 0.
func (d Density) PDF(ST float64) float64 {
	return d.dist.PDF(ST)
}

// TailMass returns the probability that the terminal price exceeds upper,
// i.e. the mass dropped by truncating the integration domain there.
func (d Density) TailMass(upper float64) float64 {
	return d.dist.Survival(upper)
}

// Mu and SigmaT expose the log-space parameters.
func (d Density) Mu() float64     { return d.dist.Mu }
func (d Density) SigmaT() float64 { return d.dist.SigmaT }

// anchorSigmas is how many log-space standard deviations either side of the
// median get a panel edge.
const anchorSigmas = 8

// Anchors returns exp(Mu + k·SigmaT) for k in -8..8, kept to (0, upper).
// Used as integration breakpoints so a narrow density is never stepped over.
func (d Density) Anchors(upper float64) []float64 {
	out := make([]float64, 0, 2*anchorSigmas+1)
	for k := -anchorSigmas; k <= anchorSigmas; k++ {
		x := math.Exp(d.Mu() + float64(k)*d.SigmaT())
		if x > 0 && x < upper {
			out = append(out, x)
		}
	}
	return out
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
