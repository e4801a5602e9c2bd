package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// LogNormal is the risk-neutral distribution of the terminal underlying
// price ST after T years: ln ST ~ N(Mu, SigmaT²).
type LogNormal struct {
	Mu     float64
	SigmaT float64

	dist distuv.LogNormal
}

// NewRiskNeutralLogNormal builds the terminal price distribution for a
// geometric Brownian motion started at spot with drift rate and volatility
// iv over T years:
//
//	Mu     = ln(spot) + (rate - iv²/2)·T
//	SigmaT = iv·√T
func NewRiskNeutralLogNormal(spot, rate, iv, T float64) (LogNormal, error) {
	switch {
	case !(spot > 0):
		return LogNormal{}, fmt.Errorf("%w: spot %v", ErrInvalidInput, spot)
	case !(iv > 0):
		return LogNormal{}, fmt.Errorf("%w: volatility %v", ErrInvalidInput, iv)
	case !(T > 0):
		return LogNormal{}, fmt.Errorf("%w: horizon %v", ErrInvalidInput, T)
	}

	mu := math.Log(spot) + (rate-0.5*iv*iv)*T
	sigmaT := iv * math.Sqrt(T)
	return LogNormal{
		Mu:     mu,
		SigmaT: sigmaT,
		dist:   distuv.LogNormal{Mu: mu, Sigma: sigmaT},
	}, nil
}

// PDF returns the density at ST; zero for ST <= 0.
func (l LogNormal) PDF(ST float64) float64 {
	if !(ST > 0) {
		return 0
	}
	return l.dist.Prob(ST)
}

// Survival returns P(terminal price > ST).
func (l LogNormal) Survival(ST float64) float64 {
	if !(ST > 0) {
		return 1
	}
	// erfc form avoids 1-CDF cancellation far in the tail
	return 0.5 * math.Erfc((math.Log(ST)-l.Mu)/(l.SigmaT*math.Sqrt2))
}

// Mean returns E[ST].
func (l LogNormal) Mean() float64 {
	return l.dist.Mean()
}
