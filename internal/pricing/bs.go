package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when a closed-form input is outside the
// formula's domain (non-positive spot, strike, time or volatility).
var ErrInvalidInput = errors.New("invalid pricing input")

// BlackScholesPrice calculates the price of a European option using the Black-Scholes model.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual, continuously compounded)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price of the option, or ErrInvalidInput when S, K, T or
//	sigma is not strictly positive. The formula is never evaluated outside
//	its domain, so the price is always finite.
func BlackScholesPrice(
	isCall bool,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) (float64, error) {

	switch {
	case !(S > 0):
		return 0, fmt.Errorf("%w: spot %v", ErrInvalidInput, S)
	case !(K > 0):
		return 0, fmt.Errorf("%w: strike %v", ErrInvalidInput, K)
	case !(T > 0):
		return 0, fmt.Errorf("%w: time to expiry %v", ErrInvalidInput, T)
	case !(sigma > 0):
		return 0, fmt.Errorf("%w: volatility %v", ErrInvalidInput, sigma)
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	df := math.Exp(-r * T)

	if isCall {
		return S*NormCDF(d1) - K*df*NormCDF(d2), nil
	}
	// 1-N(x) == N(-x); the symmetric form keeps precision deep in the money
	return K*df*NormCDF(-d2) - S*NormCDF(-d1), nil
}

// Intrinsic returns the exercise value of an option at underlying price S.
func Intrinsic(isCall bool, S, K float64) float64 {
	if isCall {
		return math.Max(S-K, 0)
	}
	return math.Max(K-S, 0)
}

// NormCDF computes the cumulative distribution function of the standard normal distribution
// for a given value x using the error function.
// It returns a value between 0 and 1 representing the probability that a standard normal
// random variable is less than or equal to x.
func NormCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
