// Package quadrature integrates one-dimensional functions over finite
// intervals by adaptive bisection.
//
// Each panel is estimated with a Gauss-Legendre rule; a panel is accepted
// when the estimate over the whole panel agrees with the sum over its two
// halves to within the panel's share of the tolerance, otherwise both halves
// are refined independently. Known non-smooth points (strikes, for payoffs)
// can be supplied as breakpoints so that no panel straddles a kink.
package quadrature

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
)

// Defaults mirror the usual library defaults for adaptive quadrature.
const (
	DefaultAbsTol   = 1e-8
	DefaultRelTol   = 1e-8
	DefaultOrder    = 15
	DefaultMaxDepth = 40
	DefaultMaxEvals = 200000
)

// ErrInvalidInterval is returned for empty, reversed or non-finite bounds.
var ErrInvalidInterval = errors.New("invalid integration interval")

// Options tunes the integrator. The zero value selects the defaults.
type Options struct {
	AbsTol   float64   // absolute tolerance on the total
	RelTol   float64   // tolerance relative to |total|
	Order    int       // Gauss-Legendre nodes per panel
	MaxDepth int       // max bisections of any initial panel
	MaxEvals int       // hard cap on function evaluations
	Points   []float64 // breakpoints; values outside (a, b) are ignored
}

// Result of an integration.
type Result struct {
	Value         float64
	ErrorEstimate float64 // sum of |whole - halves| over accepted panels
	Evaluations   int
	Converged     bool // false when a depth or evaluation cap stopped refinement
}

func (o Options) withDefaults() Options {
	if o.AbsTol <= 0 {
		o.AbsTol = DefaultAbsTol
	}
	if o.RelTol <= 0 {
		o.RelTol = DefaultRelTol
	}
	if o.Order <= 0 {
		o.Order = DefaultOrder
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxEvals <= 0 {
		o.MaxEvals = DefaultMaxEvals
	}
	return o
}

type integrator struct {
	f        func(float64) float64
	nodes    []float64 // on [-1, 1]
	weights  []float64
	maxDepth int
	maxEvals int

	evals     int
	errEst    float64
	converged bool
}

// Integrate approximates the integral of f over [a, b].
func Integrate(f func(float64) float64, a, b float64, opts Options) (Result, error) {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) || !(b > a) {
		return Result{}, fmt.Errorf("%w: [%v, %v]", ErrInvalidInterval, a, b)
	}
	opts = opts.withDefaults()

	in := &integrator{
		f:         f,
		nodes:     make([]float64, opts.Order),
		weights:   make([]float64, opts.Order),
		maxDepth:  opts.MaxDepth,
		maxEvals:  opts.MaxEvals,
		converged: true,
	}
	quad.Legendre{}.FixedLocations(in.nodes, in.weights, -1, 1)

	edges := Breakpoints(a, b, opts.Points)

	// coarse pass fixes the scale for the relative tolerance
	coarse := make([]float64, len(edges)-1)
	total := 0.0
	for i := range coarse {
		coarse[i] = in.rule(edges[i], edges[i+1])
		total += coarse[i]
	}
	tol := math.Max(opts.AbsTol, opts.RelTol*math.Abs(total))

	value := 0.0
	for i := range coarse {
		lo, hi := edges[i], edges[i+1]
		value += in.adapt(lo, hi, coarse[i], tol*(hi-lo)/(b-a), 0)
	}

	return Result{
		Value:         value,
		ErrorEstimate: in.errEst,
		Evaluations:   in.evals,
		Converged:     in.converged,
	}, nil
}

// Breakpoints returns the sorted, de-duplicated panel edges for [a, b]
// including a and b themselves.
func Breakpoints(a, b float64, points []float64) []float64 {
	edges := []float64{a, b}
	for _, p := range points {
		if p > a && p < b {
			edges = append(edges, p)
		}
	}
	sort.Float64s(edges)

	out := edges[:1]
	for _, e := range edges[1:] {
		if e != out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}

// rule applies the Gauss-Legendre rule on [lo, hi].
func (in *integrator) rule(lo, hi float64) float64 {
	half := 0.5 * (hi - lo)
	mid := 0.5 * (hi + lo)
	sum := 0.0
	for i, x := range in.nodes {
		sum += in.weights[i] * in.f(mid+half*x)
	}
	in.evals += len(in.nodes)
	return half * sum
}

func (in *integrator) adapt(lo, hi, whole, tol float64, depth int) float64 {
	mid := 0.5 * (lo + hi)
	left := in.rule(lo, mid)
	right := in.rule(mid, hi)
	halves := left + right
	diff := math.Abs(halves - whole)

	if diff <= tol || math.IsNaN(diff) {
		in.errEst += diff
		return halves
	}
	if depth >= in.maxDepth || in.evals >= in.maxEvals || !(mid > lo && mid < hi) {
		in.converged = false
		in.errEst += diff
		return halves
	}

	return in.adapt(lo, mid, left, tol/2, depth+1) + in.adapt(mid, hi, right, tol/2, depth+1)
}
