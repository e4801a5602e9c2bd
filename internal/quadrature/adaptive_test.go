package quadrature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrateSmoothFunctions(t *testing.T) {
	tests := []struct {
		name     string
		f        func(float64) float64
		a, b     float64
		expected float64
	}{
		{"polynomial", func(x float64) float64 { return 3*x*x - 2*x + 1 }, 0, 2, 8 - 4 + 2},
		{"sine", math.Sin, 0, math.Pi, 2},
		{"exponential", math.Exp, -1, 3, math.Exp(3) - math.Exp(-1)},
		{"gaussian", func(x float64) float64 { return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi) }, -12, 12, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Integrate(tc.f, tc.a, tc.b, Options{})
			require.NoError(t, err)
			assert.True(t, res.Converged)
			assert.InDelta(t, tc.expected, res.Value, 1e-8)
			assert.Greater(t, res.Evaluations, 0)
		})
	}
}

func TestIntegrateKinkWithBreakpoint(t *testing.T) {
	payoff := func(x float64) float64 { return math.Max(x-100, 0) }

	// exact: (200-100)^2 / 2
	res, err := Integrate(payoff, 0, 200, Options{Points: []float64{100}})
	require.NoError(t, err)
	assert.InDelta(t, 5000, res.Value, 1e-9)

	// without the breakpoint the kink is still resolved by refinement
	res, err = Integrate(payoff, 0, 300, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 20000, res.Value, 1e-3)
}

func TestIntegrateRejectsBadIntervals(t *testing.T) {
	f := func(x float64) float64 { return x }

	for _, bounds := range [][2]float64{{1, 1}, {2, 1}, {math.NaN(), 1}, {0, math.Inf(1)}} {
		_, err := Integrate(f, bounds[0], bounds[1], Options{})
		assert.ErrorIs(t, err, ErrInvalidInterval)
	}
}

func TestIntegrateReportsNonConvergence(t *testing.T) {
	// discontinuous everywhere at fine scales relative to the depth cap
	f := func(x float64) float64 { return math.Copysign(1, math.Sin(1/x)) }

	res, err := Integrate(f, 1e-6, 1, Options{MaxDepth: 3, AbsTol: 1e-14, RelTol: 1e-14})
	require.NoError(t, err)
	assert.False(t, res.Converged)
}

func TestIntegrateIsDeterministic(t *testing.T) {
	f := func(x float64) float64 { return math.Log1p(x) * math.Cos(3*x) }

	first, err := Integrate(f, 0, 10, Options{Points: []float64{2.5, 7}})
	require.NoError(t, err)
	second, err := Integrate(f, 0, 10, Options{Points: []float64{7, 2.5}})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBreakpoints(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 2, 5}, Breakpoints(0, 5, []float64{2, 1, 2, -3, 5, 9}))
	assert.Equal(t, []float64{0, 5}, Breakpoints(0, 5, nil))
}
