package ev

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-ev/internal/strategy"
)

var today = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func days(n int) time.Time { return today.AddDate(0, 0, n) }

// bsCall is an independent closed-form reference.
func bsCall(S, K, T, r, sigma float64) float64 {
	n := func(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }
	d1 := (math.Log(S/K) + (r+sigma*sigma/2)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)
	return S*n(d1) - K*math.Exp(-r*T)*n(d2)
}

func longCall(strike float64, expiry time.Time) strategy.Leg {
	return strategy.Leg{Type: strategy.Call, Strike: strike, Expiry: expiry, Quantity: 1, EntryPrice: 2.0, ImpliedVol: 0.2}
}

func TestPriceLegExpiredIsIntrinsic(t *testing.T) {
	call := longCall(100, days(10))
	put := strategy.Leg{Type: strategy.Put, Strike: 100, Expiry: days(10), Quantity: -2, ImpliedVol: 0}

	for _, rate := range []float64{0, 0.05, -0.01} {
		for _, evalDate := range []time.Time{days(10), days(45)} {
			v, err := PriceLeg(call, 110, rate, evalDate)
			require.NoError(t, err)
			assert.Equal(t, 10.0, v)

			v, err = PriceLeg(call, 90, rate, evalDate)
			require.NoError(t, err)
			assert.Equal(t, 0.0, v)

			// vol is irrelevant once expired
			v, err = PriceLeg(put, 93, rate, evalDate)
			require.NoError(t, err)
			assert.Equal(t, -14.0, v)
		}
	}
}

func TestPriceLegLiveMatchesClosedForm(t *testing.T) {
	leg := longCall(105, days(91))
	leg.Quantity = 3

	v, err := PriceLeg(leg, 100, 0.02, days(0))
	require.NoError(t, err)
	assert.InDelta(t, 3*bsCall(100, 105, 91.0/365.0, 0.02, 0.2), v, 1e-10)
}

func TestPutCallParityOnLiveBranch(t *testing.T) {
	rate := 0.04
	evalDate := days(20)
	expiry := days(20 + 73)
	T := 73.0 / 365.0

	for _, ST := range []float64{60, 95, 100, 130, 240} {
		call := strategy.Leg{Type: strategy.Call, Strike: 100, Expiry: expiry, Quantity: 1, ImpliedVol: 0.35}
		put := call
		put.Type = strategy.Put

		c, err := PriceLeg(call, ST, rate, evalDate)
		require.NoError(t, err)
		p, err := PriceLeg(put, ST, rate, evalDate)
		require.NoError(t, err)

		assert.InDelta(t, ST-100*math.Exp(-rate*T), c-p, 1e-6, "ST=%v", ST)
	}
}

func TestPriceLegErrors(t *testing.T) {
	evalDate := days(5)

	_, err := PriceLeg(strategy.Leg{Type: "straddle", Strike: 100, Expiry: days(30), Quantity: 1, ImpliedVol: 0.2}, 100, 0, evalDate)
	var typeErr *UnsupportedLegTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, strategy.OptionType("straddle"), typeErr.Type)

	invalid := []strategy.Leg{
		{Type: strategy.Call, Strike: 0, Expiry: days(30), Quantity: 1, ImpliedVol: 0.2},
		{Type: strategy.Put, Strike: -5, Expiry: days(1), Quantity: 1, ImpliedVol: 0.2},
		{Type: strategy.Call, Strike: 100, Expiry: days(30), Quantity: 1, ImpliedVol: 0},
		{Type: strategy.Call, Strike: 100, Expiry: days(30), Quantity: 1, ImpliedVol: -0.1},
		{Type: strategy.Call, Strike: 100, Expiry: days(30), Quantity: math.NaN(), ImpliedVol: 0.2},
	}
	for _, leg := range invalid {
		_, err := PriceLeg(leg, 100, 0, evalDate)
		var legErr *InvalidLegError
		assert.ErrorAs(t, err, &legErr, "leg %s", leg)
	}

	_, err = PriceLeg(longCall(100, days(30)), -1, 0, evalDate)
	assert.ErrorIs(t, err, ErrInvalidMarket)
}

func TestPriceLegAtZeroPrice(t *testing.T) {
	put := strategy.Leg{Type: strategy.Put, Strike: 100, Expiry: days(365), Quantity: 1, ImpliedVol: 0.2}
	v, err := PriceLeg(put, 0, 0.05, days(0))
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Exp(-0.05), v, 1e-12)

	v, err = PriceLeg(longCall(100, days(365)), 0, 0.05, days(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestPortfolioValueIsAdditive(t *testing.T) {
	legs := strategy.Spread{
		longCall(100, days(60)),
		{Type: strategy.Call, Strike: 110, Expiry: days(60), Quantity: -1, EntryPrice: 0.8, ImpliedVol: 0.18},
		{Type: strategy.Put, Strike: 95, Expiry: days(10), Quantity: 2, EntryPrice: 1.1, ImpliedVol: 0.25},
	}
	evalDate := days(30)

	for _, ST := range []float64{80, 100, 104.5, 125} {
		total, err := PortfolioValue(legs, ST, 0.03, evalDate)
		require.NoError(t, err)

		sum := 0.0
		for _, leg := range legs {
			v, err := PriceLeg(leg, ST, 0.03, evalDate)
			require.NoError(t, err)
			sum += v
		}
		assert.Equal(t, sum, total)
	}

	bad := append(strategy.Spread{}, legs...)
	bad[2].Strike = 0
	_, err := PortfolioValue(bad, 100, 0.03, evalDate)
	var legErr *InvalidLegError
	require.ErrorAs(t, err, &legErr)
	assert.Equal(t, 2, legErr.Index)
}

func TestBuildDensityIsDeterministic(t *testing.T) {
	a, err := BuildDensity(100, 0.03, 0.22, today, days(45))
	require.NoError(t, err)
	b, err := BuildDensity(100, 0.03, 0.22, today, days(45))
	require.NoError(t, err)

	for ST := 1.0; ST < 300; ST += 7.3 {
		assert.Equal(t, a.PDF(ST), b.PDF(ST))
	}
	assert.Equal(t, 0.0, a.PDF(0))
	assert.InDelta(t, 45.0/365.0, a.T, 1e-15)
	assert.InDelta(t, 0.22*math.Sqrt(45.0/365.0), a.SigmaT(), 1e-15)
}

func TestBuildDensityRejectsPastDates(t *testing.T) {
	_, err := BuildDensity(100, 0, 0.2, today, today)
	assert.ErrorIs(t, err, ErrEvaluationDateNotFuture)
	_, err = BuildDensity(100, 0, 0.2, today, days(-3))
	assert.ErrorIs(t, err, ErrEvaluationDateNotFuture)
	_, err = BuildDensity(100, 0, 0, today, days(3))
	assert.ErrorIs(t, err, ErrInvalidMarket)
	_, err = BuildDensity(math.Inf(1), 0, 0.2, today, days(3))
	assert.ErrorIs(t, err, ErrInvalidMarket)
}

func TestExpectedValueLongCallMatchesBlackScholes(t *testing.T) {
	legs := strategy.Spread{longCall(100, days(60))}
	mkt := EvaluationContext{Spot: 100, Rate: 0, ATMVol: 0.2, Today: today, EvalDate: days(30)}

	exp, err := ExpectedValue(legs, mkt, Options{})
	require.NoError(t, err)

	// with r=0 the BS price is a martingale: E[C(S_30, 30d)] = C(S_0, 60d)
	want := bsCall(100, 100, 60.0/365.0, 0, 0.2) - 2.0
	assert.InDelta(t, want, exp.Value, 1e-6)
	assert.True(t, exp.Converged)
	assert.Equal(t, 2.0, exp.InitialCost)
	assert.Equal(t, 300.0, exp.UpperBound)
	assert.Less(t, exp.TailMass, 1e-12)
}

func TestExpectedValueNarrowDensityAwayFromStrikes(t *testing.T) {
	cases := []struct {
		strike, atmVol float64
	}{
		{120, 0.05},
		{150, 0.05},
		{100, 0.01},
		{103, 0.02},
	}
	for _, tc := range cases {
		legs := strategy.Spread{longCall(tc.strike, days(45))}
		mkt := EvaluationContext{Spot: 100, Rate: 0, ATMVol: tc.atmVol, Today: today, EvalDate: days(1)}

		exp, err := ExpectedValue(legs, mkt, Options{})
		require.NoError(t, err)

		// r=0: the call seen from today has total variance atm²·t1 + leg²·t2
		t1, t2 := 1.0/365.0, 44.0/365.0
		sigma := math.Sqrt(tc.atmVol*tc.atmVol*t1 + 0.2*0.2*t2)
		want := bsCall(100, tc.strike, 1, 0, sigma) - 2.0
		assert.InDelta(t, want, exp.Value, 1e-6, "strike=%v atm=%v", tc.strike, tc.atmVol)
		assert.True(t, exp.Converged)
	}
}

func TestDensityAnchorsStayInsideDomain(t *testing.T) {
	d, err := BuildDensity(100, 0, 0.05, today, days(1))
	require.NoError(t, err)

	anchors := d.Anchors(300)
	require.Len(t, anchors, 17)
	assert.InDelta(t, math.Exp(d.Mu()), anchors[8], 1e-12)
	for i := 1; i < len(anchors); i++ {
		assert.Greater(t, anchors[i], anchors[i-1])
	}

	wide, err := BuildDensity(100, 0, 1.5, today, days(700))
	require.NoError(t, err)
	for _, a := range wide.Anchors(300) {
		assert.Greater(t, a, 0.0)
		assert.Less(t, a, 300.0)
	}
	assert.Less(t, len(wide.Anchors(300)), 17)
}

func TestExpectedValueWithRateGrowsAtForward(t *testing.T) {
	legs := strategy.Spread{longCall(95, days(120))}
	rate := 0.05
	mkt := EvaluationContext{Spot: 100, Rate: rate, ATMVol: 0.2, Today: today, EvalDate: days(40)}

	exp, err := ExpectedValue(legs, mkt, Options{})
	require.NoError(t, err)

	t1 := 40.0 / 365.0
	want := math.Exp(rate*t1)*bsCall(100, 95, 120.0/365.0, rate, 0.2) - 2.0
	assert.InDelta(t, want, exp.Value, 1e-6)
}

func TestExpectedValueExpiredLegIsDiscountedPayoff(t *testing.T) {
	legs := strategy.Spread{longCall(102, days(30))}
	rate := 0.03
	mkt := EvaluationContext{Spot: 100, Rate: rate, ATMVol: 0.25, Today: today, EvalDate: days(30)}

	exp, err := ExpectedValue(legs, mkt, Options{})
	require.NoError(t, err)

	T := 30.0 / 365.0
	want := math.Exp(rate*T)*bsCall(100, 102, T, rate, 0.25) - 2.0
	assert.InDelta(t, want, exp.Value, 1e-6)
}

func TestExpectedValueIncreasesWithSpot(t *testing.T) {
	legs := strategy.Spread{longCall(100, days(60))}

	prev := math.Inf(-1)
	for _, spot := range []float64{80, 90, 100, 110, 120} {
		exp, err := ExpectedValue(legs, EvaluationContext{Spot: spot, Rate: 0.01, ATMVol: 0.2, Today: today, EvalDate: days(30)}, Options{})
		require.NoError(t, err)
		assert.Greater(t, exp.Value, prev, "spot=%v", spot)
		prev = exp.Value
	}
}

func TestExpectedValueTruncationIsConfigurable(t *testing.T) {
	legs := strategy.Spread{longCall(100, days(730))}
	mkt := EvaluationContext{Spot: 100, Rate: 0, ATMVol: 0.9, Today: today, EvalDate: days(700)}

	narrow, err := ExpectedValue(legs, mkt, Options{UpperMultiple: 1.5})
	require.NoError(t, err)
	wide, err := ExpectedValue(legs, mkt, Options{UpperMultiple: 40})
	require.NoError(t, err)

	assert.Greater(t, narrow.TailMass, 0.1)
	assert.Less(t, wide.TailMass, narrow.TailMass)
	assert.Greater(t, wide.Value, narrow.Value)
}

func TestExpectedValueSurfacesLegErrors(t *testing.T) {
	legs := strategy.Spread{
		longCall(100, days(60)),
		{Type: strategy.Put, Strike: 90, Expiry: days(60), Quantity: -1, EntryPrice: 1, ImpliedVol: 0},
	}
	_, err := ExpectedValue(legs, EvaluationContext{Spot: 100, ATMVol: 0.2, Today: today, EvalDate: days(30)}, Options{})

	var legErr *InvalidLegError
	require.ErrorAs(t, err, &legErr)
	assert.Equal(t, 1, legErr.Index)
}

func TestExpectedReturn(t *testing.T) {
	debit := strategy.Spread{{Type: strategy.Call, Strike: 100, Quantity: 1, EntryPrice: 2.0}}
	credit := strategy.Spread{{Type: strategy.Call, Strike: 100, Quantity: -1, EntryPrice: 2.0}}

	er, err := ExpectedReturn(5.0, debit)
	require.NoError(t, err)
	assert.Equal(t, 2.5, er)

	er, err = ExpectedReturn(5.0, credit)
	require.NoError(t, err)
	assert.Equal(t, 2.5, er)

	collar := strategy.Spread{
		{Type: strategy.Put, Strike: 95, Quantity: 1, EntryPrice: 2.0},
		{Type: strategy.Call, Strike: 105, Quantity: -1, EntryPrice: 2.0},
	}
	_, err = ExpectedReturn(0.7, collar)
	assert.ErrorIs(t, err, ErrZeroCostSpread)

	_, err = ExpectedReturn(math.NaN(), debit)
	assert.ErrorIs(t, err, ErrNumerical)
}

func TestPercentGrid(t *testing.T) {
	grid, err := PercentGrid(200, 50, 150, 5)
	require.NoError(t, err)
	require.Len(t, grid, 21)
	assert.Equal(t, 100.0, grid[0])
	assert.Equal(t, 200.0, grid[10])
	assert.InDelta(t, 300.0, grid[20], 1e-9)

	_, err = PercentGrid(200, 50, 150, 0)
	assert.ErrorIs(t, err, ErrInvalidGrid)
	_, err = PercentGrid(200, 150, 50, 5)
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestPnLCurveAndSummary(t *testing.T) {
	// expired bull call spread: debit 3, width 10
	legs := strategy.Spread{
		{Type: strategy.Call, Strike: 100, Expiry: days(10), Quantity: 1, EntryPrice: 5},
		{Type: strategy.Call, Strike: 110, Expiry: days(10), Quantity: -1, EntryPrice: 2},
	}
	grid := []float64{90, 100, 102, 105, 110, 120}

	points, err := PnLCurve(legs, 0.02, days(10), grid)
	require.NoError(t, err)
	require.Len(t, points, len(grid))

	pnl := make([]float64, len(points))
	for i, p := range points {
		assert.Equal(t, grid[i], p.Price)
		pnl[i] = p.PnL
	}
	assert.InDeltaSlice(t, []float64{-3, -3, -1, 2, 7, 7}, pnl, 1e-12)

	summary, err := SummarizeCurve(points)
	require.NoError(t, err)
	assert.Equal(t, 7.0, summary.MaxProfit)
	assert.Equal(t, -3.0, summary.MaxLoss)
	require.Len(t, summary.Breakevens, 1)
	assert.InDelta(t, 103.0, summary.Breakevens[0], 1e-12)

	_, err = PnLCurve(legs, 0, days(10), nil)
	assert.ErrorIs(t, err, ErrInvalidGrid)
	_, err = SummarizeCurve(nil)
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestEvaluate(t *testing.T) {
	legs := strategy.Spread{
		longCall(100, days(60)),
		{Type: strategy.Call, Strike: 110, Expiry: days(60), Quantity: -1, EntryPrice: 0.5, ImpliedVol: 0.18},
	}
	req := Request{
		Legs:  legs,
		Spot:  100,
		Rate:  0.01,
		Today: today,
		Horizons: []Horizon{
			{Date: days(45), ATMVol: 0.21},
			{Date: days(7), ATMVol: 0.2},
			{Date: days(60), ATMVol: 0.22},
		},
		Workers: 2,
	}

	res, err := Evaluate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	for i, h := range req.Horizons {
		assert.Equal(t, h.Date, res.Results[i].Date)
		exp, err := ExpectedValue(legs, EvaluationContext{Spot: 100, Rate: 0.01, ATMVol: h.ATMVol, Today: today, EvalDate: h.Date}, Options{})
		require.NoError(t, err)
		assert.Equal(t, exp.Value, res.Results[i].EV)
		assert.InDelta(t, exp.Value/1.5, res.Results[i].ER, 1e-12)
	}

	assert.Equal(t, 1.5, res.InitialCost)
	assert.Equal(t, days(45), res.CurveDate)
	assert.Len(t, res.Curve, 21)
	assert.LessOrEqual(t, res.Summary.MaxLoss, res.Summary.MaxProfit)
}

func TestEvaluateFailures(t *testing.T) {
	legs := strategy.Spread{longCall(100, days(60))}

	_, err := Evaluate(context.Background(), Request{Legs: legs, Spot: 100, Today: today,
		Horizons: []Horizon{{Date: days(10), ATMVol: 0.2}, {Date: today, ATMVol: 0.2}}})
	assert.ErrorIs(t, err, ErrEvaluationDateNotFuture)
	assert.Contains(t, err.Error(), today.Format("2006-01-02"))

	zeroCost := strategy.Spread{
		{Type: strategy.Put, Strike: 95, Expiry: days(60), Quantity: 1, EntryPrice: 2.0, ImpliedVol: 0.2},
		{Type: strategy.Call, Strike: 105, Expiry: days(60), Quantity: -1, EntryPrice: 2.0, ImpliedVol: 0.2},
	}
	_, err = Evaluate(context.Background(), Request{Legs: zeroCost, Spot: 100, Today: today,
		Horizons: []Horizon{{Date: days(10), ATMVol: 0.2}}})
	assert.ErrorIs(t, err, ErrZeroCostSpread)

	_, err = Evaluate(context.Background(), Request{Legs: legs, Spot: 100, Today: today})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Evaluate(ctx, Request{Legs: legs, Spot: 100, Today: today,
		Horizons: []Horizon{{Date: days(10), ATMVol: 0.2}}})
	assert.ErrorIs(t, err, context.Canceled)
}
