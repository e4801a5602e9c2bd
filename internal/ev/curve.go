package ev

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/contactkeval/option-ev/internal/strategy"
)

// ErrInvalidGrid is returned for empty or malformed price grids.
var ErrInvalidGrid = errors.New("invalid price grid")

// CurvePoint is one sample of the P/L curve.
type CurvePoint struct {
	Price float64 `json:"price" csv:"underlying_price"`
	PnL   float64 `json:"pnl" csv:"pnl"`
}

// CurveSummary describes the extremes of a sampled P/L curve.
type CurveSummary struct {
	MaxProfit  float64   `json:"max_profit"`
	MaxLoss    float64   `json:"max_loss"`
	Breakevens []float64 `json:"breakevens,omitempty"`
}

// PercentGrid returns spot×p/100 for p = fromPct, fromPct+stepPct, ... up to
// toPct inclusive. The reference grid is PercentGrid(spot, 50, 150, 5).
func PercentGrid(spot, fromPct, toPct, stepPct float64) ([]float64, error) {
	if !finitePositive(spot) || !(stepPct > 0) || !(toPct >= fromPct) || fromPct < 0 {
		return nil, fmt.Errorf("%w: spot=%v from=%v to=%v step=%v", ErrInvalidGrid, spot, fromPct, toPct, stepPct)
	}

	// count steps up front so float accumulation never drops the last point
	n := int(math.Floor((toPct-fromPct)/stepPct+1e-9)) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = spot * (fromPct + float64(i)*stepPct) / 100
	}
	return grid, nil
}

// PnLCurve returns PortfolioValue(ST) - initial cost for every ST in grid.
func PnLCurve(legs strategy.Spread, rate float64, evalDate time.Time, grid []float64) ([]CurvePoint, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidGrid)
	}

	cost0 := legs.InitialCost()
	points := make([]CurvePoint, 0, len(grid))
	for _, ST := range grid {
		v, err := PortfolioValue(legs, ST, rate, evalDate)
		if err != nil {
			return nil, err
		}
		points = append(points, CurvePoint{Price: ST, PnL: v - cost0})
	}
	return points, nil
}

// SummarizeCurve reports the best and worst sampled P/L and the prices where
// the curve crosses zero, linearly interpolated between samples.
func SummarizeCurve(points []CurvePoint) (CurveSummary, error) {
	pnl := make(stats.Float64Data, len(points))
	for i, p := range points {
		pnl[i] = p.PnL
	}

	maxProfit, err := stats.Max(pnl)
	if err != nil {
		return CurveSummary{}, fmt.Errorf("%w: %v", ErrInvalidGrid, err)
	}
	maxLoss, err := stats.Min(pnl)
	if err != nil {
		return CurveSummary{}, fmt.Errorf("%w: %v", ErrInvalidGrid, err)
	}

	summary := CurveSummary{MaxProfit: maxProfit, MaxLoss: maxLoss}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		switch {
		case a.PnL == 0:
			summary.Breakevens = append(summary.Breakevens, a.Price)
		case a.PnL*b.PnL < 0:
			w := a.PnL / (a.PnL - b.PnL)
			summary.Breakevens = append(summary.Breakevens, a.Price+w*(b.Price-a.Price))
		}
	}
	if last := points[len(points)-1]; last.PnL == 0 {
		summary.Breakevens = append(summary.Breakevens, last.Price)
	}
	return summary, nil
}
