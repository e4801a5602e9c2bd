package ev

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/logger"
	"github.com/contactkeval/option-ev/internal/strategy"
)

// Horizon is one evaluation date with the ATM volatility for its density.
type Horizon struct {
	Date   time.Time
	ATMVol float64
}

// Request is a complete multi-date evaluation.
type Request struct {
	Legs     strategy.Spread
	Spot     float64
	Rate     float64
	Today    time.Time
	Horizons []Horizon
	Grid     []float64 // P/L curve prices; empty means PercentGrid(Spot, 50, 150, 5)
	Options  Options
	Workers  int // concurrent dates; <= 0 means GOMAXPROCS
}

// DateResult is the outcome for one evaluation date.
type DateResult struct {
	Date          time.Time `json:"date"`
	ATMVol        float64   `json:"atm_vol"`
	EV            float64   `json:"ev"`
	ER            float64   `json:"er"`
	ErrorEstimate float64   `json:"error_estimate"`
	TailMass      float64   `json:"tail_mass"`
	Converged     bool      `json:"converged"`
}

// Evaluation is the outcome of a Request.
type Evaluation struct {
	Spot        float64        `json:"spot"`
	Rate        float64        `json:"rate"`
	Today       time.Time      `json:"today"`
	InitialCost float64        `json:"initial_cost"`
	Legs        []strategy.Leg `json:"legs"`
	Results     []DateResult   `json:"results"`
	CurveDate   time.Time      `json:"curve_date"`
	Curve       []CurvePoint   `json:"curve"`
	Summary     CurveSummary   `json:"summary"`
}

// Evaluate values the spread at every horizon and samples the P/L curve at
// the first one. Horizons are independent and run concurrently; results keep
// the input order. The first failure cancels the remaining dates and is
// returned wrapped with its date.
func Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	if len(req.Horizons) == 0 {
		return nil, errors.New("at least one evaluation date is required")
	}
	if len(req.Legs) == 0 {
		return nil, errors.New("at least one leg is required")
	}

	logger.Infof("event=evaluate_start legs=%d dates=%d spot=%.2f rate=%.4f",
		len(req.Legs), len(req.Horizons), req.Spot, req.Rate)

	// the zero-cost policy does not depend on the date; fail before integrating
	if _, err := ExpectedReturn(0, req.Legs); err != nil {
		return nil, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]DateResult, len(req.Horizons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, h := range req.Horizons {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := evaluateDate(req, h)
			if err != nil {
				return fmt.Errorf("evaluation date %s: %w", daycount.Format(h.Date), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Errorf("event=evaluate_failed err=%v", err)
		return nil, err
	}

	grid := req.Grid
	if len(grid) == 0 {
		var err error
		if grid, err = PercentGrid(req.Spot, 50, 150, 5); err != nil {
			return nil, err
		}
	}

	curveDate := req.Horizons[0].Date
	curve, err := PnLCurve(req.Legs, req.Rate, curveDate, grid)
	if err != nil {
		return nil, fmt.Errorf("pnl curve %s: %w", daycount.Format(curveDate), err)
	}
	summary, err := SummarizeCurve(curve)
	if err != nil {
		return nil, err
	}

	logger.Infof("event=evaluate_done dates=%d curve_points=%d", len(results), len(curve))

	return &Evaluation{
		Spot:        req.Spot,
		Rate:        req.Rate,
		Today:       daycount.Date(req.Today),
		InitialCost: req.Legs.InitialCost(),
		Legs:        req.Legs,
		Results:     results,
		CurveDate:   daycount.Date(curveDate),
		Curve:       curve,
		Summary:     summary,
	}, nil
}

func evaluateDate(req Request, h Horizon) (DateResult, error) {
	exp, err := ExpectedValue(req.Legs, EvaluationContext{
		Spot:     req.Spot,
		Rate:     req.Rate,
		ATMVol:   h.ATMVol,
		Today:    req.Today,
		EvalDate: h.Date,
	}, req.Options)
	if err != nil {
		return DateResult{}, err
	}

	er, err := ExpectedReturn(exp.Value, req.Legs)
	if err != nil {
		return DateResult{}, err
	}

	return DateResult{
		Date:          daycount.Date(h.Date),
		ATMVol:        h.ATMVol,
		EV:            exp.Value,
		ER:            er,
		ErrorEstimate: exp.ErrorEstimate,
		TailMass:      exp.TailMass,
		Converged:     exp.Converged,
	}, nil
}
