// Package engine turns an evaluation request into results: it resolves
// market inputs through a data provider, resolves leg rules into concrete
// legs and runs the expected value computation.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/contactkeval/option-ev/internal/config"
	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/data"
	"github.com/contactkeval/option-ev/internal/ev"
	"github.com/contactkeval/option-ev/internal/logger"
	"github.com/contactkeval/option-ev/internal/schedule"
	"github.com/contactkeval/option-ev/internal/strategy"
)

type Engine struct {
	cfg  *config.Config
	prov data.Provider
	now  func() time.Time
}

// Market records the inputs a run was valued with and where they came from.
type Market struct {
	Spot       float64   `json:"spot"`
	SpotSource string    `json:"spot_source"` // "config" or "provider"
	Rate       float64   `json:"rate"`
	RateSource string    `json:"rate_source"`
	ATMVols    []float64 `json:"atm_vols"` // per eval date, in request order
	VolSource  string    `json:"vol_source"`
}

// Result is one completed run.
type Result struct {
	Underlying string   `json:"underlying"`
	Market     Market   `json:"market"`
	Providers  []string `json:"providers,omitempty"`
	ev.Evaluation
}

func NewEngine(cfg *config.Config, prov data.Provider) *Engine {
	return &Engine{cfg: cfg, prov: prov, now: time.Now}
}

// Run executes the evaluation. Values set in the config take precedence
// over the provider; the provider may be nil when every market input is set.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.cfg
	start := time.Now()
	today := cfg.TodayDate(e.now())

	logger.Infof("event=run_start underlying=%s today=%s legs=%d eval_dates=%d scheduled=%t",
		cfg.Underlying, daycount.Format(today), len(cfg.Legs), len(cfg.EvalDates), cfg.EvalSchedule != nil)

	mkt := Market{SpotSource: "config", RateSource: "config", VolSource: "config"}

	spot, err := e.spot(ctx, &mkt)
	if err != nil {
		return nil, err
	}
	rate, err := e.rate(ctx, &mkt)
	if err != nil {
		return nil, err
	}

	legs, err := strategy.ResolveLegs(cfg.Legs, strategy.PlanInput{
		Spot:           spot,
		Today:          today,
		StrikeInterval: cfg.StrikeInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving legs: %w", err)
	}

	dates, err := e.dates(today, legs)
	if err != nil {
		return nil, err
	}
	last := legs.LastExpiry()
	for _, d := range dates {
		if d.After(last) {
			logger.Infof("event=eval_after_last_expiry date=%s last_expiry=%s", daycount.Format(d), daycount.Format(last))
		}
	}
	horizons, err := e.horizons(ctx, dates, &mkt)
	if err != nil {
		return nil, err
	}

	grid, err := ev.PercentGrid(spot, cfg.Curve.FromPct, cfg.Curve.ToPct, cfg.Curve.StepPct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	evaluation, err := ev.Evaluate(ctx, ev.Request{
		Legs:     legs,
		Spot:     spot,
		Rate:     rate,
		Today:    today,
		Horizons: horizons,
		Grid:     grid,
		Options: ev.Options{
			UpperMultiple: cfg.Integration.UpperMultiple,
			AbsTol:        cfg.Integration.AbsTol,
			RelTol:        cfg.Integration.RelTol,
		},
		Workers: cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Underlying: cfg.Underlying,
		Market:     mkt,
		Evaluation: *evaluation,
	}
	if e.prov != nil {
		res.Providers = data.ChainNames(e.prov)
	}

	logger.Infof("event=run_done underlying=%s dates=%d elapsed=%s", cfg.Underlying, len(res.Results), time.Since(start))
	return res, nil
}

// dates returns the explicit eval dates followed by any scheduled ones not
// already listed.
func (e *Engine) dates(today time.Time, legs []strategy.Leg) ([]time.Time, error) {
	dates, err := e.cfg.Dates()
	if err != nil {
		return nil, err
	}
	if e.cfg.EvalSchedule == nil {
		return dates, nil
	}

	expiries := make([]time.Time, len(legs))
	for i, l := range legs {
		expiries[i] = l.Expiry
	}
	scheduled, err := schedule.Resolve(*e.cfg.EvalSchedule, today, expiries)
	if err != nil {
		return nil, fmt.Errorf("%w: eval_schedule: %w", config.ErrInvalidConfig, err)
	}

	seen := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		seen[d] = true
	}
	for _, d := range scheduled {
		if !seen[d] {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: eval_schedule produced no dates after %s", config.ErrInvalidConfig, daycount.Format(today))
	}
	return dates, nil
}

func (e *Engine) spot(ctx context.Context, mkt *Market) (float64, error) {
	if e.cfg.Spot > 0 {
		mkt.Spot = e.cfg.Spot
		return mkt.Spot, nil
	}
	if e.prov == nil {
		return 0, fmt.Errorf("%w: spot not set and no provider", config.ErrInvalidConfig)
	}
	spot, err := e.prov.GetSpot(ctx, e.cfg.Underlying)
	if err != nil {
		return 0, fmt.Errorf("resolving spot: %w", err)
	}
	mkt.Spot, mkt.SpotSource = spot, "provider"
	return spot, nil
}

func (e *Engine) rate(ctx context.Context, mkt *Market) (float64, error) {
	if e.cfg.Rate != nil {
		mkt.Rate = *e.cfg.Rate
		return mkt.Rate, nil
	}
	if e.prov == nil {
		return 0, fmt.Errorf("%w: rate not set and no provider", config.ErrInvalidConfig)
	}
	rate, err := e.prov.GetRiskFreeRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving rate: %w", err)
	}
	mkt.Rate, mkt.RateSource = rate, "provider"
	return rate, nil
}

// horizons pairs each date with its ATM vol: the config override, or the
// surface whose expiry is nearest the date.
func (e *Engine) horizons(ctx context.Context, dates []time.Time, mkt *Market) ([]ev.Horizon, error) {
	out := make([]ev.Horizon, 0, len(dates))
	for _, d := range dates {
		vol := e.cfg.IVATM
		if vol <= 0 {
			if e.prov == nil {
				return nil, fmt.Errorf("%w: iv_atm not set and no provider", config.ErrInvalidConfig)
			}
			surface, err := e.prov.GetVolSurface(ctx, e.cfg.Underlying, d)
			if err != nil {
				return nil, fmt.Errorf("resolving vol for %s: %w", daycount.Format(d), err)
			}
			vol = surface.ATM()
			if !(vol > 0) {
				return nil, fmt.Errorf("resolving vol for %s: %w: %s surface for %s has no atm vol",
					daycount.Format(d), data.ErrSurfaceUnavailable, e.cfg.Underlying, daycount.Format(surface.Expiry))
			}
			mkt.VolSource = "provider"
			logger.Debugf("event=atm_vol date=%s surface_expiry=%s vol50=%.4f",
				daycount.Format(d), daycount.Format(surface.Expiry), vol)
		}
		mkt.ATMVols = append(mkt.ATMVols, vol)
		out = append(out, ev.Horizon{Date: d, ATMVol: vol})
	}
	return out, nil
}
