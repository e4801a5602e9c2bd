// Package data provides market data provider implementations.
//
// A Provider answers three questions about the market: the underlying spot,
// the implied volatility surface for an expiry, and the risk-free rate. Each
// implementation covers what its vendor offers and hands everything else to
// its secondary provider, so providers compose into a fallback chain.
package data

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/contactkeval/option-ev/internal/logger"
)

var (
	ErrQuoteUnavailable   = errors.New("spot quote unavailable")
	ErrSurfaceUnavailable = errors.New("volatility surface unavailable")
	ErrRateUnavailable    = errors.New("risk-free rate unavailable")
)

// Provider supplies market data
type Provider interface {
	Secondary() Provider
	GetSpot(ctx context.Context, underlying string) (float64, error)
	GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error)
	GetRiskFreeRate(ctx context.Context) (float64, error)
}

// VolSurface is the implied volatility by delta bucket for one expiry, as
// sampled on TradeDate.
type VolSurface struct {
	Underlying string
	TradeDate  time.Time
	Expiry     time.Time
	StockPrice float64 // spot at sampling time
	Vol95      float64
	Vol75      float64
	Vol50      float64
	Vol25      float64
	Vol10      float64
}

// ATM returns the at-the-money (50 delta) volatility.
func (s VolSurface) ATM() float64 { return s.Vol50 }

type DateMatchType string

const (
	MatchExact   DateMatchType = "exact"   // must match exactly
	MatchHigher  DateMatchType = "higher"  // next available date after target
	MatchLower   DateMatchType = "lower"   // last available date before target
	MatchNearest DateMatchType = "nearest" // closest available date (default)
)

// MatchDate picks the entry of dates that matches d under mode. It returns
// the index into dates, or -1 when nothing matches. Ties under MatchNearest
// go to the earlier date. dates is not modified.
func MatchDate(d time.Time, dates []time.Time, mode DateMatchType) int {
	switch mode {
	case MatchExact, MatchHigher, MatchLower, MatchNearest:
	default:
		mode = MatchNearest
	}

	order := make([]int, len(dates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dates[order[a]].Before(dates[order[b]]) })

	exact, lower, higher := -1, -1, -1
	for _, i := range order {
		dt := dates[i]
		switch {
		case dt.Equal(d):
			if exact < 0 {
				exact = i
			}
		case dt.Before(d):
			lower = i // keeps the last date before d
		case higher < 0:
			higher = i
		}
	}

	switch mode {
	case MatchExact:
		return exact
	case MatchLower:
		return lower
	case MatchHigher:
		return higher
	}

	if exact >= 0 {
		return exact
	}
	switch {
	case lower >= 0 && higher >= 0:
		if d.Sub(dates[lower]) <= dates[higher].Sub(d) {
			return lower
		}
		return higher
	case lower >= 0:
		return lower
	default:
		return higher
	}
}

// nearestSurface returns the surface whose expiry is closest to expiry.
func nearestSurface(surfaces []VolSurface, expiry time.Time) (VolSurface, bool) {
	dates := make([]time.Time, len(surfaces))
	for i, s := range surfaces {
		dates[i] = s.Expiry
	}
	i := MatchDate(expiry, dates, MatchNearest)
	if i < 0 {
		return VolSurface{}, false
	}
	return surfaces[i], true
}

// fallback hands a failed request to the secondary provider when there is
// one, otherwise it returns the original error.
func fallback[T any](secondary Provider, kind, from string, cause error, next func(Provider) (T, error)) (T, error) {
	if secondary == nil {
		var zero T
		return zero, cause
	}
	logger.Debugf("event=provider_fallback kind=%s from=%s err=%q", kind, from, cause)
	return next(secondary)
}
