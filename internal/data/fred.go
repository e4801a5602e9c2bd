package data

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/contactkeval/option-ev/internal/logger"
)

// fredSeries is the 3-month Treasury bill secondary market rate, in percent.
const fredSeries = "DTB3"

// fredDataProvider implements Provider rates using FRED series observations.
//
// Without an API key it reports a rate of 0.0 instead of failing, so offline
// runs still evaluate.
type fredDataProvider struct {
	APIKey  string
	BaseURL string // e.g. https://api.stlouisfed.org
	httpGetter
	secondary Provider
}

type fredObservationsResp struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func NewFREDDataProvider(apiKey string, secondary Provider) *fredDataProvider {
	logger.Infof("event=provider_init name=fred")
	return &fredDataProvider{
		APIKey:     apiKey,
		BaseURL:    "https://api.stlouisfed.org",
		httpGetter: httpGetter{Client: newHTTPClient()},
		secondary:  secondary,
	}
}

func (p *fredDataProvider) Secondary() Provider {
	return p.secondary
}

// GetRiskFreeRate returns the latest valid DTB3 observation as a decimal.
func (p *fredDataProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	if p.APIKey == "" {
		logger.Infof("event=rate_default source=fred reason=no_api_key rate=0")
		return 0.0, nil
	}

	u, err := url.Parse(p.BaseURL + "/fred/series/observations")
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("series_id", fredSeries)
	q.Set("api_key", p.APIKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", "10")
	u.RawQuery = q.Encode()

	var body fredObservationsResp
	if err := p.getJSON(ctx, u.String(), &body); err != nil {
		return fallback(p.secondary, "rate", "fred",
			fmt.Errorf("%w: fred %s: %v", ErrRateUnavailable, fredSeries, err),
			func(s Provider) (float64, error) { return s.GetRiskFreeRate(ctx) })
	}

	for _, obs := range body.Observations {
		// FRED marks holidays with "."
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		logger.Debugf("event=rate source=fred series=%s date=%s pct=%.4f", fredSeries, obs.Date, v)
		return v / 100, nil
	}

	return fallback(p.secondary, "rate", "fred",
		fmt.Errorf("%w: fred %s: no valid observation", ErrRateUnavailable, fredSeries),
		func(s Provider) (float64, error) { return s.GetRiskFreeRate(ctx) })
}

func (p *fredDataProvider) GetSpot(ctx context.Context, underlying string) (float64, error) {
	return fallback(p.secondary, "spot", "fred",
		fmt.Errorf("%w: fred does not serve quotes", ErrQuoteUnavailable),
		func(s Provider) (float64, error) { return s.GetSpot(ctx, underlying) })
}

func (p *fredDataProvider) GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error) {
	return fallback(p.secondary, "surface", "fred",
		fmt.Errorf("%w: fred does not serve volatility surfaces", ErrSurfaceUnavailable),
		func(s Provider) (VolSurface, error) { return s.GetVolSurface(ctx, underlying, expiry) })
}
