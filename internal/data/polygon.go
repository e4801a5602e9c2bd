package data

import (
	"context"
	"fmt"
	"net/http"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/contactkeval/option-ev/internal/logger"
)

// spotLookback is how far back the polygon provider searches for a daily
// close; it spans long weekends and holidays.
const spotLookback = 10 * 24 * time.Hour

// polygonDataProvider implements Provider spot quotes using Polygon.io
// daily aggregates. Surfaces and rates go to the secondary provider.
type polygonDataProvider struct {
	client    *polygon.Client
	now       func() time.Time
	secondary Provider
}

func NewPolygonDataProvider(apiKey string, secondary Provider) Provider {
	logger.Infof("event=provider_init name=polygon")
	return &polygonDataProvider{client: polygon.New(apiKey), now: time.Now, secondary: secondary}
}

func newPolygonWithClient(apiKey string, hc *http.Client, now func() time.Time, secondary Provider) *polygonDataProvider {
	return &polygonDataProvider{client: polygon.NewWithClient(apiKey, hc), now: now, secondary: secondary}
}

func (p *polygonDataProvider) Secondary() Provider {
	return p.secondary
}

// GetSpot returns the most recent daily close of underlying.
func (p *polygonDataProvider) GetSpot(ctx context.Context, underlying string) (float64, error) {
	to := p.now().UTC()
	params := models.ListAggsParams{
		Ticker:     underlying,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(to.Add(-spotLookback)),
		To:         models.Millis(to),
	}.WithOrder(models.Asc).WithAdjusted(true)

	var (
		last  float64
		asOf  time.Time
		found bool
	)
	iter := p.client.ListAggs(ctx, params)
	for iter.Next() {
		last = iter.Item().Close
		asOf = time.Time(iter.Item().Timestamp)
		found = true
	}

	var err error
	switch {
	case iter.Err() != nil:
		err = fmt.Errorf("%w: polygon %s: %v", ErrQuoteUnavailable, underlying, iter.Err())
	case !found || !(last > 0):
		err = fmt.Errorf("%w: polygon %s: no daily bars", ErrQuoteUnavailable, underlying)
	}
	if err != nil {
		return fallback(p.secondary, "spot", "polygon", err, func(s Provider) (float64, error) {
			return s.GetSpot(ctx, underlying)
		})
	}

	logger.Debugf("event=spot source=polygon underlying=%s spot=%.4f as_of=%s", underlying, last, asOf.UTC().Format(time.DateOnly))
	return last, nil
}

func (p *polygonDataProvider) GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error) {
	return fallback(p.secondary, "surface", "polygon",
		fmt.Errorf("%w: polygon does not serve volatility surfaces", ErrSurfaceUnavailable),
		func(s Provider) (VolSurface, error) { return s.GetVolSurface(ctx, underlying, expiry) })
}

func (p *polygonDataProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return fallback(p.secondary, "rate", "polygon",
		fmt.Errorf("%w: polygon does not serve rates", ErrRateUnavailable),
		func(s Provider) (float64, error) { return s.GetRiskFreeRate(ctx) })
}
