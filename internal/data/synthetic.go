package data

import (
	"context"
	"time"
)

// synthDataProvider implements Provider with fixed market values. It never
// fails, so it terminates a chain or stands in for vendors in tests.
type synthDataProvider struct {
	Spot float64
	Vol  float64 // flat across the surface
	Rate float64
}

// NewSyntheticProvider returns spot 100, flat vol 20% and rate 0 unless
// overridden by non-zero arguments. Rate is taken as given.
func NewSyntheticProvider(spot, vol, rate float64) Provider {
	if !(spot > 0) {
		spot = 100
	}
	if !(vol > 0) {
		vol = 0.2
	}
	return &synthDataProvider{Spot: spot, Vol: vol, Rate: rate}
}

func (p *synthDataProvider) Secondary() Provider { return nil }

func (p *synthDataProvider) GetSpot(ctx context.Context, underlying string) (float64, error) {
	return p.Spot, nil
}

func (p *synthDataProvider) GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error) {
	return VolSurface{
		Underlying: underlying,
		Expiry:     expiry,
		StockPrice: p.Spot,
		Vol95:      p.Vol,
		Vol75:      p.Vol,
		Vol50:      p.Vol,
		Vol25:      p.Vol,
		Vol10:      p.Vol,
	}, nil
}

func (p *synthDataProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return p.Rate, nil
}
