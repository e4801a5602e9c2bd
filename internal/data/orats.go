package data

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/logger"
)

// oratsFields is the column set requested from monies/implied.
const oratsFields = "ticker,tradeDate,expirDate,stockPrice,vol95,vol75,vol50,vol25,vol10"

// oratsDataProvider implements Provider volatility surfaces using the ORATS
// datav2 monies/implied endpoint, and spot from the surface sample.
type oratsDataProvider struct {
	Token   string
	BaseURL string // e.g. https://api.orats.io
	httpGetter
	secondary Provider
}

// oratsMoney is one expiry row of monies/implied.
type oratsMoney struct {
	Ticker     string  `json:"ticker"`
	TradeDate  string  `json:"tradeDate"`
	ExpirDate  string  `json:"expirDate"`
	StockPrice float64 `json:"stockPrice"`
	Vol95      float64 `json:"vol95"`
	Vol75      float64 `json:"vol75"`
	Vol50      float64 `json:"vol50"`
	Vol25      float64 `json:"vol25"`
	Vol10      float64 `json:"vol10"`
}

type oratsMoniesResp struct {
	Data []oratsMoney `json:"data"`
}

func NewORATSDataProvider(token string, secondary Provider) *oratsDataProvider {
	logger.Infof("event=provider_init name=orats")
	return &oratsDataProvider{
		Token:      token,
		BaseURL:    "https://api.orats.io",
		httpGetter: httpGetter{Client: newHTTPClient()},
		secondary:  secondary,
	}
}

func (p *oratsDataProvider) Secondary() Provider {
	return p.secondary
}

// GetVolSurface returns the monies row whose expiry is nearest expiry.
func (p *oratsDataProvider) GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error) {
	surfaces, err := p.fetchSurfaces(ctx, underlying)
	if err == nil {
		if s, ok := nearestSurface(surfaces, expiry); ok {
			logger.Debugf("event=surface source=orats underlying=%s want=%s got=%s vol50=%.4f",
				underlying, daycount.Format(expiry), daycount.Format(s.Expiry), s.Vol50)
			return s, nil
		}
		err = fmt.Errorf("no expiries")
	}
	return fallback(p.secondary, "surface", "orats",
		fmt.Errorf("%w: orats %s: %v", ErrSurfaceUnavailable, underlying, err),
		func(s Provider) (VolSurface, error) { return s.GetVolSurface(ctx, underlying, expiry) })
}

// GetSpot returns the stock price ORATS sampled the surface against.
func (p *oratsDataProvider) GetSpot(ctx context.Context, underlying string) (float64, error) {
	surfaces, err := p.fetchSurfaces(ctx, underlying)
	if err == nil {
		if len(surfaces) > 0 && surfaces[0].StockPrice > 0 {
			return surfaces[0].StockPrice, nil
		}
		err = fmt.Errorf("no stock price")
	}
	return fallback(p.secondary, "spot", "orats",
		fmt.Errorf("%w: orats %s: %v", ErrQuoteUnavailable, underlying, err),
		func(s Provider) (float64, error) { return s.GetSpot(ctx, underlying) })
}

func (p *oratsDataProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return fallback(p.secondary, "rate", "orats",
		fmt.Errorf("%w: orats does not serve rates", ErrRateUnavailable),
		func(s Provider) (float64, error) { return s.GetRiskFreeRate(ctx) })
}

func (p *oratsDataProvider) fetchSurfaces(ctx context.Context, underlying string) ([]VolSurface, error) {
	if p.Token == "" {
		return nil, fmt.Errorf("no token")
	}

	u, err := url.Parse(p.BaseURL + "/datav2/monies/implied")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", p.Token)
	q.Set("ticker", strings.ToUpper(underlying))
	q.Set("fields", oratsFields)
	u.RawQuery = q.Encode()

	var body oratsMoniesResp
	if err := p.getJSON(ctx, u.String(), &body); err != nil {
		return nil, err
	}

	out := make([]VolSurface, 0, len(body.Data))
	for _, m := range body.Data {
		expiry, err := daycount.Parse(m.ExpirDate)
		if err != nil {
			logger.Debugf("event=orats_row_skipped expir_date=%q err=%v", m.ExpirDate, err)
			continue
		}
		trade, _ := daycount.Parse(m.TradeDate)
		out = append(out, VolSurface{
			Underlying: m.Ticker,
			TradeDate:  trade,
			Expiry:     expiry,
			StockPrice: m.StockPrice,
			Vol95:      m.Vol95,
			Vol75:      m.Vol75,
			Vol50:      m.Vol50,
			Vol25:      m.Vol25,
			Vol10:      m.Vol10,
		})
	}
	logger.Tracef("event=orats_monies underlying=%s rows=%d", underlying, len(out))
	return out, nil
}
