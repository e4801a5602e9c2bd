package data

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/option-ev/internal/logger"
)

// alphaVantageDataProvider implements Provider spot quotes using the Alpha
// Vantage GLOBAL_QUOTE endpoint.
type alphaVantageDataProvider struct {
	APIKey  string
	BaseURL string // e.g. https://www.alphavantage.co
	httpGetter
	secondary Provider
}

type alphaVantageQuoteResp struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
	ErrorMsg    string            `json:"Error Message"`
}

func NewAlphaVantageDataProvider(apiKey string, secondary Provider) *alphaVantageDataProvider {
	logger.Infof("event=provider_init name=alphavantage")
	return &alphaVantageDataProvider{
		APIKey:     apiKey,
		BaseURL:    "https://www.alphavantage.co",
		httpGetter: httpGetter{Client: newHTTPClient()},
		secondary:  secondary,
	}
}

func (p *alphaVantageDataProvider) Secondary() Provider {
	return p.secondary
}

// GetSpot returns the latest traded price ("05. price") of underlying.
func (p *alphaVantageDataProvider) GetSpot(ctx context.Context, underlying string) (float64, error) {
	spot, err := p.fetchQuote(ctx, underlying)
	if err != nil {
		return fallback(p.secondary, "spot", "alphavantage",
			fmt.Errorf("%w: alphavantage %s: %v", ErrQuoteUnavailable, underlying, err),
			func(s Provider) (float64, error) { return s.GetSpot(ctx, underlying) })
	}
	logger.Debugf("event=spot source=alphavantage underlying=%s spot=%.4f", underlying, spot)
	return spot, nil
}

func (p *alphaVantageDataProvider) fetchQuote(ctx context.Context, underlying string) (float64, error) {
	if p.APIKey == "" {
		return 0, fmt.Errorf("no api key")
	}

	u, err := url.Parse(p.BaseURL + "/query")
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", underlying)
	q.Set("apikey", p.APIKey)
	u.RawQuery = q.Encode()

	var body alphaVantageQuoteResp
	if err := p.getJSON(ctx, u.String(), &body); err != nil {
		return 0, err
	}

	// throttling and bad symbols still answer 200
	for _, msg := range []string{body.ErrorMsg, body.Note, body.Information} {
		if msg != "" {
			return 0, fmt.Errorf("%s", msg)
		}
	}

	raw, ok := body.GlobalQuote["05. price"]
	if !ok {
		return 0, fmt.Errorf("no price in response")
	}
	spot, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if !(spot > 0) {
		return 0, fmt.Errorf("non-positive price %v", spot)
	}
	return spot, nil
}

func (p *alphaVantageDataProvider) GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error) {
	return fallback(p.secondary, "surface", "alphavantage",
		fmt.Errorf("%w: alphavantage does not serve volatility surfaces", ErrSurfaceUnavailable),
		func(s Provider) (VolSurface, error) { return s.GetVolSurface(ctx, underlying, expiry) })
}

func (p *alphaVantageDataProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return fallback(p.secondary, "rate", "alphavantage",
		fmt.Errorf("%w: alphavantage does not serve rates", ErrRateUnavailable),
		func(s Provider) (float64, error) { return s.GetRiskFreeRate(ctx) })
}
