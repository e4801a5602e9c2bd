package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/logger"
)

// File names read by the local CSV provider, under its directory.
const (
	SpotsFile    = "spots.csv"    // underlying,date,spot
	SurfacesFile = "surfaces.csv" // ticker,tradeDate,expirDate,stockPrice,vol95..vol10
	RatesFile    = "rates.csv"    // date,rate (decimal)
)

// csvDate is a YYYY-MM-DD column. Unparseable dates order first.
type csvDate string

func (d csvDate) parse() time.Time {
	t, err := daycount.Parse(strings.TrimSpace(string(d)))
	if err != nil {
		return time.Time{}
	}
	return t
}

type spotRow struct {
	Underlying string  `csv:"underlying"`
	Date       csvDate `csv:"date"`
	Spot       float64 `csv:"spot"`
}

type surfaceRow struct {
	Ticker     string  `csv:"ticker"`
	TradeDate  csvDate `csv:"tradeDate"`
	ExpirDate  csvDate `csv:"expirDate"`
	StockPrice float64 `csv:"stockPrice"`
	Vol95      float64 `csv:"vol95"`
	Vol75      float64 `csv:"vol75"`
	Vol50      float64 `csv:"vol50"`
	Vol25      float64 `csv:"vol25"`
	Vol10      float64 `csv:"vol10"`
}

type rateRow struct {
	Date csvDate `csv:"date"`
	Rate float64 `csv:"rate"`
}

// localCSVDataProvider implements Provider from CSV files in a directory.
// Files are read once, on first use; a missing file means the provider has
// no data of that kind and defers to its secondary.
type localCSVDataProvider struct {
	dir       string
	secondary Provider

	once     sync.Once
	spots    []spotRow
	surfaces []surfaceRow
	rates    []rateRow
	loadErr  error
}

// NewLocalCSVDataProvider convenience constructor.
func NewLocalCSVDataProvider(dir string, secondary Provider) *localCSVDataProvider {
	logger.Infof("event=provider_init name=csv dir=%s", dir)
	return &localCSVDataProvider{dir: dir, secondary: secondary}
}

func (p *localCSVDataProvider) Secondary() Provider {
	return p.secondary
}

func (p *localCSVDataProvider) load() error {
	p.once.Do(func() {
		p.loadErr = errors.Join(
			readCSV(filepath.Join(p.dir, SpotsFile), &p.spots),
			readCSV(filepath.Join(p.dir, SurfacesFile), &p.surfaces),
			readCSV(filepath.Join(p.dir, RatesFile), &p.rates),
		)
		logger.Debugf("event=csv_loaded dir=%s spots=%d surfaces=%d rates=%d",
			p.dir, len(p.spots), len(p.surfaces), len(p.rates))
	})
	return p.loadErr
}

func readCSV[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// GetSpot returns the latest-dated spot for underlying.
func (p *localCSVDataProvider) GetSpot(ctx context.Context, underlying string) (float64, error) {
	err := p.load()
	if err == nil {
		var best *spotRow
		for i := range p.spots {
			r := &p.spots[i]
			if !strings.EqualFold(r.Underlying, underlying) {
				continue
			}
			if best == nil || r.Date.parse().After(best.Date.parse()) {
				best = r
			}
		}
		if best != nil && best.Spot > 0 {
			return best.Spot, nil
		}
		err = fmt.Errorf("no row for %s", underlying)
	}
	return fallback(p.secondary, "spot", "csv",
		fmt.Errorf("%w: csv %s: %v", ErrQuoteUnavailable, underlying, err),
		func(s Provider) (float64, error) { return s.GetSpot(ctx, underlying) })
}

// GetVolSurface returns the row of the latest trade date whose expiry is
// nearest expiry.
func (p *localCSVDataProvider) GetVolSurface(ctx context.Context, underlying string, expiry time.Time) (VolSurface, error) {
	err := p.load()
	if err == nil {
		var latest time.Time
		var candidates []VolSurface
		for _, r := range p.surfaces {
			if !strings.EqualFold(r.Ticker, underlying) {
				continue
			}
			trade := r.TradeDate.parse()
			switch {
			case trade.After(latest):
				latest = trade
				candidates = candidates[:0]
			case trade.Before(latest):
				continue
			}
			candidates = append(candidates, r.surface())
		}
		if s, ok := nearestSurface(candidates, expiry); ok {
			return s, nil
		}
		err = fmt.Errorf("no rows for %s", underlying)
	}
	return fallback(p.secondary, "surface", "csv",
		fmt.Errorf("%w: csv %s: %v", ErrSurfaceUnavailable, underlying, err),
		func(s Provider) (VolSurface, error) { return s.GetVolSurface(ctx, underlying, expiry) })
}

// GetRiskFreeRate returns the latest-dated rate.
func (p *localCSVDataProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	err := p.load()
	if err == nil {
		if len(p.rates) > 0 {
			rates := append([]rateRow(nil), p.rates...)
			sort.SliceStable(rates, func(i, j int) bool { return rates[i].Date.parse().Before(rates[j].Date.parse()) })
			return rates[len(rates)-1].Rate, nil
		}
		err = fmt.Errorf("no rows")
	}
	return fallback(p.secondary, "rate", "csv",
		fmt.Errorf("%w: csv: %v", ErrRateUnavailable, err),
		func(s Provider) (float64, error) { return s.GetRiskFreeRate(ctx) })
}

func (r surfaceRow) surface() VolSurface {
	return VolSurface{
		Underlying: r.Ticker,
		TradeDate:  r.TradeDate.parse(),
		Expiry:     r.ExpirDate.parse(),
		StockPrice: r.StockPrice,
		Vol95:      r.Vol95,
		Vol75:      r.Vol75,
		Vol50:      r.Vol50,
		Vol25:      r.Vol25,
		Vol10:      r.Vol10,
	}
}
