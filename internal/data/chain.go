package data

import (
	"fmt"
	"os"
	"strings"
)

// Settings carries vendor credentials and local options for NewChain.
type Settings struct {
	PolygonAPIKey      string
	AlphaVantageAPIKey string
	ORATSToken         string
	FREDAPIKey         string

	CSVDir string

	// synthetic provider values; zero selects its defaults
	SyntheticSpot float64
	SyntheticVol  float64
	SyntheticRate float64
}

// SettingsFromEnv reads vendor credentials from the environment.
func SettingsFromEnv() Settings {
	return Settings{
		PolygonAPIKey:      os.Getenv("POLYGON_API_KEY"),
		AlphaVantageAPIKey: os.Getenv("ALPHAVANTAGE_API_KEY"),
		ORATSToken:         os.Getenv("ORATS_TOKEN"),
		FREDAPIKey:         os.Getenv("FRED_API_KEY"),
		CSVDir:             os.Getenv("OPTION_EV_DATA_DIR"),
	}
}

// Provider names accepted by NewChain.
const (
	ProviderPolygon      = "polygon"
	ProviderAlphaVantage = "alphavantage"
	ProviderORATS        = "orats"
	ProviderFRED         = "fred"
	ProviderCSV          = "csv"
	ProviderSynthetic    = "synthetic"
)

// DefaultChain is the vendor order used when none is configured.
var DefaultChain = []string{ProviderORATS, ProviderPolygon, ProviderAlphaVantage, ProviderFRED}

// NewChain builds providers in priority order: names[0] is asked first and
// each provider's secondary is the one after it.
func NewChain(names []string, s Settings) (Provider, error) {
	if len(names) == 0 {
		names = DefaultChain
	}

	var next Provider
	for i := len(names) - 1; i >= 0; i-- {
		name := strings.ToLower(strings.TrimSpace(names[i]))
		switch name {
		case ProviderPolygon:
			next = NewPolygonDataProvider(s.PolygonAPIKey, next)
		case ProviderAlphaVantage:
			next = NewAlphaVantageDataProvider(s.AlphaVantageAPIKey, next)
		case ProviderORATS:
			next = NewORATSDataProvider(s.ORATSToken, next)
		case ProviderFRED:
			next = NewFREDDataProvider(s.FREDAPIKey, next)
		case ProviderCSV:
			if s.CSVDir == "" {
				return nil, fmt.Errorf("provider %q needs a data directory", name)
			}
			next = NewLocalCSVDataProvider(s.CSVDir, next)
		case ProviderSynthetic:
			if next != nil {
				return nil, fmt.Errorf("provider %q must be last in the chain", name)
			}
			next = NewSyntheticProvider(s.SyntheticSpot, s.SyntheticVol, s.SyntheticRate)
		default:
			return nil, fmt.Errorf("unknown provider %q", names[i])
		}
	}
	return next, nil
}

// ChainNames lists the providers of p from first to last asked.
func ChainNames(p Provider) []string {
	var out []string
	for ; p != nil; p = p.Secondary() {
		switch p.(type) {
		case *polygonDataProvider:
			out = append(out, ProviderPolygon)
		case *alphaVantageDataProvider:
			out = append(out, ProviderAlphaVantage)
		case *oratsDataProvider:
			out = append(out, ProviderORATS)
		case *fredDataProvider:
			out = append(out, ProviderFRED)
		case *localCSVDataProvider:
			out = append(out, ProviderCSV)
		case *synthDataProvider:
			out = append(out, ProviderSynthetic)
		default:
			out = append(out, fmt.Sprintf("%T", p))
		}
	}
	return out
}
