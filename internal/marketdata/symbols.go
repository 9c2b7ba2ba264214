package marketdata

import (
	"fmt"
	"strings"
)

// defaultPipScales covers config's default pairs plus other majors; PipScale
// uses it for pairs missing from the configured table.
var defaultPipScales = map[string]float64{
	"EURUSD": 10000,
	"GBPUSD": 10000,
	"USDJPY": 100,
	"AUDUSD": 10000,
	"USDCAD": 10000,
	"NZDUSD": 10000,
	"USDCHF": 10000,
}

// NormalizePair upper-cases and strips separators from a user-entered pair
// like "eur/usd" or "eur-usd" into the "EURUSD" form the provider and pip
// scale table expect.
func NormalizePair(raw string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(raw))
	if len(cleaned) != 6 {
		return "", fmt.Errorf("marketdata: %q is not a 6-letter currency pair", raw)
	}
	return cleaned, nil
}

// PipScale returns the configured pip scale for pair, falling back to the
// built-in default table and finally 10000 for an unknown pair.
func PipScale(pair string, configured map[string]float64) float64 {
	if v, ok := configured[pair]; ok {
		return v
	}
	if v, ok := defaultPipScales[pair]; ok {
		return v
	}
	return 10000
}
