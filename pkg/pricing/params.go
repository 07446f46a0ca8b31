package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"coinfolio-engine/pkg/config"
)

// ParamsFromConfig reads the impact constants from trading configuration.
func ParamsFromConfig(tc config.TradingConfig) (Params, error) {
	var p Params
	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"min volatility", tc.MinVolatility, &p.MinVolatility},
		{"max volatility", tc.MaxVolatility, &p.MaxVolatility},
		{"scarcity weight", tc.ScarcityWeight, &p.ScarcityWeight},
		{"oversupply weight", tc.OversupplyWeight, &p.OversupplyWeight},
		{"random factor min", tc.RandomFactorMin, &p.FactorMin},
		{"random factor max", tc.RandomFactorMax, &p.FactorMax},
		{"price floor", tc.PriceFloor, &p.PriceFloor},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.value)
		if err != nil {
			return Params{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
