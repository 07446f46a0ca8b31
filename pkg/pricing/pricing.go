// Package pricing computes how a trade moves a coin's price and rolling
// 24h statistics. It performs no I/O; randomness comes from a RandomSource
// so results are reproducible under test.
package pricing

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/models"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// RandomSource yields uniformly distributed values in [0, 1).
// *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Fixed always returns the same draw. Fixed(0.5) gives a random factor of
// exactly 1.0 with the default parameters.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }

// lockedSource makes a *rand.Rand safe for concurrent trades.
type lockedSource struct {
	mu  sync.Mutex
	src *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Float64()
}

// NewRandomSource returns a goroutine-safe source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
	return &lockedSource{src: rand.New(rand.NewSource(seed))}
}

// Params are the tunable constants of the impact model.
type Params struct {
	MinVolatility    decimal.Decimal
	MaxVolatility    decimal.Decimal
	ScarcityWeight   decimal.Decimal
	OversupplyWeight decimal.Decimal
	FactorMin        decimal.Decimal
	FactorMax        decimal.Decimal
	PriceFloor       decimal.Decimal
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		MinVolatility:    decimal.RequireFromString("0.1"),
		MaxVolatility:    decimal.RequireFromString("5.0"),
		ScarcityWeight:   decimal.RequireFromString("0.5"),
		OversupplyWeight: decimal.RequireFromString("0.3"),
		FactorMin:        decimal.RequireFromString("0.8"),
		FactorMax:        decimal.RequireFromString("1.2"),
		PriceFloor:       decimal.RequireFromString("0.01"),
	}
}

// Validate rejects parameter sets that would break the price bounds.
func (p Params) Validate() error {
	const op = "pricing.params"
	switch {
	case !p.MinVolatility.IsPositive() || p.MaxVolatility.LessThan(p.MinVolatility):
		return apperr.InvalidArgument(op, "volatility bounds must satisfy 0 < min <= max")
	case p.ScarcityWeight.IsNegative() || p.OversupplyWeight.IsNegative():
		return apperr.InvalidArgument(op, "supply weights must not be negative")
	case !p.FactorMin.IsPositive() || p.FactorMax.LessThan(p.FactorMin):
		return apperr.InvalidArgument(op, "random factor bounds must satisfy 0 < min <= max")
	case !p.PriceFloor.IsPositive():
		return apperr.InvalidArgument(op, "price floor must be positive")
	}
	return nil
}

// MaxPercentChange is the largest magnitude of a single trade's percent move.
func (p Params) MaxPercentChange() decimal.Decimal {
	mult := decimal.Max(one.Add(p.ScarcityWeight), one.Add(p.OversupplyWeight))
	return p.MaxVolatility.Mul(mult).Mul(p.FactorMax)
}

// Impact is the outcome of a price movement: the new price and every
// derived statistic that must be written back to the coin.
type Impact struct {
	PercentChange    decimal.Decimal
	NewPrice         decimal.Decimal
	Change24h        decimal.Decimal
	Change24hPercent decimal.Decimal
	MarketCap        decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	Volume24h        decimal.Decimal
}

// Patch converts the impact into a coin update.
func (i Impact) Patch() models.CoinPatch {
	return models.CoinPatch{
		CurrentPrice:     models.DecimalPtr(i.NewPrice),
		Change24h:        models.DecimalPtr(i.Change24h),
		Change24hPercent: models.DecimalPtr(i.Change24hPercent),
		MarketCap:        models.DecimalPtr(i.MarketCap),
		High24h:          models.DecimalPtr(i.High24h),
		Low24h:           models.DecimalPtr(i.Low24h),
		Volume24h:        models.DecimalPtr(i.Volume24h),
	}
}

// Calculator applies the impact model.
type Calculator struct {
	params Params
	rand   RandomSource
}

// NewCalculator creates a calculator. A nil source draws from a
// time-seeded generator.
func NewCalculator(params Params, src RandomSource) *Calculator {
	if src == nil {
		src = NewRandomSource(time.Now().UnixNano())
	}
	return &Calculator{params: params, rand: src}
}

func (c *Calculator) Params() Params { return c.params }

// Compute returns the effect of trading amount units of coin at price.
func (c *Calculator) Compute(coin models.Coin, side models.TradeSide, amount, price decimal.Decimal) (Impact, error) {
	const op = "pricing.compute"

	if !side.MovesPrice() {
		return Impact{}, apperr.Newf(apperr.KindInvalidArgument, op, "side %q does not move the price", side)
	}
	if !amount.IsPositive() {
		return Impact{}, apperr.InvalidArgument(op, "amount must be positive")
	}
	if !price.IsPositive() {
		return Impact{}, apperr.InvalidArgument(op, "price must be positive")
	}
	if !coin.CurrentSupply.IsPositive() || !coin.TotalSupply.IsPositive() {
		return Impact{}, apperr.Newf(apperr.KindInvalidState, op, "coin %s has non-positive supply", coin.CoinID)
	}

	impactRatio := amount.Div(coin.CurrentSupply)
	baseVolatility := clamp(impactRatio.Mul(hundred), c.params.MinVolatility, c.params.MaxVolatility)
	factor := c.randomFactor()

	var percentChange decimal.Decimal
	if side == models.TradeSideBuy {
		scarcity := one.Add(coin.TotalSupply.Sub(coin.CurrentSupply).Div(coin.TotalSupply).Mul(c.params.ScarcityWeight))
		percentChange = baseVolatility.Mul(scarcity).Mul(factor)
	} else {
		oversupply := one.Add(coin.CurrentSupply.Div(coin.TotalSupply).Mul(c.params.OversupplyWeight))
		percentChange = baseVolatility.Mul(oversupply).Mul(factor).Neg()
	}

	current := coin.CurrentPrice
	newPrice := current.Add(current.Mul(percentChange).Div(hundred))
	newPrice = decimal.Max(newPrice, c.params.PriceFloor)

	impact := c.derive(coin, newPrice)
	impact.PercentChange = percentChange
	impact.Volume24h = coin.Volume24h.Add(amount.Mul(price))
	return impact, nil
}

// Manual derives the statistics for an administrative price override. No
// randomness is involved and volume is unchanged.
func (c *Calculator) Manual(coin models.Coin, newPrice decimal.Decimal) (Impact, error) {
	const op = "pricing.manual"
	if !newPrice.IsPositive() {
		return Impact{}, apperr.InvalidArgument(op, "price must be positive")
	}
	impact := c.derive(coin, newPrice)
	if coin.CurrentPrice.IsPositive() {
		impact.PercentChange = impact.Change24hPercent
	}
	impact.Volume24h = coin.Volume24h
	return impact, nil
}

func (c *Calculator) derive(coin models.Coin, newPrice decimal.Decimal) Impact {
	current := coin.CurrentPrice
	change := newPrice.Sub(current)
	changePercent := decimal.Zero
	if current.IsPositive() {
		changePercent = change.Div(current).Mul(hundred)
	}

	high := newPrice
	if coin.High24h.GreaterThan(high) {
		high = coin.High24h
	}
	low := newPrice
	if coin.Low24h.IsPositive() && coin.Low24h.LessThan(low) {
		low = coin.Low24h
	}

	return Impact{
		NewPrice:         newPrice,
		Change24h:        change,
		Change24hPercent: changePercent,
		MarketCap:        newPrice.Mul(coin.CurrentSupply),
		High24h:          high,
		Low24h:           low,
	}
}

// randomFactor maps a draw in [0, 1) onto [FactorMin, FactorMax].
func (c *Calculator) randomFactor() decimal.Decimal {
	u := c.rand.Float64()
	if u < 0 {
		u = 0
	} else if u > 1 {
		u = 1
	}
	span := c.params.FactorMax.Sub(c.params.FactorMin)
	return c.params.FactorMin.Add(decimal.NewFromFloat(u).Mul(span))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// ResetPatch returns the update that starts a new 24h window at the
// coin's current price.
func ResetPatch(coin models.Coin) models.CoinPatch {
	zero := decimal.Zero
	return models.CoinPatch{
		High24h:          models.DecimalPtr(coin.CurrentPrice),
		Low24h:           models.DecimalPtr(coin.CurrentPrice),
		Volume24h:        models.DecimalPtr(zero),
		Change24h:        models.DecimalPtr(zero),
		Change24hPercent: models.DecimalPtr(zero),
	}
}
