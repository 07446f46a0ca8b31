package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio-engine/pkg/apperr"
	"coinfolio-engine/pkg/config"
	"coinfolio-engine/pkg/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func newCoin(total, current, price string) models.Coin {
	p := d(price)
	return models.Coin{
		CoinID:        "c1",
		TotalSupply:   d(total),
		CurrentSupply: d(current),
		InitialPrice:  p,
		CurrentPrice:  p,
		High24h:       p,
		Low24h:        p,
		IsActive:      true,
		IsTradeable:   true,
	}
}

func TestComputeBuyConcreteScenario(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000000", "1000000", "100")

	impact, err := calc.Compute(coin, models.TradeSideBuy, d("10000"), coin.CurrentPrice)
	require.NoError(t, err)

	assertDecimal(t, "1", impact.PercentChange)
	assertDecimal(t, "101", impact.NewPrice)
	assertDecimal(t, "101000000", impact.MarketCap)
	assertDecimal(t, "1", impact.Change24h)
	assertDecimal(t, "1", impact.Change24hPercent)
	assertDecimal(t, "101", impact.High24h)
	assertDecimal(t, "100", impact.Low24h)
	assertDecimal(t, "1000000", impact.Volume24h)
}

func TestComputeSellUsesOversupply(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000000", "1000000", "100")

	impact, err := calc.Compute(coin, models.TradeSideSell, d("10000"), coin.CurrentPrice)
	require.NoError(t, err)

	// base 1.0, oversupply 1.3, factor 1.0
	assertDecimal(t, "-1.3", impact.PercentChange)
	assertDecimal(t, "98.7", impact.NewPrice)
	assertDecimal(t, "100", impact.High24h)
	assertDecimal(t, "98.7", impact.Low24h)
}

func TestComputeVolatilityClamp(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000", "1000", "10")

	tiny, err := calc.Compute(coin, models.TradeSideBuy, d("0.001"), coin.CurrentPrice)
	require.NoError(t, err)
	assertDecimal(t, "0.1", tiny.PercentChange)

	huge, err := calc.Compute(coin, models.TradeSideBuy, d("1000"), coin.CurrentPrice)
	require.NoError(t, err)
	assertDecimal(t, "5", huge.PercentChange)
}

func TestComputePriceFloor(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.999))
	coin := newCoin("1000", "1000", "0.0105")

	impact, err := calc.Compute(coin, models.TradeSideSell, d("1000"), coin.CurrentPrice)
	require.NoError(t, err)
	assertDecimal(t, "0.01", impact.NewPrice)
	assertDecimal(t, "10", impact.MarketCap)
}

func TestComputeBoundsAndDirection(t *testing.T) {
	params := DefaultParams()
	calc := NewCalculator(params, rand.New(rand.NewSource(42)))
	limit := params.MaxPercentChange()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		total := decimal.NewFromInt(int64(1000 + rng.Intn(1000000)))
		current := total.Mul(decimal.NewFromFloat(0.01 + rng.Float64()*0.99)).Round(8)
		coin := newCoin(total.String(), current.String(), "25")
		amount := current.Mul(decimal.NewFromFloat(rng.Float64() * 0.2)).Round(8).Add(d("0.00000001"))

		buy, err := calc.Compute(coin, models.TradeSideBuy, amount, coin.CurrentPrice)
		require.NoError(t, err)
		assert.True(t, buy.PercentChange.Abs().LessThanOrEqual(limit))
		assert.True(t, buy.NewPrice.GreaterThanOrEqual(coin.CurrentPrice))
		assert.True(t, buy.NewPrice.GreaterThanOrEqual(params.PriceFloor))

		sell, err := calc.Compute(coin, models.TradeSideSell, amount, coin.CurrentPrice)
		require.NoError(t, err)
		assert.True(t, sell.PercentChange.Abs().LessThanOrEqual(limit))
		assert.True(t, sell.NewPrice.LessThanOrEqual(coin.CurrentPrice))
		assert.True(t, sell.MarketCap.Equal(sell.NewPrice.Mul(coin.CurrentSupply)))
	}
}

func TestRoundTripAsymmetry(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000000", "500000", "40")
	amount := d("5000")

	buy, err := calc.Compute(coin, models.TradeSideBuy, amount, coin.CurrentPrice)
	require.NoError(t, err)

	after := buy.Patch().Apply(coin)
	sell, err := calc.Compute(after, models.TradeSideSell, amount, after.CurrentPrice)
	require.NoError(t, err)

	// scarcity 1.25 vs oversupply 1.15 at half supply
	assertDecimal(t, "1.25", buy.PercentChange)
	assertDecimal(t, "-1.15", sell.PercentChange)
	assert.True(t, sell.PercentChange.Abs().LessThanOrEqual(buy.PercentChange.Abs()))
	assert.True(t, sell.NewPrice.GreaterThan(coin.CurrentPrice))
}

func TestComputeSeedsLowWhenUnset(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000000", "1000000", "100")
	coin.Low24h = decimal.Zero
	coin.High24h = d("150")

	impact, err := calc.Compute(coin, models.TradeSideBuy, d("10000"), coin.CurrentPrice)
	require.NoError(t, err)
	assertDecimal(t, "101", impact.Low24h)
	assertDecimal(t, "150", impact.High24h)
}

func TestComputeVolumeUsesTradePrice(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000000", "1000000", "100")
	coin.Volume24h = d("250")

	impact, err := calc.Compute(coin, models.TradeSideBuy, d("10"), d("90"))
	require.NoError(t, err)
	assertDecimal(t, "1150", impact.Volume24h)
}

func TestComputeRejects(t *testing.T) {
	calc := NewCalculator(DefaultParams(), Fixed(0.5))
	coin := newCoin("1000", "1000", "1")

	tests := []struct {
		name   string
		coin   models.Coin
		side   models.TradeSide
		amount string
		price  string
		kind   apperr.Kind
	}{
		{"zero amount", coin, models.TradeSideBuy, "0", "1", apperr.KindInvalidArgument},
		{"negative price", coin, models.TradeSideBuy, "1", "-1", apperr.KindInvalidArgument},
		{"send side", coin, models.TradeSideSend, "1", "1", apperr.KindInvalidArgument},
		{"empty supply", newCoin("1000", "0", "1"), models.TradeSideSell, "1", "1", apperr.KindInvalidState},
		{"empty total", newCoin("0", "10", "1"), models.TradeSideBuy, "1", "1", apperr.KindInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Compute(tt.coin, tt.side, d(tt.amount), d(tt.price))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestManual(t *testing.T) {
	calc := NewCalculator(DefaultParams(), nil)
	coin := newCoin("1000", "400", "100")
	coin.Volume24h = d("77")

	impact, err := calc.Manual(coin, d("50"))
	require.NoError(t, err)
	assertDecimal(t, "50", impact.NewPrice)
	assertDecimal(t, "-50", impact.Change24h)
	assertDecimal(t, "-50", impact.Change24hPercent)
	assertDecimal(t, "20000", impact.MarketCap)
	assertDecimal(t, "50", impact.Low24h)
	assertDecimal(t, "100", impact.High24h)
	assertDecimal(t, "77", impact.Volume24h)

	_, err = calc.Manual(coin, decimal.Zero)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

func TestResetPatchIdempotent(t *testing.T) {
	coin := newCoin("1000", "1000", "12.5")
	coin.High24h = d("20")
	coin.Low24h = d("3")
	coin.Volume24h = d("999")
	coin.Change24h = d("4")
	coin.Change24hPercent = d("47")

	once := ResetPatch(coin).Apply(coin)
	twice := ResetPatch(once).Apply(once)

	assert.Equal(t, once, twice)
	assertDecimal(t, "12.5", once.High24h)
	assertDecimal(t, "12.5", once.Low24h)
	assert.True(t, once.Volume24h.IsZero())
	assert.True(t, once.Change24h.IsZero())
	assert.True(t, once.Change24hPercent.IsZero())
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.PriceFloor = decimal.Zero
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.MaxVolatility = d("0.01")
	assert.Error(t, p.Validate())

	assertDecimal(t, "9", DefaultParams().MaxPercentChange())
}

func TestParamsFromConfig(t *testing.T) {
	tc := config.TradingConfig{
		MinVolatility:    "0.2",
		MaxVolatility:    "4",
		ScarcityWeight:   "0.5",
		OversupplyWeight: "0.3",
		RandomFactorMin:  "1",
		RandomFactorMax:  "1",
		PriceFloor:       "0.05",
	}

	p, err := ParamsFromConfig(tc)
	require.NoError(t, err)
	assertDecimal(t, "0.2", p.MinVolatility)
	assertDecimal(t, "0.05", p.PriceFloor)

	tc.PriceFloor = "cheap"
	_, err = ParamsFromConfig(tc)
	assert.Error(t, err)

	tc.PriceFloor = "0"
	_, err = ParamsFromConfig(tc)
	assert.Error(t, err)
}
