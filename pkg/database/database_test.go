package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestHealthCheck(t *testing.T) {
	saved := DB
	defer func() { DB = saved }()

	DB = nil
	assert.Error(t, HealthCheck(context.Background()))

	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	DB, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleCoins(t *testing.T) {
	coins := SampleCoins()
	require.Len(t, coins, 3)

	symbols := map[string]bool{}
	for _, c := range coins {
		assert.False(t, symbols[c.Symbol], "duplicate symbol %s", c.Symbol)
		symbols[c.Symbol] = true
		assert.True(t, c.Tradeable())
		assert.True(t, c.MarketCap.Equal(c.CurrentPrice.Mul(c.CurrentSupply)))
		assert.True(t, c.Low24h.Equal(c.CurrentPrice))
		require.NotNil(t, c.Rank)
	}
}
