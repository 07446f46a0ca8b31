package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coinfolio-engine/pkg/config"
	"coinfolio-engine/pkg/models"
)

var DB *gorm.DB

// Initialize database connection
func Initialize(cfg *config.Config) error {
	level := logger.Warn
	if cfg.IsDevelopment() {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Connection pool configuration
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxLife)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	logrus.Info("Database connected successfully")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	err := DB.AutoMigrate(
		&models.Coin{},
		&models.TradeHistory{},
		&models.Account{},
		&models.Holding{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// SampleCoins are the coins created by SeedData.
func SampleCoins() []models.Coin {
	supply := decimal.NewFromInt(1000000)
	coin := func(id, name, symbol, price string, rank int) models.Coin {
		p := decimal.RequireFromString(price)
		return models.Coin{
			CoinID:           id,
			Name:             name,
			Symbol:           symbol,
			Description:      name + " sample coin",
			CreatorID:        "system",
			TotalSupply:      supply,
			CurrentSupply:    supply,
			InitialPrice:     p,
			CurrentPrice:     p,
			High24h:          p,
			Low24h:           p,
			Volume24h:        decimal.Zero,
			Change24h:        decimal.Zero,
			Change24hPercent: decimal.Zero,
			MarketCap:        p.Mul(supply),
			Rank:             models.IntPtr(rank),
			IsActive:         true,
			IsTradeable:      true,
			TradingFee:       decimal.RequireFromString("0.001"),
		}
	}
	return []models.Coin{
		coin("seedcoinbtc000000000", "Bitroll", "BRL", "100", 1),
		coin("seedcoineth000000000", "Etherloop", "ELP", "25", 2),
		coin("seedcoinada000000000", "Adamant", "ADM", "0.5", 3),
	}
}

// SeedData creates initial data for testing
func SeedData() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	for _, coin := range SampleCoins() {
		var existing models.Coin
		err := DB.Where("symbol = ?", coin.Symbol).First(&existing).Error
		switch {
		case err == nil:
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check coin %s: %w", coin.Symbol, err)
		}

		coin.Version = 1
		if err := DB.Create(&coin).Error; err != nil {
			return fmt.Errorf("failed to create coin %s: %w", coin.Symbol, err)
		}
		logrus.WithField("coin_id", coin.CoinID).Infof("Created coin: %s", coin.Symbol)
	}

	for _, userID := range []string{"alice", "bob"} {
		account := models.Account{UserID: userID, Balance: decimal.NewFromInt(10000)}
		if err := DB.Where(models.Account{UserID: userID}).FirstOrCreate(&account).Error; err != nil {
			return fmt.Errorf("failed to create account %s: %w", userID, err)
		}
	}

	logrus.Info("Database seeding completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
