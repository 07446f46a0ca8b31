package models

/*
Coinfolio Engine Database Models

This package contains all database models organized by domain:

- coin.go      - Coin (asset ledger entity), CoinPatch and read views
- history.go   - TradeHistory records with side/status enums
- wallet.go    - Account balances, Holdings and Settlement
- utils.go     - Shared utility functions

Every economic value is a decimal.Decimal stored as decimal(36,18).
Models that can be filtered expose Field(name) so the in-memory store can
evaluate the same filters the SQL store translates into WHERE clauses.

To add new models:
1. Create a new file for your domain
2. Define your models with appropriate GORM tags
3. Add TableName() methods
4. Include the models in database.AutoMigrate()
*/
