/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"copytrade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout time.Duration
		snapshotInterval, snapshotBatchTimeout                     time.Duration
		signalPollingInterval, signalMaxAge                        time.Duration
		priceRequestTimeout, metricInterval                        time.Duration
		err                                                        error
	)

	if connMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if connMaxIdleTime, err = getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second); err != nil {
		return nil, err
	}
	if pingTimeout, err = getEnvDuration("DB_PING_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if busyTimeout, err = getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if snapshotInterval, err = getEnvDuration("SNAPSHOT_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if snapshotBatchTimeout, err = getEnvDuration("SNAPSHOT_BATCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if signalPollingInterval, err = getEnvDuration("SIGNAL_POLLING_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if signalMaxAge, err = getEnvDuration("SIGNAL_MAX_AGE", 10*time.Minute); err != nil {
		return nil, err
	}
	if priceRequestTimeout, err = getEnvDuration("PRICE_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if metricInterval, err = getEnvDuration("OTEL_METRIC_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	minTradeValue, err := getEnvDecimal("MIN_TRADE_VALUE", decimal.NewFromInt(5))
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "ledger.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			BusyTimeout:      busyTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Snapshot: models.SnapshotConfig{
			Interval:     snapshotInterval,
			BatchSize:    getEnvInt("SNAPSHOT_BATCH_SIZE", 100),
			BatchTimeout: snapshotBatchTimeout,
		},
		Signals: models.SignalConfig{
			PollingInterval: signalPollingInterval,
			QueueSize:       getEnvInt("SIGNAL_QUEUE_SIZE", 256),
			MaxAge:          signalMaxAge,
			MaxWorkers:      getEnvInt("DISPATCH_MAX_WORKERS", 4),
		},
		Settlement: models.SettlementConfig{
			MinTradeValue: minTradeValue,
		},
		Pricing: models.PricingConfig{
			BaseURL:           getEnvString("PRICE_API_URL", ""),
			RequestsPerSecond: getEnvInt("PRICE_REQUESTS_PER_SECOND", 5),
			MaxRetries:        getEnvInt("PRICE_MAX_RETRIES", 3),
			RequestTimeout:    priceRequestTimeout,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "copytrade-ledger"),
		},
		Telemetry: models.TelemetryConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			OTLPEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			OTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			MetricInterval: metricInterval,
			ServiceName:    getEnvString("OTEL_SERVICE_NAME", "copytrade-ledger"),
		},
		MarketFile: getEnvString("MARKET_FILE", "market.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("%s cannot be negative, got %s", key, value)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
