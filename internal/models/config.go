package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Snapshot   SnapshotConfig
	Signals    SignalConfig
	Settlement SettlementConfig
	Pricing    PricingConfig
	Formance   FormanceConfig
	Telemetry  TelemetryConfig
	MarketFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// SnapshotConfig holds snapshot job settings
type SnapshotConfig struct {
	Interval     time.Duration
	BatchSize    int
	BatchTimeout time.Duration
}

// SignalConfig holds signal intake and fan-out settings
type SignalConfig struct {
	PollingInterval time.Duration
	QueueSize       int
	MaxAge          time.Duration
	MaxWorkers      int
}

// SettlementConfig holds trade settlement settings. Copy trades whose value
// does not exceed MinTradeValue are skipped as dust.
type SettlementConfig struct {
	MinTradeValue decimal.Decimal
}

// PricingConfig holds price oracle settings
type PricingConfig struct {
	BaseURL           string
	RequestsPerSecond int
	MaxRetries        int
	RequestTimeout    time.Duration
}

// FormanceConfig holds the optional journal mirror settings. The mirror is
// disabled when StackURL is empty.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// TelemetryConfig holds OpenTelemetry metric export settings
type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	OTLPInsecure   bool
	MetricInterval time.Duration
	ServiceName    string
}
