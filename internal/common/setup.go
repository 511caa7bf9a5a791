package common

import (
	"context"
	"log"
	"strings"
	"time"

	"copytrade-ledger-go/internal/api"
	"copytrade-ledger-go/internal/database"
	"copytrade-ledger-go/internal/dispatcher"
	"copytrade-ledger-go/internal/formance"
	"copytrade-ledger-go/internal/listener"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/pricing"
	"copytrade-ledger-go/internal/settlement"
	"copytrade-ledger-go/internal/snapshot"
	"copytrade-ledger-go/internal/telemetry"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Oracle     pricing.Oracle
	Journal    *formance.Service
	Telemetry  *telemetry.Provider
	Metrics    *telemetry.Instruments
	Engine     *settlement.Engine
	Ledger     *api.LedgerService
	Dispatcher *dispatcher.Dispatcher
	Listener   *listener.SignalListener
	Snapshots  *snapshot.Job
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires storage, pricing, settlement, signal intake and
// snapshots. The Formance mirror is attached only when a stack URL is set.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}

	services.Telemetry, err = telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Metrics = telemetry.Default()

	oracle, err := pricing.NewBinanceOracle(cfg.Pricing)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Oracle = oracle

	opts := []settlement.Option{settlement.WithInstruments(services.Metrics)}
	if cfg.Formance.StackURL != "" {
		zap.L().Info("Connecting journal mirror", zap.String("stack", cfg.Formance.StackURL))
		services.Journal, err = formance.NewService(ctx, cfg.Formance, dbService)
		if err != nil {
			services.Close()
			return nil, err
		}
		opts = append(opts, settlement.WithJournal(services.Journal))
	} else {
		zap.L().Info("Journal mirror disabled, FORMANCE_STACK_URL not set")
	}

	services.Engine = settlement.NewEngine(dbService, cfg.Settlement.MinTradeValue, opts...)
	services.Ledger = api.NewLedgerService(dbService, oracle, services.Engine)
	services.Dispatcher = dispatcher.New(dbService, services.Engine, services.Metrics, cfg.Signals.MaxWorkers)
	services.Listener = listener.NewSignalListener(listener.SignalListenerConfig{
		Store:           dbService,
		Processor:       services.Dispatcher,
		PollingInterval: cfg.Signals.PollingInterval,
		QueueSize:       cfg.Signals.QueueSize,
		MaxAge:          cfg.Signals.MaxAge,
	})
	services.Snapshots = snapshot.NewJob(dbService, oracle, cfg.Snapshot,
		snapshot.WithInstruments(services.Metrics))

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service without pricing
// or the journal mirror. Useful for setup and read-only operations.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := cs.Telemetry.Shutdown(ctx); err != nil {
			zap.L().Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
	if cs.Journal != nil {
		cs.Journal.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
