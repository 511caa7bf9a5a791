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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"
	"copytrade-ledger-go/internal/snapshot"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Capture one round of snapshots and exit")
	noSignals := flag.Bool("no-signals", false, "Run snapshots only, without settling signals")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting copy-trading ledger engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Ledger.HealthCheck(ctx); err != nil {
		zap.L().Fatal("Ledger is not ready, run cmd/setup first", zap.Error(err))
	}

	scheduler := snapshot.NewScheduler(services.Snapshots, cfg.Snapshot.Interval)
	if *once {
		subs, wallets := scheduler.RunOnce(ctx)
		zap.L().Info("Snapshot round finished",
			zap.Stringer("subscriptions", subs),
			zap.Stringer("wallets", wallets))
		return
	}

	if !*noSignals {
		if err := services.Listener.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start signal listener", zap.Error(err))
		}
	}
	scheduler.Start(ctx)

	zap.L().Info("Engine running",
		zap.Bool("signals", !*noSignals),
		zap.Duration("snapshot_interval", cfg.Snapshot.Interval),
		zap.Bool("journal_mirror", services.Journal != nil))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping engine...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		var wg conc.WaitGroup
		if !*noSignals {
			wg.Go(services.Listener.Stop)
		}
		wg.Go(scheduler.Stop)
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Engine stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
