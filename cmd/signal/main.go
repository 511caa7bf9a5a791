package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// referencePrice uses the explicit price when given, else the live oracle price for the bot's coin
func referencePrice(ctx context.Context, services *common.Services, bot *models.Bot, raw string) (decimal.Decimal, error) {
	if raw != "" {
		return decimal.NewFromString(raw)
	}
	coin, err := services.DbService.GetCoinBySymbol(ctx, bot.CoinSymbol)
	if err != nil {
		return decimal.Zero, err
	}
	return services.Oracle.GetPrice(ctx, coin.PriceFeedId)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	botFlag := flag.String("bot", "", "Bot name (required)")
	actionFlag := flag.String("action", "", "BUY or SELL (required)")
	priceFlag := flag.String("price", "", "Reference price (default: live oracle price)")
	settleFlag := flag.Bool("settle", false, "Settle pending signals now instead of leaving them to the engine")
	flag.Parse()

	if *botFlag == "" || *actionFlag == "" {
		zap.L().Fatal("Both flags are required: --bot and --action")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	bot, err := services.DbService.GetBotByName(ctx, *botFlag)
	if err != nil {
		zap.L().Fatal("Bot not found", zap.String("bot", *botFlag), zap.Error(err))
	}
	price, err := referencePrice(ctx, services, bot, *priceFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve reference price", zap.Error(err))
	}

	signal, err := services.Listener.Submit(ctx, models.SignalRequest{
		BotId:          bot.Id,
		Action:         models.TradeType(strings.ToUpper(*actionFlag)),
		ReferencePrice: price,
		Timestamp:      time.Now().UTC(),
	})
	switch {
	case errors.Is(err, store.ErrDuplicateTransaction) && signal != nil:
		fmt.Printf("~ Signal already received as %s (%s)\n", signal.Id, signal.Status)
		return
	case err != nil:
		zap.L().Fatal("Signal rejected", zap.Error(err))
	}
	fmt.Printf("✓ Signal %s stored: %s %s @ %s\n", signal.Id, bot.Name, signal.Action, signal.ReferencePrice)

	if !*settleFlag {
		fmt.Println("Signal is pending; a running engine settles it on its next poll")
		return
	}

	// Start settles everything pending before returning
	if err := services.Listener.Start(ctx); err != nil {
		zap.L().Fatal("Failed to settle signal", zap.Error(err))
	}
	services.Listener.Stop()

	settled, err := services.DbService.GetSignal(ctx, signal.Id)
	if err != nil {
		zap.L().Fatal("Failed to reload signal", zap.Error(err))
	}
	fmt.Printf("Signal %s is %s\n", settled.Id, settled.Status)
}
