package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User's email address (required)")
	symbolFlag := flag.String("symbol", "", "Coin symbol to buy or sell")
	sideFlag := flag.String("side", "buy", "buy or sell")
	qtyFlag := flag.String("qty", "", "Coin quantity")
	depositFlag := flag.String("deposit", "", "Deposit this cash amount instead of trading")
	historyFlag := flag.Int("history", 0, "Print the last N trades instead of trading")
	flag.Parse()

	if *emailFlag == "" {
		zap.L().Fatal("--email is required")
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

	user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
	}

	switch {
	case *depositFlag != "":
		amount, err := decimal.NewFromString(*depositFlag)
		if err != nil {
			zap.L().Fatal("Invalid deposit amount", zap.Error(err))
		}
		wallet, err := services.Ledger.Deposit(ctx, user.Id, amount, "deposit-"+uuid.New().String())
		if err != nil {
			zap.L().Fatal("Deposit failed", zap.Error(err))
		}
		fmt.Printf("✓ Deposited %s, balance %s\n",
			common.FormatCash(amount, false), common.FormatCash(wallet.Balance, false))

	case *historyFlag > 0:
		trades, err := services.Ledger.GetTradeHistory(ctx, user.Id, *historyFlag, 0)
		if err != nil {
			zap.L().Fatal("Failed to load trade history", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("TRADES FOR %s", user.Email), common.DefaultWidth)
		for i, t := range trades {
			fmt.Printf("%s%s %-4s %-6s %14s @ %-12s fee %s\n",
				common.BoxPrefix(i == len(trades)-1),
				t.CreatedAt.Format("2006-01-02 15:04:05"),
				t.Type, t.Symbol,
				common.FormatQuantity(t.Quantity),
				common.FormatCash(t.Price, false),
				common.FormatCash(t.Fee, false))
		}
		common.PrintSeparator("=", common.DefaultWidth)

	default:
		direction := models.TradeType(strings.ToUpper(*sideFlag))
		if !direction.Valid() {
			zap.L().Fatal("--side must be buy or sell", zap.String("side", *sideFlag))
		}
		qty, err := decimal.NewFromString(*qtyFlag)
		if err != nil {
			zap.L().Fatal("Invalid quantity", zap.String("qty", *qtyFlag), zap.Error(err))
		}

		trade, err := services.Ledger.PlaceManualTrade(ctx, user.Id, *symbolFlag, direction, qty)
		switch {
		case errors.Is(err, store.ErrInsufficientFunds), errors.Is(err, store.ErrInsufficientCoinBalance):
			fmt.Printf("✗ Rejected: %v\n", err)
			return
		case err != nil:
			zap.L().Fatal("Trade failed", zap.Error(err))
		}
		fmt.Printf("✓ %s %s %s @ %s (notional %s, fee %s)\n",
			trade.Type, common.FormatQuantity(trade.Quantity), trade.Symbol,
			common.FormatCash(trade.Price, false),
			common.FormatCash(trade.Notional, false),
			common.FormatCash(trade.Fee, false))
	}
}
