package main

import (
	"context"
	"flag"
	"fmt"

	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func optionalDecimal(name, raw string) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		zap.L().Fatal("Invalid "+name, zap.String("value", raw), zap.Error(err))
	}
	return &d
}

func printSubscription(sub *models.Subscription) {
	state := "active"
	if !sub.Active {
		state = "stopped"
	}
	fmt.Printf("%s  bot=%s cash=%s coin=%s pct=%s invested=%s %s\n",
		sub.Id, sub.BotId,
		common.FormatCash(sub.VirtualBalance, false),
		common.FormatQuantity(sub.VirtualCoinBalance),
		sub.TradePercentage.String(),
		common.FormatCash(sub.NetInvestment, false),
		state)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Subscriber email, required to create or list")
	botFlag := flag.String("bot", "", "Bot name to copy")
	cashFlag := flag.String("cash", "", "Cash allocated to the subscription")
	coinFlag := flag.String("coin", "", "Coin allocated to the subscription")
	pctFlag := flag.String("pct", "", "Fraction of the allocation used per signal, in (0, 1]")
	updateFlag := flag.String("update", "", "Subscription id to update with --cash, --coin or --pct")
	stopFlag := flag.String("stop", "", "Subscription id to stop")
	deleteFlag := flag.String("delete", "", "Subscription id to delete")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()
	ledger := services.Ledger

	switch {
	case *stopFlag != "":
		if err := ledger.StopSubscription(ctx, *stopFlag); err != nil {
			zap.L().Fatal("Failed to stop subscription", zap.Error(err))
		}
		fmt.Printf("✓ Subscription %s stopped\n", *stopFlag)

	case *deleteFlag != "":
		if err := ledger.DeleteSubscription(ctx, *deleteFlag); err != nil {
			zap.L().Fatal("Failed to delete subscription", zap.Error(err))
		}
		fmt.Printf("✓ Subscription %s deleted\n", *deleteFlag)

	case *updateFlag != "":
		sub, err := ledger.UpdateSubscription(ctx, store.UpdateSubscriptionParams{
			SubscriptionId:     *updateFlag,
			VirtualBalance:     optionalDecimal("cash", *cashFlag),
			VirtualCoinBalance: optionalDecimal("coin", *coinFlag),
			TradePercentage:    optionalDecimal("pct", *pctFlag),
		})
		if err != nil {
			zap.L().Fatal("Failed to update subscription", zap.Error(err))
		}
		printSubscription(sub)

	case *emailFlag != "" && *botFlag != "":
		user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
		if err != nil {
			zap.L().Fatal("User not found", zap.Error(err))
		}
		bot, err := services.DbService.GetBotByName(ctx, *botFlag)
		if err != nil {
			zap.L().Fatal("Bot not found", zap.Error(err))
		}
		params := store.CreateSubscriptionParams{UserId: user.Id, BotId: bot.Id}
		if v := optionalDecimal("cash", *cashFlag); v != nil {
			params.VirtualBalance = *v
		}
		if v := optionalDecimal("coin", *coinFlag); v != nil {
			params.VirtualCoinBalance = *v
		}
		if v := optionalDecimal("pct", *pctFlag); v != nil {
			params.TradePercentage = *v
		}
		sub, err := ledger.CopyBot(ctx, params)
		if err != nil {
			zap.L().Fatal("Failed to copy bot", zap.Error(err))
		}
		printSubscription(sub)

	case *emailFlag != "":
		user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
		if err != nil {
			zap.L().Fatal("User not found", zap.Error(err))
		}
		subs, err := ledger.ListSubscriptions(ctx, user.Id)
		if err != nil {
			zap.L().Fatal("Failed to list subscriptions", zap.Error(err))
		}
		for i := range subs {
			printSubscription(&subs[i])
		}

	default:
		zap.L().Fatal("Nothing to do: pass --email, or one of --update, --stop, --delete")
	}
}
