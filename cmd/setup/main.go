package main

import (
	"context"
	"flag"
	"fmt"

	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"

	"go.uber.org/zap"
)

func printMarket(market *common.MarketConfig) {
	common.PrintHeader("MARKET", common.DefaultWidth)
	fmt.Printf("Treasury cash: %s\n", market.TreasuryCash)
	fmt.Println("Coins:")
	for i, c := range market.Coins {
		fmt.Printf("%s%-6s feed=%-10s fee=%-6s liquidity=%s\n",
			common.BoxPrefix(i == len(market.Coins)-1), c.Symbol, c.PriceFeedId, c.FeeRate, c.Liquidity)
	}
	fmt.Println("Bots:")
	for i, b := range market.Bots {
		status := b.Status
		if status == "" {
			status = "active"
		}
		fmt.Printf("%s%-16s coin=%-6s fee=%-6s %s\n",
			common.BoxPrefix(i == len(market.Bots)-1), b.Name, b.Coin, b.FeeRate, status)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	marketFlag := flag.String("market", "", "Path to the market definition (default: MARKET_FILE)")
	dryRun := flag.Bool("dry-run", false, "Validate and print the market without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	marketFile := cfg.MarketFile
	if *marketFlag != "" {
		marketFile = *marketFlag
	}

	zap.L().Info("Loading market configuration", zap.String("file", marketFile))
	market, err := common.LoadMarketConfig(marketFile)
	if err != nil {
		zap.L().Fatal("Failed to load market config", zap.Error(err))
	}
	printMarket(market)

	if *dryRun {
		return
	}

	zap.L().Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if err := common.SeedMarket(ctx, dbService, market); err != nil {
		zap.L().Fatal("Failed to seed market", zap.Error(err))
	}

	treasury, err := dbService.GetTreasury(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read treasury", zap.Error(err))
	}
	common.PrintFooter(fmt.Sprintf("Setup complete. Treasury %s holds %s cash",
		treasury.Id, common.FormatCash(treasury.Balance, false)), common.DefaultWidth)
}
