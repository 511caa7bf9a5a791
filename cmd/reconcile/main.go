package main

import (
	"context"
	"flag"
	"fmt"

	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"
	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type reconcileStats struct {
	users        int
	withDrift    int
	mirrorErrors int
}

func printDrift(user common.UserInfo, report *models.DriftReport) {
	marker := "✓"
	if report.HasDrift {
		marker = "✗"
	}
	fmt.Printf("\n%s %s (%s) subscriptions=%d\n", marker, user.Name, user.Email, report.SubscriptionCount)
	fmt.Printf("│  cash: held %s, allocated %s, drift %s\n",
		common.FormatCash(report.WalletBalance, false),
		common.FormatCash(report.AllocatedBalance, false),
		common.FormatCash(report.CashDrift, true))
	for i, d := range report.CoinDrifts {
		fmt.Printf("%s%-6s held %s, allocated %s, drift %s\n",
			common.BoxPrefix(i == len(report.CoinDrifts)-1),
			d.Symbol,
			common.FormatQuantity(d.Held),
			common.FormatQuantity(d.Allocated),
			common.FormatQuantity(d.Drift))
	}
}

// compareMirror checks local coin holdings against the external journal. Cash
// is not compared because deposits are not mirrored.
func compareMirror(ctx context.Context, services *common.Services, user common.UserInfo) (int, error) {
	mirrored, err := services.Journal.GetWalletBalances(ctx, user.WalletId)
	if err != nil {
		return 0, err
	}
	_, holdings, err := services.Ledger.GetHoldings(ctx, user.Id)
	if err != nil {
		return 0, err
	}

	local := make(map[string]decimal.Decimal, len(holdings))
	for _, h := range holdings {
		local[h.Symbol] = h.Amount
	}
	for symbol := range mirrored {
		if _, ok := local[symbol]; !ok && symbol != ledger.CashAsset {
			local[symbol] = decimal.Zero
		}
	}

	mismatches := 0
	for symbol, amount := range local {
		if !amount.Equal(mirrored[symbol]) {
			mismatches++
			fmt.Printf("│  mirror mismatch %s: local %s, journal %s\n", symbol, amount, mirrored[symbol])
		}
	}
	return mismatches, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	referenceFlag := flag.String("reference", "", "Verify that one journal reference balances, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *referenceFlag != "" {
		if err := services.Ledger.VerifyJournal(ctx, *referenceFlag); err != nil {
			logger.Fatal("Journal check failed", zap.String("reference", *referenceFlag), zap.Error(err))
		}
		fmt.Printf("✓ Journal entries for %s balance\n", *referenceFlag)
		return
	}

	users, err := common.InitializeUsers(ctx, services.DbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("ALLOCATION DRIFT REPORT", common.DefaultWidth)

	stats := reconcileStats{}
	for _, user := range users {
		stats.users++
		report, err := services.Ledger.ReconcileUser(ctx, user.Id)
		if err != nil {
			logger.Error("Failed to reconcile user", zap.String("user_id", user.Id), zap.Error(err))
			continue
		}
		if report.HasDrift {
			stats.withDrift++
		}
		printDrift(user, report)

		if services.Journal == nil {
			continue
		}
		mismatches, err := compareMirror(ctx, services, user)
		if err != nil {
			logger.Error("Failed to read journal mirror", zap.String("user_id", user.Id), zap.Error(err))
			continue
		}
		stats.mirrorErrors += mismatches
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d users, %d over-allocated, %d mirror mismatches",
		stats.users, stats.withDrift, stats.mirrorErrors), common.DefaultWidth)
}
