package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// CoinConfig defines a tradable coin and the treasury liquidity seeded for it
type CoinConfig struct {
	Symbol      string `yaml:"symbol"`
	PriceFeedId string `yaml:"price_feed_id"`
	FeeRate     string `yaml:"fee_rate"`
	Liquidity   string `yaml:"treasury_liquidity"`
}

type BotConfig struct {
	Name    string `yaml:"name"`
	Coin    string `yaml:"coin"`
	FeeRate string `yaml:"fee_rate"`
	Status  string `yaml:"status"`
}

type MarketConfig struct {
	TreasuryCash string       `yaml:"treasury_cash"`
	Coins        []CoinConfig `yaml:"coins"`
	Bots         []BotConfig  `yaml:"bots"`
}

func LoadMarketConfig(marketFile string) (*MarketConfig, error) {
	var marketPath string
	if filepath.IsAbs(marketFile) {
		marketPath = marketFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		marketPath = filepath.Join(wd, marketFile)
	}

	data, err := os.ReadFile(marketPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", marketFile, err)
	}

	var config MarketConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", marketFile, err)
	}

	coins := make(map[string]bool)
	for i, coin := range config.Coins {
		if coin.Symbol == "" {
			return nil, fmt.Errorf("coin at index %d missing symbol", i)
		}
		if coin.PriceFeedId == "" {
			return nil, fmt.Errorf("coin %s missing price_feed_id", coin.Symbol)
		}
		coins[strings.ToUpper(coin.Symbol)] = true
	}
	for i, bot := range config.Bots {
		if bot.Name == "" {
			return nil, fmt.Errorf("bot at index %d missing name", i)
		}
		if !coins[strings.ToUpper(bot.Coin)] {
			return nil, fmt.Errorf("bot %s trades undefined coin %q", bot.Name, bot.Coin)
		}
		switch bot.Status {
		case "", models.BotStatusActive, models.BotStatusInactive:
		default:
			return nil, fmt.Errorf("bot %s has unknown status %q", bot.Name, bot.Status)
		}
	}

	return &config, nil
}

// parseAmount reads an optional decimal field, treating empty as zero
func parseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}

// SeedMarket creates the treasury, coins and bots. Treasury balances are only
// funded while they are still zero, so re-running setup does not inflate them.
func SeedMarket(ctx context.Context, s store.LedgerStore, market *MarketConfig) error {
	treasury, err := s.EnsureTreasury(ctx)
	if err != nil {
		return err
	}

	cash, err := parseAmount("treasury_cash", market.TreasuryCash)
	if err != nil {
		return err
	}
	if cash.IsPositive() && treasury.Balance.IsZero() {
		if err := s.FundTreasuryCash(ctx, cash, "seed-treasury-cash"); err != nil {
			return err
		}
	}

	held, err := s.GetHoldings(ctx, treasury.Id)
	if err != nil {
		return err
	}
	funded := make(map[string]bool, len(held))
	for _, h := range held {
		if h.Amount.IsPositive() {
			funded[h.CoinId] = true
		}
	}

	for _, c := range market.Coins {
		fee, err := parseAmount("fee_rate", c.FeeRate)
		if err != nil {
			return err
		}
		coin, err := s.CreateCoin(ctx, store.CreateCoinParams{Symbol: c.Symbol, PriceFeedId: c.PriceFeedId, FeeRate: fee})
		if err != nil {
			return err
		}

		liquidity, err := parseAmount("treasury_liquidity", c.Liquidity)
		if err != nil {
			return err
		}
		if liquidity.IsPositive() && !funded[coin.Id] {
			if err := s.FundTreasuryCoin(ctx, coin.Symbol, liquidity, "seed-treasury-"+strings.ToLower(coin.Symbol)); err != nil {
				return err
			}
		}
	}

	for _, b := range market.Bots {
		fee, err := parseAmount("fee_rate", b.FeeRate)
		if err != nil {
			return err
		}
		if _, err := s.CreateBot(ctx, store.CreateBotParams{Name: b.Name, CoinSymbol: b.Coin, FeeRate: fee, Status: b.Status}); err != nil {
			return err
		}
	}

	zap.L().Info("Market seeded",
		zap.Int("coins", len(market.Coins)),
		zap.Int("bots", len(market.Bots)))
	return nil
}
