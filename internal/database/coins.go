package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var decimalOne = decimal.NewFromInt(1)

func getCoin(ctx context.Context, q querier, coinId string) (*models.Coin, error) {
	c, err := scanCoin(q.QueryRowContext(ctx, queryGetCoin, coinId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrCoinNotFound, coinId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query coin %s: %w", coinId, err)
	}
	return c, nil
}

func getCoinBySymbol(ctx context.Context, q querier, symbol string) (*models.Coin, error) {
	c, err := scanCoin(q.QueryRowContext(ctx, queryGetCoinBySymbol, strings.ToUpper(symbol)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: symbol %s", store.ErrCoinNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query coin %s: %w", symbol, err)
	}
	return c, nil
}

func getBot(ctx context.Context, q querier, botId string) (*models.Bot, error) {
	b, err := scanBot(q.QueryRowContext(ctx, queryGetBot, botId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrBotNotFound, botId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query bot %s: %w", botId, err)
	}
	return b, nil
}

// CreateCoin upserts a coin definition keyed by symbol
func (s *Service) CreateCoin(ctx context.Context, params store.CreateCoinParams) (*models.Coin, error) {
	if params.Symbol == "" || params.PriceFeedId == "" {
		return nil, fmt.Errorf("coin symbol and price feed id are required")
	}
	if params.FeeRate.IsNegative() || params.FeeRate.GreaterThanOrEqual(decimalOne) {
		return nil, fmt.Errorf("coin fee rate must be in [0, 1), got %s", params.FeeRate.String())
	}

	symbol := strings.ToUpper(params.Symbol)
	if _, err := s.db.ExecContext(ctx, queryInsertCoin, uuid.New().String(), symbol, params.PriceFeedId, params.FeeRate); err != nil {
		return nil, fmt.Errorf("unable to insert coin %s: %w", symbol, err)
	}

	zap.L().Info("Coin defined",
		zap.String("symbol", symbol),
		zap.String("price_feed_id", params.PriceFeedId),
		zap.String("fee_rate", params.FeeRate.String()))
	return getCoinBySymbol(ctx, s.db, symbol)
}

func (s *Service) GetCoinBySymbol(ctx context.Context, symbol string) (*models.Coin, error) {
	return getCoinBySymbol(ctx, s.db, symbol)
}

// GetCoinsByIds loads several coins in one query, keyed by id. Unknown ids are omitted.
func (s *Service) GetCoinsByIds(ctx context.Context, ids []string) (map[string]models.Coin, error) {
	coins := make(map[string]models.Coin, len(ids))
	if len(ids) == 0 {
		return coins, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM coins WHERE id IN (%s)`, coinColumns, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("unable to query coins: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan coin row: %w", err)
		}
		coins[c.Id] = *c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coin rows: %w", err)
	}
	return coins, nil
}

// CreateBot upserts a bot definition keyed by name
func (s *Service) CreateBot(ctx context.Context, params store.CreateBotParams) (*models.Bot, error) {
	if params.Name == "" || params.CoinSymbol == "" {
		return nil, fmt.Errorf("bot name and coin symbol are required")
	}
	if params.FeeRate.IsNegative() || params.FeeRate.GreaterThanOrEqual(decimalOne) {
		return nil, fmt.Errorf("bot fee rate must be in [0, 1), got %s", params.FeeRate.String())
	}
	status := params.Status
	if status == "" {
		status = models.BotStatusActive
	}

	_, err := s.db.ExecContext(ctx, queryInsertBot,
		uuid.New().String(), params.Name, strings.ToUpper(params.CoinSymbol), params.FeeRate, status)
	if err != nil {
		return nil, fmt.Errorf("unable to insert bot %s: %w", params.Name, err)
	}

	zap.L().Info("Bot defined",
		zap.String("name", params.Name),
		zap.String("coin_symbol", params.CoinSymbol),
		zap.String("fee_rate", params.FeeRate.String()),
		zap.String("status", status))
	return s.GetBotByName(ctx, params.Name)
}

func (s *Service) GetBot(ctx context.Context, botId string) (*models.Bot, error) {
	return getBot(ctx, s.db, botId)
}

func (s *Service) GetBotByName(ctx context.Context, name string) (*models.Bot, error) {
	b, err := scanBot(s.db.QueryRowContext(ctx, queryGetBotByName, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrBotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query bot %s: %w", name, err)
	}
	return b, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
