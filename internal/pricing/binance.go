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

package pricing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"copytrade-ledger-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// codeTooManyRequests is the exchange's request-weight throttling code
const codeTooManyRequests = -1003

// BinanceOracle reads public spot ticker prices. Price feed ids are Binance
// symbols such as BTCUSDT.
type BinanceOracle struct {
	client     *binance.Client
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration
}

func NewBinanceOracle(cfg models.PricingConfig) (*BinanceOracle, error) {
	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	// Market data endpoints are public, no keys required
	client := binance.NewClient("", "")
	client.HTTPClient = &httpClient
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	zap.L().Info("Binance price oracle initialized",
		zap.String("base_url", client.BaseURL),
		zap.Int("requests_per_second", rps),
		zap.Int("max_retries", cfg.MaxRetries))

	return &BinanceOracle{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.RequestTimeout,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   10 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func (o *BinanceOracle) GetPrice(ctx context.Context, feedId string) (decimal.Decimal, error) {
	prices, err := o.GetBatchPrices(ctx, []string{feedId})
	if err != nil {
		return decimal.Zero, err
	}
	p, ok := prices[feedId]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, feedId)
	}
	return p, nil
}

// GetBatchPrices fetches every feed in one request. If the exchange rejects
// the batch because of an unknown symbol, each feed is retried on its own and
// the ones that still fail are left out.
func (o *BinanceOracle) GetBatchPrices(ctx context.Context, feedIds []string) (map[string]decimal.Decimal, error) {
	ids := Distinct(feedIds)
	out := make(map[string]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	prices, err := o.fetch(ctx, ids)
	if err == nil {
		collect(out, prices)
		return out, nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	if len(ids) == 1 {
		zap.L().Warn("Price feed rejected", zap.String("feed_id", ids[0]), zap.Error(err))
		return out, nil
	}

	zap.L().Warn("Batch price request rejected, falling back to single requests",
		zap.Int("feeds", len(ids)),
		zap.Int64("code", apiErr.Code),
		zap.String("message", apiErr.Message))

	for _, id := range ids {
		single, err := o.fetch(ctx, []string{id})
		if err != nil {
			zap.L().Warn("Price unavailable", zap.String("feed_id", id), zap.Error(err))
			continue
		}
		collect(out, single)
	}
	return out, nil
}

// fetch performs one rate-limited request, retrying transient failures with
// exponential backoff. Exchange rejections are returned immediately.
func (o *BinanceOracle) fetch(ctx context.Context, symbols []string) ([]*binance.SymbolPrice, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	for attempt := 0; ; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqCtx := ctx
		var cancel context.CancelFunc = func() {}
		if o.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, o.timeout)
		}

		svc := o.client.NewListPricesService()
		if len(symbols) == 1 {
			svc = svc.Symbol(symbols[0])
		} else {
			svc = svc.Symbols(symbols)
		}
		prices, err := svc.Do(reqCtx)
		cancel()
		if err == nil {
			return prices, nil
		}

		if !retryable(err) || attempt >= o.maxRetries {
			return nil, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}
		zap.L().Debug("Retrying price request",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// retryable reports transport errors, throttling and unparsed server errors
func retryable(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return !errors.Is(err, context.Canceled)
	}
	return apiErr.Code == 0 || apiErr.Code == codeTooManyRequests
}

func collect(out map[string]decimal.Decimal, prices []*binance.SymbolPrice) {
	for _, p := range prices {
		if p == nil {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			zap.L().Warn("Ignoring unusable price", zap.String("feed_id", p.Symbol), zap.String("price", p.Price))
			continue
		}
		out[p.Symbol] = price
	}
}
