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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalRequest is a validated signal tuple delivered by the ingestion path
type SignalRequest struct {
	BotId          string          `json:"bot_id"`
	Action         TradeType       `json:"action"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Timestamp      time.Time       `json:"timestamp"`
}

// DispatchResult is the aggregate outcome of fanning one signal out
type DispatchResult struct {
	SignalId  string `json:"signal_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}
