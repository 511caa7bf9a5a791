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

package listener

import (
	"context"
	"sync"
	"time"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"
)

const (
	defaultQueueSize       = 256
	defaultPollingInterval = 10 * time.Second
	defaultMaxAge          = 10 * time.Minute
	pendingBatchSize       = 100
)

// SignalSource is the persistence the listener needs
type SignalSource interface {
	store.SignalStore
	GetBot(ctx context.Context, botId string) (*models.Bot, error)
}

// SignalProcessor settles one persisted signal against its subscribers
type SignalProcessor interface {
	ProcessSubscriptions(ctx context.Context, signal *models.Signal) (models.DispatchResult, error)
}

// SignalListenerConfig contains configuration for SignalListener
type SignalListenerConfig struct {
	Store           SignalSource
	Processor       SignalProcessor
	PollingInterval time.Duration
	QueueSize       int
	MaxAge          time.Duration
	Clock           func() time.Time
}

// SignalListener persists incoming signals and hands them to the dispatcher
// through an in-process queue. Pending signals are re-queued by a poller, so
// a signal survives a crash between persistence and settlement.
type SignalListener struct {
	store     SignalSource
	processor SignalProcessor

	queue chan string

	// Ids currently queued, so the poller does not enqueue them twice
	queued map[string]time.Time
	mutex  sync.Mutex

	pollingInterval time.Duration
	maxAge          time.Duration
	now             func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewSignalListener(cfg SignalListenerConfig) *SignalListener {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = defaultPollingInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &SignalListener{
		store:           cfg.Store,
		processor:       cfg.Processor,
		queue:           make(chan string, cfg.QueueSize),
		queued:          make(map[string]time.Time),
		pollingInterval: cfg.PollingInterval,
		maxAge:          cfg.MaxAge,
		now:             cfg.Clock,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// enqueue hands a signal id to the consumer without blocking. A full queue
// leaves the signal pending for the next poll.
func (l *SignalListener) enqueue(signalId string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.queued[signalId]; exists {
		return false
	}

	select {
	case l.queue <- signalId:
		l.queued[signalId] = l.now()
		return true
	default:
		return false
	}
}

func (l *SignalListener) dequeued(signalId string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.queued, signalId)
}

// QueueDepth reports how many signals are waiting for the consumer
func (l *SignalListener) QueueDepth() int {
	return len(l.queue)
}
