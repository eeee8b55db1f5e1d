package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// feedTick is the JSON frame the price stream pushes per observation.
type feedTick struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
	TS    int64           `json:"ts"`
}

// FeedOracle subscribes to a websocket price stream and serves the last
// observed rate per pair. Pairs the stream has not covered yet fall back
// to 1:1, same as the static oracle.
type FeedOracle struct {
	url string

	mu    sync.RWMutex
	rates map[string]decimal.Decimal
	seen  map[string]time.Time
}

func NewFeedOracle(url string) *FeedOracle {
	return &FeedOracle{
		url:   url,
		rates: make(map[string]decimal.Decimal),
		seen:  make(map[string]time.Time),
	}
}

// Run dials the stream and consumes ticks until the context is cancelled.
// Dial and read failures are retried with a flat backoff; the consumer is
// expected to live for the process lifetime.
func (o *FeedOracle) Run(ctx context.Context) {
	for {
		if err := o.consume(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("price feed consumer stopping")
				return
			}

			logger.WithError(err).Warn("price feed connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (o *FeedOracle) consume(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, o.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	logger.WithField("url", o.url).Info("price feed connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		var tick feedTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			logger.WithError(err).Debug("skipping malformed feed frame")
			continue
		}

		if tick.Base == "" || tick.Quote == "" || !tick.Rate.IsPositive() {
			continue
		}

		o.mu.Lock()
		key := pairKey(tick.Base, tick.Quote)
		o.rates[key] = tick.Rate
		o.seen[key] = time.Unix(tick.TS, 0)
		o.mu.Unlock()
	}
}

// CurrentPrice returns the last streamed rate for the pair, or 1 when the
// stream has not produced one yet.
func (o *FeedOracle) CurrentPrice(_ context.Context, assetA, assetB string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if rate, ok := o.rates[pairKey(assetA, assetB)]; ok {
		return rate, nil
	}
	return decimal.NewFromInt(1), nil
}

// LastObserved reports when the pair was last updated by the stream.
func (o *FeedOracle) LastObserved(assetA, assetB string) (time.Time, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ts, ok := o.seen[pairKey(assetA, assetB)]
	return ts, ok
}
