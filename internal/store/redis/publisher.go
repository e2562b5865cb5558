// Package redis publishes live trading telemetry for the presentation
// layer: periodic heartbeats, executed fills, and latest-equity keys.
// Publishing is best-effort behind a circuit breaker; the trading loop
// never blocks on Redis being down.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptotraderv1/internal/model"
)

const (
	defaultLatestTTL = 30 * time.Minute
	fillStreamMaxLen = 10000
)

// Config configures the publisher connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Heartbeat is the periodic status record consumed by dashboards.
type Heartbeat struct {
	Pair          string  `json:"pair"`
	TS            int64   `json:"ts"`
	Price         float64 `json:"price"`
	PositionQty   float64 `json:"position_qty"`
	AvgPrice      float64 `json:"avg_price"`
	Cash          float64 `json:"cash"`
	Equity        float64 `json:"equity"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  string  `json:"profit_factor"` // "inf" sentinel survives JSON
	RoundTrips    int     `json:"round_trips"`
	ExtraDelayMS  int64   `json:"extra_delay_ms"`
}

// Publisher writes telemetry to Redis through a circuit breaker.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// New connects and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	p := &Publisher{
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}
	p.breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}
	return p, nil
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// OnBreakerChange registers an additional observer for breaker
// transitions, keeping the log line from New in place. Used to export
// the breaker state as a gauge.
func (p *Publisher) OnBreakerChange(fn func(from, to State)) {
	prev := p.breaker.OnStateChange
	p.breaker.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		fn(from, to)
	}
}

// PublishHeartbeat sets the latest heartbeat key and fans it out on
// pubsub. Failures count against the breaker and are logged, not
// returned: telemetry loss must never stop trading.
func (p *Publisher) PublishHeartbeat(ctx context.Context, hb Heartbeat) {
	data, err := json.Marshal(hb)
	if err != nil {
		log.Printf("[redis] heartbeat marshal: %v", err)
		return
	}

	latestKey := "hb:latest:" + hb.Pair
	pubsubCh := "pub:hb:" + hb.Pair

	err = p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, latestKey, data, defaultLatestTTL)
		pipe.Set(ctx, "equity:latest:"+hb.Pair, hb.Equity, defaultLatestTTL)
		pipe.Publish(ctx, pubsubCh, data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] heartbeat publish: %v", err)
	}
}

// PublishFill appends an executed fill to the pair's stream and fans it
// out on pubsub.
func (p *Publisher) PublishFill(ctx context.Context, fill model.Fill) {
	data, err := json.Marshal(fill)
	if err != nil {
		log.Printf("[redis] fill marshal: %v", err)
		return
	}

	pair := fill.Pair.Symbol()
	err = p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: "fills:" + pair,
			MaxLen: fillStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, "pub:fill:"+pair, data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] fill publish: %v", err)
	}
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
