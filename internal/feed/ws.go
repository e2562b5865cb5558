package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/tidwall/gjson"

	"cryptotraderv1/internal/model"
)

// DefaultWSURL is the EXMO public spot stream.
const DefaultWSURL = "wss://ws-api.exmo.com:443/v1/public"

// WSFeed subscribes to the venue's public trade stream and aggregates
// trades into timeframe candles. Run must be started before Next is
// called; the feed reconnects with backoff until ctx is cancelled.
type WSFeed struct {
	url  string
	pair model.TradingPair
	agg  *Aggregator

	candleCh chan model.Candle

	// OnReconnect is called before every redial after a dropped
	// connection.
	OnReconnect func()
}

// NewWSFeed creates a trade-stream feed for one pair. An empty url means
// DefaultWSURL.
func NewWSFeed(url string, pair model.TradingPair, tf time.Duration) *WSFeed {
	if url == "" {
		url = DefaultWSURL
	}
	return &WSFeed{
		url:      url,
		pair:     pair,
		agg:      NewAggregator(tf),
		candleCh: make(chan model.Candle, 64),
	}
}

func (f *WSFeed) Next(ctx context.Context) (model.Candle, error) {
	select {
	case <-ctx.Done():
		return model.Candle{}, ctx.Err()
	case c, ok := <-f.candleCh:
		if !ok {
			return model.Candle{}, ErrExhausted
		}
		return c, nil
	}
}

// Run dials, subscribes, and pumps trades into the aggregator until ctx
// is cancelled. Dropped connections are redialed with exponential backoff.
func (f *WSFeed) Run(ctx context.Context) {
	defer close(f.candleCh)
	bo := &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true}

	for ctx.Err() == nil {
		if err := f.session(ctx); err != nil && ctx.Err() == nil {
			d := bo.Duration()
			log.Printf("[feed] ws session ended: %v, redial in %s", err, d)
			if f.OnReconnect != nil {
				f.OnReconnect()
			}
			if sleepCtx(ctx, d) != nil {
				return
			}
			continue
		}
		bo.Reset()
	}
}

func (f *WSFeed) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	topic := "spot/trades:" + f.pair.Symbol()
	sub := fmt.Sprintf(`{"method":"subscribe","topics":["%s"]}`, topic)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[feed] ws connected, subscribed %s", topic)

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case now := <-flush.C:
				if c, ok := f.agg.FlushBefore(now.UTC()); ok {
					f.emit(c)
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(topic, raw)
	}
}

func (f *WSFeed) handleMessage(topic string, raw []byte) {
	msg := gjson.ParseBytes(raw)
	if msg.Get("event").String() != "update" || msg.Get("topic").String() != topic {
		return
	}
	for _, t := range parseTrades(f.pair.Symbol(), msg.Get("data")) {
		if c, ok := f.agg.Push(t); ok {
			f.emit(c)
		}
	}
}

func (f *WSFeed) emit(c model.Candle) {
	select {
	case f.candleCh <- c:
	default:
		log.Printf("[feed] candle channel full, dropping %s ts=%v", c.Pair, c.TS)
	}
}

// parseTrades decodes the data array of a spot/trades update.
func parseTrades(pair string, data gjson.Result) []Trade {
	var out []Trade
	data.ForEach(func(_, v gjson.Result) bool {
		out = append(out, Trade{
			Pair:  pair,
			Price: v.Get("price").Float(),
			Qty:   v.Get("quantity").Float(),
			TS:    time.Unix(v.Get("date").Int(), 0).UTC(),
		})
		return true
	})
	return out
}
