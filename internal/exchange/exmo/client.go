package exmo

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/tidwall/gjson"

	"cryptotraderv1/internal/model"
)

const defaultBaseURL = "https://api.exmo.com/v1.1"

// Recorder receives instrumentation events from the client. Implementations
// must be safe for concurrent use; a nil Recorder disables instrumentation.
type Recorder interface {
	APICall(method string, outcome string)
	Retry(method string)
	RateLimitWait(d time.Duration)
}

// Config configures the live client.
type Config struct {
	APIKey    string
	APISecret string

	BaseURL string        // default https://api.exmo.com/v1.1
	Timeout time.Duration // per-request, default 10s

	MaxAttempts int // bounded retry budget, default 5
	PerMinute   int // rate budget, default 170
	PerHour     int // rate budget, default 3400
}

func (c *Config) fill() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PerMinute == 0 {
		c.PerMinute = 170
	}
	if c.PerHour == 0 {
		c.PerHour = 3400
	}
}

// Client is a signed EXMO REST client. Every authenticated call carries a
// strictly increasing nonce from the injected NonceSource and an
// HMAC-SHA512 signature of the urlencoded body.
type Client struct {
	cfg     Config
	http    *http.Client
	nonce   NonceSource
	limiter *Limiter
	rec     Recorder
}

// NewClient builds a client. nonce must never repeat values across process
// restarts when talking to the real venue.
func NewClient(cfg Config, nonce NonceSource, rec Recorder) *Client {
	cfg.fill()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		nonce:   nonce,
		limiter: NewLimiter(cfg.PerMinute, cfg.PerHour),
		rec:     rec,
	}
}

// Limiter exposes the shared rate limiter so the trading loop can report
// its state (adaptive delay) on heartbeats.
func (c *Client) Limiter() *Limiter { return c.limiter }

// sign returns the hex HMAC-SHA512 of body under the API secret.
func sign(secret, body string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// call runs one authenticated POST with rate limiting and bounded retries.
// Retryable outcomes are re-signed with a fresh nonce each attempt.
func (c *Client) call(ctx context.Context, method string, params url.Values) (gjson.Result, error) {
	bo := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Factor: 2}

	var last Outcome
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if c.rec != nil {
				c.rec.Retry(method)
			}
			if err := sleepCtx(ctx, bo.Duration()); err != nil {
				return gjson.Result{}, err
			}
		}

		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}
		if c.rec != nil {
			c.rec.RateLimitWait(time.Since(waitStart))
		}

		res, outcome, err := c.post(ctx, method, params)
		if err != nil {
			// Transport-level failure: timeout, refused connection. Retry.
			log.Printf("[exmo] %s transport error (attempt %d/%d): %v",
				method, attempt+1, c.cfg.MaxAttempts, err)
			c.limiter.OnThrottle()
			last = Outcome{Kind: KindRetryable, APIError: err.Error()}
			continue
		}
		if c.rec != nil {
			c.rec.APICall(method, outcome.Kind.String())
		}

		switch outcome.Kind {
		case KindOK:
			c.limiter.OnSuccess()
			return res, nil
		case KindRetryable:
			if outcome.HTTPStatus == 429 || outcome.HTTPStatus >= 500 {
				c.limiter.OnThrottle()
			}
			log.Printf("[exmo] %s retryable (attempt %d/%d): %v",
				method, attempt+1, c.cfg.MaxAttempts, outcome)
			last = outcome
		default:
			return res, outcome
		}
	}
	return gjson.Result{}, fmt.Errorf("exmo: %s exhausted %d attempts: %w", method, c.cfg.MaxAttempts, last)
}

// post performs a single signed request and classifies the response.
func (c *Client) post(ctx context.Context, method string, params url.Values) (gjson.Result, Outcome, error) {
	n, err := c.nonce.Next()
	if err != nil {
		return gjson.Result{}, Outcome{}, fmt.Errorf("exmo: nonce: %w", err)
	}

	form := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	form.Set("nonce", strconv.FormatInt(n, 10))
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/"+method, strings.NewReader(body))
	if err != nil {
		return gjson.Result{}, Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", c.cfg.APIKey)
	req.Header.Set("Sign", sign(c.cfg.APISecret, body))

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, Outcome{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, Outcome{}, err
	}

	res := gjson.ParseBytes(raw)
	apiErr := ""
	if r := res.Get("result"); r.Exists() && !r.Bool() {
		apiErr = res.Get("error").String()
	}
	outcome := classify(resp.StatusCode, apiErr)
	return res, outcome, nil
}

// public performs an unauthenticated GET, rate limited and retried the
// same way as signed calls.
func (c *Client) public(ctx context.Context, path string) (gjson.Result, error) {
	bo := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Factor: 2}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, bo.Duration()); err != nil {
				return gjson.Result{}, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+path, nil)
		if err != nil {
			return gjson.Result{}, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.limiter.OnThrottle()
			lastErr = err
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			c.limiter.OnThrottle()
			lastErr = fmt.Errorf("exmo: %s http %d", path, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return gjson.Result{}, fmt.Errorf("exmo: %s http %d: %s", path, resp.StatusCode, raw)
		}
		c.limiter.OnSuccess()
		return gjson.ParseBytes(raw), nil
	}
	return gjson.Result{}, fmt.Errorf("exmo: %s exhausted %d attempts: %w", path, c.cfg.MaxAttempts, lastErr)
}

// Balances returns all wallet balances from user_info.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	res, err := c.call(ctx, "user_info", url.Values{})
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	res.Get("balances").ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.Float()
		return true
	})
	return out, nil
}

// OrderCreate submits a limit order and returns the venue order id.
// side is "buy" or "sell".
func (c *Client) OrderCreate(ctx context.Context, pair model.TradingPair, side string, qty, price float64) (string, error) {
	params := url.Values{}
	params.Set("pair", pair.Symbol())
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	params.Set("type", side)

	res, err := c.call(ctx, "order_create", params)
	if err != nil {
		return "", err
	}
	id := res.Get("order_id").String()
	if id == "" || id == "0" {
		return "", fmt.Errorf("exmo: order_create returned no order id: %s", res.Raw)
	}
	return id, nil
}

// OrderCancel cancels a resting order. Cancelling an order that already
// filled is reported by the venue as a rejection; callers treat that as
// "nothing left to cancel".
func (c *Client) OrderCancel(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("order_id", orderID)
	_, err := c.call(ctx, "order_cancel", params)
	return err
}

// OpenOrders lists resting orders for the pair.
func (c *Client) OpenOrders(ctx context.Context, pair model.TradingPair) ([]model.Order, error) {
	res, err := c.call(ctx, "user_open_orders", url.Values{})
	if err != nil {
		return nil, err
	}

	var out []model.Order
	res.Get(pair.Symbol()).ForEach(func(_, v gjson.Result) bool {
		side := model.SideBuy
		if v.Get("type").String() == "sell" {
			side = model.SideSell
		}
		out = append(out, model.Order{
			OrderID:   v.Get("order_id").String(),
			Pair:      pair,
			Side:      side,
			Qty:       v.Get("quantity").Float(),
			Price:     v.Get("price").Float(),
			CreatedAt: time.Unix(v.Get("created").Int(), 0).UTC(),
		})
		return true
	})
	return out, nil
}

// Ticker returns the current bid and ask for the pair.
func (c *Client) Ticker(ctx context.Context, pair model.TradingPair) (bid, ask float64, err error) {
	res, err := c.public(ctx, "ticker")
	if err != nil {
		return 0, 0, err
	}
	t := res.Get(pair.Symbol())
	if !t.Exists() {
		return 0, 0, fmt.Errorf("exmo: ticker has no pair %s", pair.Symbol())
	}
	return t.Get("buy_price").Float(), t.Get("sell_price").Float(), nil
}

// PairSettings fetches the venue constraints for the pair.
// pricePrecision is in decimal places, not a tick size.
func (c *Client) PairSettings(ctx context.Context, pair model.TradingPair) (minQty, minNotional, pricePrecision float64, err error) {
	res, err := c.public(ctx, "pair_settings")
	if err != nil {
		return 0, 0, 0, err
	}
	s := res.Get(pair.Symbol())
	if !s.Exists() {
		return 0, 0, 0, fmt.Errorf("exmo: pair_settings has no pair %s", pair.Symbol())
	}
	return s.Get("min_quantity").Float(), s.Get("min_amount").Float(), s.Get("price_precision").Float(), nil
}

// Candles fetches OHLCV history from the candles_history endpoint.
// resolution is in minutes.
func (c *Client) Candles(ctx context.Context, pair model.TradingPair, resolution int, from, to time.Time) ([]model.Candle, error) {
	path := fmt.Sprintf("candles_history?symbol=%s&resolution=%d&from=%d&to=%d",
		pair.Symbol(), resolution, from.Unix(), to.Unix())
	res, err := c.public(ctx, path)
	if err != nil {
		return nil, err
	}

	var out []model.Candle
	res.Get("candles").ForEach(func(_, v gjson.Result) bool {
		out = append(out, model.Candle{
			Pair:   pair.Symbol(),
			TS:     time.UnixMilli(v.Get("t").Int()).UTC(),
			Open:   v.Get("o").Float(),
			High:   v.Get("h").Float(),
			Low:    v.Get("l").Float(),
			Close:  v.Get("c").Float(),
			Volume: v.Get("v").Float(),
		})
		return true
	})
	return model.Normalize(out), nil
}
