package exmo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"cryptotraderv1/internal/model"
)

var testPair = model.TradingPair{Base: "DOGE", Quote: "EUR"}

// routeStub scripts responses per API method and records request forms.
type routeStub struct {
	mu        sync.Mutex
	responses map[string][]string // method -> queued bodies
	forms     map[string][]url.Values
}

func newRouteStub() *routeStub {
	return &routeStub{
		responses: map[string][]string{},
		forms:     map[string][]url.Values{},
	}
}

func (s *routeStub) queue(method string, bodies ...string) {
	s.mu.Lock()
	s.responses[method] = append(s.responses[method], bodies...)
	s.mu.Unlock()
}

func (s *routeStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[1:]
		r.ParseForm()

		s.mu.Lock()
		s.forms[method] = append(s.forms[method], r.PostForm)
		body := `{"result":true}`
		if q := s.responses[method]; len(q) > 0 {
			body = q[0]
			s.responses[method] = q[1:]
		}
		s.mu.Unlock()

		w.Write([]byte(body))
	}
}

func (s *routeStub) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms[method])
}

func (s *routeStub) form(method string, i int) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[method][i]
}

func newTestLive(t *testing.T, stub *routeStub, cfg LiveConfig) *Live {
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		APIKey:      testKey,
		APISecret:   testSecret,
		BaseURL:     srv.URL,
		MaxAttempts: 2,
		PerMinute:   10000,
		PerHour:     100000,
	}, NewMemoryNonce(time.Now().UnixMilli()), nil)

	l := NewLive(c, cfg)
	// Deterministic time: sleeping advances a fake clock.
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		now = now.Add(d)
		return nil
	}
	return l
}

func TestExecute_FillsWhenOrderLeavesBook(t *testing.T) {
	stub := newRouteStub()
	stub.queue("order_create", `{"result":true,"order_id":55}`)
	stub.queue("user_open_orders", `{}`) // order already gone: filled

	l := newTestLive(t, stub, LiveConfig{SlipBps: 10, RepriceAttempts: 2})

	pl, err := l.Execute(context.Background(), testPair, model.SideBuy, 100, 0.10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !pl.Executed || pl.OrderID != "55" {
		t.Fatalf("expected fill of order 55, got %+v", pl)
	}
	if stub.count("order_cancel") != 0 {
		t.Error("a filled order must not be cancelled")
	}

	// Buy limit sits above the reference by SlipBps.
	price, _ := strconv.ParseFloat(stub.form("order_create", 0).Get("price"), 64)
	if price <= 0.10 {
		t.Errorf("buy limit must cross the book, got %v", price)
	}
}

func TestExecute_UnfilledIsCancelledAndRepriced(t *testing.T) {
	resting := `{"DOGE_EUR":[{"order_id":"55","type":"buy","quantity":"100","price":"0.1","created":"1700000000"}]}`
	stub := newRouteStub()
	// Two attempts, each: create, two polls showing the order, cancel.
	stub.queue("order_create",
		`{"result":true,"order_id":"55"}`, `{"result":true,"order_id":"55"}`)
	stub.queue("user_open_orders", resting, resting, resting, resting)

	l := newTestLive(t, stub, LiveConfig{
		SlipBps: 10, RepriceBps: 20, RepriceAttempts: 1,
		PollInterval: 10 * time.Millisecond, FillWait: 10 * time.Millisecond,
	})

	pl, err := l.Execute(context.Background(), testPair, model.SideBuy, 100, 0.10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pl.Executed {
		t.Fatal("order never left the book, must not report a fill")
	}
	if pl.Reason != "unfilled" {
		t.Errorf("expected unfilled reason, got %q", pl.Reason)
	}
	if got := stub.count("order_create"); got != 2 {
		t.Errorf("expected 2 placement attempts, got %d", got)
	}
	if got := stub.count("order_cancel"); got != 2 {
		t.Errorf("every unfilled attempt must be cancelled, got %d cancels", got)
	}

	// The reprice must chase the market: second buy limit above the first.
	p0, _ := strconv.ParseFloat(stub.form("order_create", 0).Get("price"), 64)
	p1, _ := strconv.ParseFloat(stub.form("order_create", 1).Get("price"), 64)
	if p1 <= p0 {
		t.Errorf("reprice must worsen the buy limit: %v then %v", p0, p1)
	}
}

func TestExecute_SellLimitCrossesDown(t *testing.T) {
	stub := newRouteStub()
	stub.queue("order_create", `{"result":true,"order_id":"9"}`)
	stub.queue("user_open_orders", `{}`)

	l := newTestLive(t, stub, LiveConfig{SlipBps: 10})

	pl, err := l.Execute(context.Background(), testPair, model.SideSell, 100, 0.10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !pl.Executed {
		t.Fatalf("expected fill, got %+v", pl)
	}
	if pl.Price >= 0.10 {
		t.Errorf("sell limit must sit below the reference, got %v", pl.Price)
	}
}

func TestExecute_VenueRejectionIsStructured(t *testing.T) {
	stub := newRouteStub()
	stub.queue("order_create", `{"result":false,"error":"Error 50052: Insufficient funds"}`)

	l := newTestLive(t, stub, LiveConfig{SlipBps: 10})

	pl, err := l.Execute(context.Background(), testPair, model.SideBuy, 100, 0.10)
	if err != nil {
		t.Fatalf("a venue rejection is not an error: %v", err)
	}
	if pl.Executed || pl.Reason == "" {
		t.Errorf("expected a reasoned rejection, got %+v", pl)
	}
}

func TestExecute_RejectsBadInputs(t *testing.T) {
	l := newTestLive(t, newRouteStub(), LiveConfig{})
	if _, err := l.Execute(context.Background(), testPair, model.SideBuy, 0, 0.1); err == nil {
		t.Error("zero qty is a caller bug, expected error")
	}
	if _, err := l.Execute(context.Background(), testPair, model.SideBuy, 1, 0); err == nil {
		t.Error("zero reference price is a caller bug, expected error")
	}
}

func TestSweepDust_SkipsWhenOverCeiling(t *testing.T) {
	stub := newRouteStub()
	stub.queue("user_info", `{"result":true,"balances":{"DOGE":"0.4","EUR":"50"}}`)
	// Wide spread: sweeping one step costs 1*0.20 - 1.4*0.10 = 0.06.
	stub.queue("ticker", `{"DOGE_EUR":{"buy_price":"0.10","sell_price":"0.20"}}`)

	l := newTestLive(t, stub, LiveConfig{})

	swept, err := l.SweepDust(context.Background(), testPair, 1.0, 0.01)
	if err != nil {
		t.Fatalf("SweepDust: %v", err)
	}
	if swept {
		t.Error("sweep over the cost ceiling must be skipped")
	}
	if stub.count("order_create") != 0 {
		t.Error("a skipped sweep must not place orders")
	}
}

func TestSweepDust_NothingToSweep(t *testing.T) {
	stub := newRouteStub()
	// Balance at a full step is a position, not dust.
	stub.queue("user_info", `{"result":true,"balances":{"DOGE":"1.0","EUR":"50"}}`)

	l := newTestLive(t, stub, LiveConfig{})

	swept, err := l.SweepDust(context.Background(), testPair, 1.0, 1.0)
	if err != nil {
		t.Fatalf("SweepDust: %v", err)
	}
	if swept {
		t.Error("a full step is not dust")
	}
	if stub.count("ticker") != 0 {
		t.Error("no ticker call needed when there is nothing to sweep")
	}
}

func TestSweepDust_BuysStepThenSellsAll(t *testing.T) {
	stub := newRouteStub()
	stub.queue("user_info", `{"result":true,"balances":{"DOGE":"0.4","EUR":"50"}}`)
	// Tight spread: cost 1*0.101 - 1.4*0.100 = -0.039, well under ceiling.
	stub.queue("ticker", `{"DOGE_EUR":{"buy_price":"0.100","sell_price":"0.101"}}`)
	stub.queue("order_create", `{"result":true,"order_id":"1"}`, `{"result":true,"order_id":"2"}`)
	stub.queue("user_open_orders", `{}`, `{}`)

	l := newTestLive(t, stub, LiveConfig{SlipBps: 10})

	swept, err := l.SweepDust(context.Background(), testPair, 1.0, 0.05)
	if err != nil {
		t.Fatalf("SweepDust: %v", err)
	}
	if !swept {
		t.Fatal("expected the sweep to execute")
	}

	buyQty, _ := strconv.ParseFloat(stub.form("order_create", 0).Get("quantity"), 64)
	sellQty, _ := strconv.ParseFloat(stub.form("order_create", 1).Get("quantity"), 64)
	if buyQty != 1.0 {
		t.Errorf("sweep must buy one full step, got %v", buyQty)
	}
	if sellQty != 1.4 {
		t.Errorf("sweep must sell the whole holding, got %v", sellQty)
	}
	if stub.form("order_create", 0).Get("type") != "buy" || stub.form("order_create", 1).Get("type") != "sell" {
		t.Error("sweep order sides wrong")
	}
}
