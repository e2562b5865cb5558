package exmo

import (
	"context"
	"crypto/hmac"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"cryptotraderv1/internal/model"
)

const (
	testKey    = "K-test-key"
	testSecret = "S-test-secret"
)

// apiStub scripts responses per call and records every signed request.
type apiStub struct {
	mu        sync.Mutex
	responses []stubResponse
	bodies    []string
	signs     []string
	keys      []string
	nonces    []int64
}

type stubResponse struct {
	status int
	body   string
}

func (s *apiStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		body := string(raw)

		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.keys = append(s.keys, r.Header.Get("Key"))
		s.signs = append(s.signs, r.Header.Get("Sign"))
		if vals, err := url.ParseQuery(body); err == nil {
			if n, err := strconv.ParseInt(vals.Get("nonce"), 10, 64); err == nil {
				s.nonces = append(s.nonces, n)
			}
		}
		var resp stubResponse
		if len(s.responses) > 0 {
			resp = s.responses[0]
			s.responses = s.responses[1:]
		} else {
			resp = stubResponse{200, `{"result":true}`}
		}
		s.mu.Unlock()

		w.WriteHeader(resp.status)
		w.Write([]byte(resp.body))
	}
}

func (s *apiStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

func newTestClient(t *testing.T, stub *apiStub) (*Client, *httptest.Server) {
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		APIKey:      testKey,
		APISecret:   testSecret,
		BaseURL:     srv.URL,
		MaxAttempts: 3,
		PerMinute:   10000,
		PerHour:     100000,
	}, NewMemoryNonce(time.Now().UnixMilli()), nil)
	return c, srv
}

func TestCall_SignsRequests(t *testing.T) {
	stub := &apiStub{}
	c, _ := newTestClient(t, stub)

	if _, err := c.call(context.Background(), "user_info", url.Values{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	if stub.keys[0] != testKey {
		t.Errorf("Key header: expected %q, got %q", testKey, stub.keys[0])
	}
	want := sign(testSecret, stub.bodies[0])
	if !hmac.Equal([]byte(stub.signs[0]), []byte(want)) {
		t.Errorf("Sign header does not match HMAC-SHA512 of the body")
	}
}

func TestCall_NonceStrictlyIncreases(t *testing.T) {
	stub := &apiStub{}
	c, _ := newTestClient(t, stub)

	for i := 0; i < 5; i++ {
		if _, err := c.call(context.Background(), "user_info", url.Values{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	for i := 1; i < len(stub.nonces); i++ {
		if stub.nonces[i] <= stub.nonces[i-1] {
			t.Fatalf("nonce not strictly increasing: %v", stub.nonces)
		}
	}
}

func TestCall_RetriesOn429ThenSucceeds(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{
		{429, `{}`},
		{200, `{"result":true,"order_id":7}`},
	}}
	c, _ := newTestClient(t, stub)

	res, err := c.call(context.Background(), "order_create", url.Values{})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if res.Get("order_id").Int() != 7 {
		t.Errorf("payload lost across retry: %s", res.Raw)
	}
	if stub.calls() != 2 {
		t.Errorf("expected 2 attempts, got %d", stub.calls())
	}
	// The throttle must have raised the adaptive delay before the success
	// decayed it; after one grow and one decay it is back under the base.
	if got := c.Limiter().Extra(); got >= adaptiveBase {
		t.Errorf("adaptive delay should have decayed below base, got %v", got)
	}
}

func TestCall_NonceErrorIsRetriedWithFreshNonce(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{
		{200, `{"result":false,"error":"API error 40005: Incorrect nonce"}`},
		{200, `{"result":true}`},
	}}
	c, _ := newTestClient(t, stub)

	if _, err := c.call(context.Background(), "user_info", url.Values{}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(stub.nonces) != 2 || stub.nonces[1] <= stub.nonces[0] {
		t.Errorf("retry must re-sign with a fresh nonce: %v", stub.nonces)
	}
}

func TestCall_RejectionIsNotRetried(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{
		{200, `{"result":false,"error":"Error 50052: Insufficient funds"}`},
	}}
	c, _ := newTestClient(t, stub)

	_, err := c.call(context.Background(), "order_create", url.Values{})
	var o Outcome
	if !errors.As(err, &o) || o.Kind != KindRejected {
		t.Fatalf("expected a Rejected outcome, got %v", err)
	}
	if stub.calls() != 1 {
		t.Errorf("rejections must not burn retries, got %d attempts", stub.calls())
	}
}

func TestCall_AuthFailureIsFatal(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{{403, `{}`}}}
	c, _ := newTestClient(t, stub)

	_, err := c.call(context.Background(), "user_info", url.Values{})
	var o Outcome
	if !errors.As(err, &o) || o.Kind != KindFatal {
		t.Fatalf("expected a Fatal outcome on 403, got %v", err)
	}
	if stub.calls() != 1 {
		t.Errorf("fatal outcomes must not retry, got %d attempts", stub.calls())
	}
}

func TestCall_ExhaustsBoundedAttempts(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{
		{500, `{}`}, {500, `{}`}, {500, `{}`}, {500, `{}`},
	}}
	c, _ := newTestClient(t, stub)

	_, err := c.call(context.Background(), "user_info", url.Values{})
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if stub.calls() != 3 {
		t.Errorf("MaxAttempts=3 must stop at 3 attempts, got %d", stub.calls())
	}
}

func TestBalances_ParsesWallet(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{
		{200, `{"result":true,"balances":{"DOGE":"120.5","EUR":"33.1"}}`},
	}}
	c, _ := newTestClient(t, stub)

	got, err := c.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if got["DOGE"] != 120.5 || got["EUR"] != 33.1 {
		t.Errorf("unexpected balances: %v", got)
	}
}

func TestOpenOrders_ParsesPairOrders(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{
		{200, `{"DOGE_EUR":[{"order_id":"101","type":"sell","quantity":"15","price":"0.2","created":"1700000000"}]}`},
	}}
	c, _ := newTestClient(t, stub)

	orders, err := c.OpenOrders(context.Background(), model.TradingPair{Base: "DOGE", Quote: "EUR"})
	if err != nil {
		t.Fatalf("OpenOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.OrderID != "101" || o.Side != model.SideSell || o.Qty != 15 || o.Price != 0.2 {
		t.Errorf("bad parse: %+v", o)
	}
}

func TestOrderCreate_RequiresOrderID(t *testing.T) {
	stub := &apiStub{responses: []stubResponse{{200, `{"result":true}`}}}
	c, _ := newTestClient(t, stub)

	_, err := c.OrderCreate(context.Background(),
		model.TradingPair{Base: "DOGE", Quote: "EUR"}, "buy", 10, 0.1)
	if err == nil {
		t.Error("missing order_id must be an error")
	}
}
