package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("", "")

		if c.baseURL != DefaultFuturesBaseURL {
			t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultFuturesBaseURL)
		}
		if c.httpClient.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 10*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://api.example.com", "key",
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
			t.Errorf("retries = %d/%v, want 5/2s", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{418, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status}
		if err.IsRetryable() != tt.retryable {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, err.IsRetryable(), tt.retryable)
		}
	}

	withCode := &APIError{StatusCode: 400, Code: -1121, Message: "Invalid symbol."}
	if got := withCode.Error(); got != "binance api error 400 (code -1121): Invalid symbol." {
		t.Errorf("Error() = %q", got)
	}
}

func TestDoRequest_DecodesBinanceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	_, err := c.doRequest(context.Background(), http.MethodGet, "/x", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != -1121 || apiErr.Message != "Invalid symbol." {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestDoRequest_SendsAPIKey(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-MBX-APIKEY")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret")
	if _, err := c.doRequest(context.Background(), http.MethodGet, "/x", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secret" {
		t.Errorf("X-MBX-APIKEY = %q, want %q", got, "secret")
	}
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("does not retry on 4xx (except 429)", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(2, 5*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error")
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Errorf("error should wrap *APIError, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		c := NewClient(server.URL, "", WithRetries(10, time.Second))
		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want context.DeadlineExceeded", err)
		}
	})
}

func TestGetTicker24h(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/ticker/24hr" {
			t.Errorf("path = %q, want /fapi/v1/ticker/24hr", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q, want BTCUSDT", got)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","priceChange":"-94.99999800","priceChangePercent":"-95.960",` +
			`"weightedAvgPrice":"0.29628482","lastPrice":"4.00000200","lastQty":"200.00000000",` +
			`"openPrice":"99.00000000","highPrice":"100.00000000","lowPrice":"0.10000000",` +
			`"volume":"8913.30000000","quoteVolume":"15.30000000","openTime":1499783499040,` +
			`"closeTime":1499869899040,"firstId":28385,"lastId":28460,"count":76}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	resp, err := c.GetTicker24h(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("GetTicker24h failed: %v", err)
	}

	at := time.Unix(1499869899, 0)
	ticker, err := resp.ToTicker(at)
	if err != nil {
		t.Fatalf("ToTicker failed: %v", err)
	}
	if ticker.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", ticker.Symbol)
	}
	if ticker.Price != 4.000002 {
		t.Errorf("Price = %v, want 4.000002", ticker.Price)
	}
	if ticker.PriceChange24h != -95.96 {
		t.Errorf("PriceChange24h = %v, want -95.96", ticker.PriceChange24h)
	}
	if ticker.High24h != 100 || ticker.Low24h != 0.1 || ticker.Volume24h != 8913.3 {
		t.Errorf("High/Low/Volume = %v/%v/%v", ticker.High24h, ticker.Low24h, ticker.Volume24h)
	}
	if !ticker.ObservedAt.Equal(at) {
		t.Errorf("ObservedAt = %v, want %v", ticker.ObservedAt, at)
	}
}

func TestTicker24h_ToTickerInvalid(t *testing.T) {
	tests := []Ticker24h{
		{Symbol: "BTCUSDT", LastPrice: "", PriceChangePercent: "1"},
		{Symbol: "BTCUSDT", LastPrice: "0", PriceChangePercent: "1"},
		{Symbol: "BTCUSDT", LastPrice: "1", PriceChangePercent: "x"},
	}
	for _, tt := range tests {
		if _, err := tt.ToTicker(time.Now()); err == nil {
			t.Errorf("ToTicker(%+v) expected error", tt)
		}
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/ping" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if err := NewClient(server.URL, "").Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
