package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"patch-forecast-lab/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamServer upgrades connections, acks subscriptions and pushes the given
// raw messages after the subscribe arrives.
func streamServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var cmd wsCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}

			switch cmd.Op {
			case "subscribe":
				conn.WriteJSON(map[string]interface{}{
					"op":      "subscribe",
					"success": true,
				})
				for _, m := range messages {
					conn.WriteMessage(websocket.TextMessage, []byte(m))
				}
			case "ping":
				conn.WriteJSON(map[string]interface{}{"op": "pong"})
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestKlineStream_ConfirmedBarsOnly(t *testing.T) {
	messages := []string{
		// Still-forming bar, must be dropped.
		`{"topic":"kline.60.ETHUSDT","data":[{"start":3600000,"open":"2500","high":"2510","low":"2490","close":"2505","volume":"10","confirm":false}]}`,
		// Confirmed bar.
		`{"topic":"kline.60.ETHUSDT","data":[{"start":3600000,"open":"2500","high":"2512","low":"2488","close":"2508","volume":"42","confirm":true}]}`,
	}
	server := streamServer(t, messages)
	defer server.Close()

	stream, err := NewKlineStream(context.Background(), wsURL(server), "ETHUSDT", domain.IntervalHourly, nil, nil)
	if err != nil {
		t.Fatalf("NewKlineStream: %v", err)
	}
	defer stream.Close()

	select {
	case c := <-stream.Candles():
		if c.OpenTimeMs != 3600000 {
			t.Errorf("open time = %d, want 3600000", c.OpenTimeMs)
		}
		if c.Close != 2508 || c.Volume != 42 {
			t.Errorf("candle = %+v, want confirmed bar values", c)
		}
		if c.Symbol != "ETHUSDT" || c.Interval != domain.IntervalHourly {
			t.Errorf("candle identity = %s/%s", c.Symbol, c.Interval)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for confirmed candle")
	}

	// The unconfirmed bar must not arrive afterwards.
	select {
	case c := <-stream.Candles():
		t.Errorf("unexpected extra candle: %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestKlineStream_IgnoresUnrelatedMessages(t *testing.T) {
	messages := []string{
		`{"op":"pong"}`,
		`{"topic":"tickers.ETHUSDT","data":[]}`,
		`not json at all`,
		`{"topic":"kline.60.ETHUSDT","data":[{"start":7200000,"open":"1","high":"1","low":"1","close":"1","volume":"1","confirm":true}]}`,
	}
	server := streamServer(t, messages)
	defer server.Close()

	stream, err := NewKlineStream(context.Background(), wsURL(server), "ETHUSDT", domain.IntervalHourly, nil, nil)
	if err != nil {
		t.Fatalf("NewKlineStream: %v", err)
	}
	defer stream.Close()

	select {
	case c := <-stream.Candles():
		if c.OpenTimeMs != 7200000 {
			t.Errorf("open time = %d, want 7200000", c.OpenTimeMs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for candle")
	}
}

func TestKlineStream_CloseClosesChannel(t *testing.T) {
	server := streamServer(t, nil)
	defer server.Close()

	stream, err := NewKlineStream(context.Background(), wsURL(server), "ETHUSDT", domain.IntervalHourly, nil, nil)
	if err != nil {
		t.Fatalf("NewKlineStream: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Idempotent
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-stream.Candles():
		if ok {
			t.Error("expected closed channel after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Close")
	}
}

func TestKlineStream_DialError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewKlineStream(ctx, "ws://127.0.0.1:1", "ETHUSDT", domain.IntervalHourly, nil, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}
